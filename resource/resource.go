// Package resource stores decrypted media under the account's resource
// directory, one file per content hash.
package resource

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/YoshihikoAbe/wxmedia/sniff"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type resourceError string

func (e resourceError) Error() string {
	return "wxmedia/resource: " + string(e)
}

const DirName = "resource"

// Extensions are probed in this order by Lookup.
var Extensions = []string{"jpg", "png", "gif", "webp", "mp4", "dat"}

type Cache struct {
	Dir string
}

func New(dir string) *Cache {
	return &Cache{Dir: dir}
}

func (c *Cache) Path(md5, ext string) (string, error) {
	p, err := formatHashPath(md5, ext)
	if err != nil {
		return "", err
	}
	return filepath.Join(c.Dir, p), nil
}

// Lookup returns the stored file of md5, if any.
func (c *Cache) Lookup(md5 string) (string, bool) {
	for _, ext := range Extensions {
		p, err := c.Path(md5, ext)
		if err != nil {
			return "", false
		}
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p, true
		}
	}
	return "", false
}

// Extension picks the extension a resource is stored under: the one of its
// media type, else the one of the file it was decrypted from.
func Extension(mediaType, sourceName string) string {
	if ext := sniff.Extension(mediaType); ext != "" {
		return ext
	}
	if ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(sourceName), ".")); ext != "" {
		return ext
	}
	return "dat"
}

// Store writes data as the resource of md5 unless a file already exists at
// its path, in which case the existing path is returned and data is dropped.
// Stored files are never replaced.
func (c *Cache) Store(md5 string, data []byte, mediaType, sourceName string) (string, error) {
	if mediaType == "" || mediaType == sniff.OctetStream {
		return "", resourceError("refusing to store unrecognized data for " + md5)
	}
	p, err := c.Path(md5, Extension(mediaType, sourceName))
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(p); err == nil {
		return p, nil
	}

	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0777); err != nil {
		return "", err
	}
	tmp := filepath.Join(dir, "."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		os.Remove(tmp)
		return "", err
	}
	defer os.Remove(tmp)

	// a hard link fails instead of replacing an existing target
	if err := os.Link(tmp, p); err != nil {
		if errors.Is(err, fs.ErrExist) {
			log.Debug().Str("path", p).Msg("resource already stored")
			return p, nil
		}
		return "", err
	}
	return p, nil
}
