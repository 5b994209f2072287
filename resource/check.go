package resource

import (
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/YoshihikoAbe/wxmedia/sniff"
)

type CheckResult struct {
	Time time.Time

	Broken       []string `json:"broken"`
	Unknown      []string `json:"unknown"`
	TotalBroken  int      `json:"total_broken"`
	TotalUnknown int      `json:"total_unknown"`
	TotalFiles   int      `json:"total_files"`
}

// Check audits the cache. A resource is broken when its content does not
// start with the signature its extension promises; a file that is not named
// after a content hash is unknown. Nothing is removed.
func (c *Cache) Check() (*CheckResult, error) {
	result := &CheckResult{
		Time:    time.Now(),
		Broken:  []string{},
		Unknown: []string{},
	}

	if _, err := os.Stat(c.Dir); errors.Is(err, fs.ErrNotExist) {
		return result, nil
	}

	head := make([]byte, 32)
	err := filepath.WalkDir(c.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, _ := filepath.Rel(c.Dir, path)
		result.TotalFiles++

		name := d.Name()
		ext := strings.TrimPrefix(filepath.Ext(name), ".")
		md5 := strings.TrimSuffix(name, filepath.Ext(name))
		if !isHash(md5) || filepath.Base(filepath.Dir(path)) != md5[:2] {
			result.Unknown = append(result.Unknown, rel)
			result.TotalUnknown++
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		n, err := io.ReadFull(f, head)
		f.Close()
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return err
		}

		if want := sniff.TypeByName(name); want != sniff.OctetStream && sniff.MediaType(head[:n]) != want {
			result.Broken = append(result.Broken, rel)
			result.TotalBroken++
		} else if ext == "" {
			result.Unknown = append(result.Unknown, rel)
			result.TotalUnknown++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func isHash(s string) bool {
	if len(s) != 32 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil && strings.ToLower(s) == s
}
