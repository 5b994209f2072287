package resource

import (
	"path/filepath"
	"strings"
)

// formatHashPath returns the path of a resource relative to the cache root:
// the first two characters of the hash name its bucket directory.
func formatHashPath(md5, ext string) (string, error) {
	md5 = strings.ToLower(strings.TrimSpace(md5))
	if md5 == "" {
		return "", resourceError("empty content hash")
	}
	if strings.ContainsAny(md5, `/\.`) || strings.ContainsAny(ext, `/\`) {
		return "", resourceError("invalid content hash: " + md5)
	}

	bucket := "00"
	if len(md5) >= 2 {
		bucket = md5[:2]
	}
	name := md5
	if ext != "" {
		name += "." + ext
	}
	return filepath.Join(bucket, name), nil
}
