package resolve

import (
	"context"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// A SourceFile is an encrypted file named after the content hash of the
// media it holds.
type SourceFile struct {
	Path string
	MD5  string
}

// Collect walks the attach and cache directories of root and sends the .dat
// files whose name starts with a content hash, one per hash and directory. The channel is closed once
// the walk is done or ctx is canceled.
func Collect(ctx context.Context, root string) (<-chan SourceFile, error) {
	if !isDir(root) {
		return nil, resolveError("not a directory: " + root)
	}

	ch := make(chan SourceFile, 2)
	go func() {
		defer close(ch)
		for _, dir := range []string{
			filepath.Join(root, "msg", "attach"),
			filepath.Join(root, "cache"),
		} {
			if !isDir(dir) {
				continue
			}
			if err := collect(ctx, dir, ch); err != nil {
				log.Warn().Err(err).Str("dir", dir).Msg("collect stopped")
				return
			}
		}
	}()
	return ch, nil
}

func collect(ctx context.Context, dir string, ch chan<- SourceFile) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Debug().Err(err).Str("path", path).Msg("skipping")
			if d != nil && d.IsDir() && path != dir {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			log.Debug().Err(err).Str("path", path).Msg("skipping")
			return nil
		}
		for _, f := range pickSources(path, entries) {
			select {
			case ch <- f:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
}

// pickSources keeps one file per hash in a directory: the high resolution
// variant, then the plain one, then the thumbnail.
func pickSources(dir string, entries []fs.DirEntry) []SourceFile {
	var (
		order []string
		best  = map[string]SourceFile{}
		ranks = map[string]int{}
	)
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.EqualFold(filepath.Ext(e.Name()), ".dat") {
			continue
		}
		hash, ok := hashFromName(e.Name())
		if !ok {
			continue
		}
		rank := variantRank(e.Name())
		if prev, seen := ranks[hash]; seen && prev <= rank {
			continue
		} else if !seen {
			order = append(order, hash)
		}
		ranks[hash] = rank
		best[hash] = SourceFile{Path: filepath.Join(dir, e.Name()), MD5: hash}
	}

	files := make([]SourceFile, 0, len(order))
	for _, hash := range order {
		files = append(files, best[hash])
	}
	return files
}

func variantRank(name string) int {
	s := strings.ToLower(stem(name))
	switch {
	case strings.HasSuffix(s, "_h"):
		return 0
	case !strings.Contains(s, "_"):
		return 1
	case strings.HasSuffix(s, "_t"):
		return 2
	}
	return 3
}

// hashFromName extracts the content hash from names such as <md5>.dat,
// <md5>_t.dat and <md5>_h.dat.
func hashFromName(name string) (string, bool) {
	s := stem(name)
	if i := strings.IndexByte(s, '_'); i >= 0 {
		s = s[:i]
	}
	if len(s) != 32 {
		return "", false
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", false
	}
	return strings.ToLower(s), true
}
