package resolve

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

var emojiBuckets = []string{"Emoticon", "emoticon", "Emoji", "emoji"}

// find walks dir and returns up to limit regular files whose name matches
// any of patterns. Unreadable subtrees are skipped.
func find(dir string, patterns []string, limit int) []string {
	var hits []string
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != dir {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if matchAny(patterns, d.Name()) >= 0 {
			hits = append(hits, path)
			if len(hits) >= limit {
				return fs.SkipAll
			}
		}
		return nil
	})
	return hits
}

// first walks dir once and returns the first file matching the earliest
// pattern that matches anything.
func first(dir string, patterns []string) string {
	best, bestIdx := "", len(patterns)
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != dir {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if i := matchAny(patterns[:bestIdx], d.Name()); i >= 0 {
			best, bestIdx = path, i
			if i == 0 {
				return fs.SkipAll
			}
		}
		return nil
	})
	return best
}

func matchAny(patterns []string, name string) int {
	for i, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return i
		}
	}
	return -1
}

// escape quotes the pattern metacharacters of a literal file name. They are
// wrapped in character classes, the backslash is a separator on Windows.
func escape(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r == '*' || r == '?' || r == '[':
			sb.WriteByte('[')
			sb.WriteRune(r)
			sb.WriteByte(']')
		case r == '\\' && filepath.Separator != '\\':
			sb.WriteString(`\\`)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// searchMD5 looks for a file named after hash under the directories the
// client keeps kind in.
func (r *Resolver) searchMD5(kind Kind, hash string) string {
	if r.Root == "" {
		return ""
	}
	key := "md5|" + r.Root + "|" + string(kind) + "|" + hash
	if p, ok := r.memo.Get(key); ok && isFile(p) {
		return p
	}

	p := r.doSearchMD5(kind, hash)
	if p != "" {
		r.memo.Set(key, p)
	}
	return p
}

func (r *Resolver) doSearchMD5(kind Kind, hash string) string {
	root := r.Root
	msg := filepath.Join(root, "msg")
	pat := escape(hash)

	var dirs, patterns []string
	switch kind {
	case File:
		dirs = []string{filepath.Join(msg, "file")}
		patterns = []string{"*" + pat + "*"}
	case Emoji:
		if p := r.emojiCache(hash); p != "" {
			return p
		}
		dirs = []string{
			filepath.Join(msg, "emoji"),
			filepath.Join(msg, "emoticon"),
			filepath.Join(root, "emoji"),
			filepath.Join(root, "emoticon"),
			filepath.Join(msg, "attach"),
			filepath.Join(msg, "file"),
			filepath.Join(msg, "video"),
		}
		patterns = []string{
			pat + "_h.dat", pat + "_t.dat", pat + ".dat", pat + "*.dat",
			pat + "*.gif", pat + "*.webp", pat + "*.png", pat + "*.jpg",
			"*" + pat + "*",
		}
	default:
		dirs = []string{
			filepath.Join(msg, "attach"),
			filepath.Join(msg, "file"),
			filepath.Join(msg, "video"),
			filepath.Join(root, "cache"),
		}
		patterns = []string{
			pat + "_h.dat", pat + "_t.dat", pat + ".dat", pat + "*.dat",
			pat + "*.jpg", pat + "*.jpeg", pat + "*.png", pat + "*.gif",
			pat + "*.webp", pat + "*.mp4",
		}
	}

	for _, d := range dirs {
		if !isDir(d) {
			continue
		}
		if p := first(d, patterns); p != "" {
			return p
		}
	}
	return ""
}

// emojiCache probes <root>/cache/*/<bucket>/<hash[:2]>/ by exact name
// before any recursive search.
func (r *Resolver) emojiCache(hash string) string {
	if len(hash) < 2 {
		return ""
	}
	cache := filepath.Join(r.Root, "cache")
	entries, err := os.ReadDir(cache)
	if err != nil {
		return ""
	}

	var candidates []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		for _, b := range emojiBuckets {
			candidates = append(candidates, filepath.Join(cache, e.Name(), b, hash[:2]))
		}
	}
	for _, b := range emojiBuckets {
		candidates = append(candidates, filepath.Join(cache, b, hash[:2]))
	}

	names := []string{
		hash + "_h.dat", hash + "_t.dat", hash + ".dat",
		hash + ".gif", hash + ".webp", hash + ".png", hash + ".jpg",
	}
	for _, dir := range dedup(candidates) {
		if !isDir(dir) {
			continue
		}
		for _, n := range names {
			if p := filepath.Join(dir, n); isFile(p) {
				return p
			}
		}
		entries, _ := os.ReadDir(dir)
		for _, e := range entries {
			if e.Type().IsRegular() && strings.HasPrefix(e.Name(), hash) {
				return filepath.Join(dir, e.Name())
			}
		}
	}
	return ""
}

// searchFileID looks for a file named after a provider-assigned identifier,
// starting in the conversation's attach directory when username is known.
func (r *Resolver) searchFileID(kind Kind, fileID, username string) string {
	if r.Root == "" {
		return ""
	}
	key := "fid|" + r.Root + "|" + string(kind) + "|" + fileID + "|" + username
	if p, ok := r.memo.Get(key); ok && isFile(p) {
		return p
	}

	root := r.Root
	msg := filepath.Join(root, "msg")
	var dirs []string
	if username != "" {
		dirs = append(dirs, filepath.Join(msg, "attach", chatHash(username)))
	}
	switch kind {
	case File:
		dirs = append(dirs, filepath.Join(msg, "file"))
	case Video, VideoThumb:
		dirs = append(dirs, filepath.Join(msg, "video"), filepath.Join(root, "cache"))
	default:
		dirs = append(dirs,
			filepath.Join(msg, "attach"),
			filepath.Join(root, "cache"),
			filepath.Join(msg, "file"),
			filepath.Join(msg, "video"),
		)
	}

	base := escape(fileID)
	patterns := []string{base}
	if filepath.Ext(fileID) == "" {
		patterns = []string{
			base + "_h.dat", base + "_t.dat", base + ".dat", base + "*.dat",
			base + ".jpg", base + ".jpeg", base + ".png", base + ".gif", base + ".webp",
			base + "*",
		}
	}

	for _, d := range dedup(dirs) {
		if !isDir(d) {
			continue
		}
		if p := first(d, patterns); p != "" {
			log.Debug().Str("file_id", fileID).Str("dir", d).Msg("file id matched")
			r.memo.Set(key, p)
			return p
		}
	}
	return ""
}
