package resolve

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/YoshihikoAbe/wxmedia/hardlink"
)

const (
	monthHits = 20
	baseHits  = 50
)

var monthPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// imagePath resolves images and emoji: <root>/<dir1>/<dir>/<name>, then the
// conversation's attach directory.
func (r *Resolver) imagePath(ctx context.Context, e *hardlink.Entry, username string) (string, error) {
	if e.Dir1 == "" || e.Dir2 == "" {
		return "", nil
	}
	dir, err := r.Index.DirName(ctx, e.Dir2, username)
	if err != nil {
		return "", err
	}

	stem := stem(e.FileName)
	variants := []string{e.FileName, stem + "_h.dat", stem + "_t.dat"}
	for _, root := range r.roots() {
		for _, v := range variants {
			if p := filepath.Join(root, e.Dir1, dir, v); isFile(p) {
				return p, nil
			}
		}
		if username == "" {
			continue
		}
		attach := filepath.Join(root, "msg", "attach", chatHash(username), dir, "Img")
		for _, v := range variants {
			if p := filepath.Join(attach, v); isFile(p) {
				return p, nil
			}
		}
	}
	return "", nil
}

func videoBases(root string) []string {
	candidates := []string{
		filepath.Join(root, "msg", "video"),
		filepath.Join(root, "video"),
	}
	if strings.EqualFold(filepath.Base(root), "video") {
		candidates = append(candidates, root)
	}

	var bases []string
	for _, c := range candidates {
		if isDir(c) {
			bases = append(bases, c)
		}
	}
	return dedup(bases)
}

// videoPath resolves videos under <base>/<YYYY-MM>/ and then <base>/.
// Thumbnails prefer a real image next to the video.
func (r *Resolver) videoPath(e *hardlink.Entry, thumb bool) string {
	guessed := month(e.ModifyTime)
	variants := []string{e.FileName}
	if thumb {
		s := stem(e.FileName)
		variants = []string{
			s + "_thumb.jpg", s + "_thumb.jpeg", s + "_thumb.png", s + "_thumb.webp",
			s + ".jpg", s + ".jpeg", s + ".png", s + ".gif", s + ".webp", s + ".dat",
			e.FileName,
		}
	}

	for _, root := range r.roots() {
		if !isDir(root) {
			continue
		}
		for _, base := range videoBases(root) {
			dirs := []string{base}
			if guessed != "" {
				dirs = []string{filepath.Join(base, guessed), base}
			}
			for _, d := range dirs {
				if !isDir(d) {
					continue
				}
				for _, v := range variants {
					if p := filepath.Join(d, v); isFile(p) {
						return p
					}
				}
				if guessed != "" {
					if hits := find(d, []string{e.FileName}, 1); len(hits) > 0 {
						return hits[0]
					}
				}
			}
		}
	}

	for _, base := range videoBases(r.Root) {
		if hits := find(base, []string{e.FileName}, 1); len(hits) > 0 {
			return hits[0]
		}
	}
	return ""
}

func fileBases(root string) []string {
	candidates := []string{filepath.Join(root, "msg", "file")}
	switch strings.ToLower(filepath.Base(root)) {
	case "msg":
		candidates = append(candidates, filepath.Join(root, "file"))
	case "file":
		candidates = append(candidates, root)
	}

	var bases []string
	for _, c := range candidates {
		if isDir(c) {
			bases = append(bases, c)
		}
	}
	return bases
}

func monthDirs(base string) []string {
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && monthPattern.MatchString(e.Name()) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out
}

// filePath resolves attachments under <base>/<YYYY-MM>/, trying the month of
// the row first, then every month, then the whole base directory.
func (r *Resolver) filePath(e *hardlink.Entry) string {
	var bases []string
	for _, root := range r.roots() {
		bases = append(bases, fileBases(root)...)
	}
	bases = dedup(bases)

	guessed := month(e.ModifyTime)
	s := stem(e.FileName)
	for _, base := range bases {
		months := monthDirs(base)
		if guessed != "" {
			months = append([]string{guessed}, months...)
		}

		seen := map[string]bool{}
		for _, m := range months {
			if seen[m] {
				continue
			}
			seen[m] = true

			dir := filepath.Join(base, m)
			if !isDir(dir) {
				continue
			}
			if p := filepath.Join(dir, e.FileName); isFile(p) {
				return p
			}
			if p := filepath.Join(dir, s, e.FileName); isFile(p) {
				return p
			}
			if p := pickBySize(find(dir, []string{e.FileName}, monthHits), e.FileSize); p != "" {
				return p
			}
		}

		if p := pickBySize(find(base, []string{e.FileName}, baseHits), e.FileSize); p != "" {
			return p
		}
	}
	return ""
}

// pickBySize returns the first hit whose size is size, or the first hit when
// none matches or size is unknown.
func pickBySize(hits []string, size int64) string {
	if len(hits) == 0 {
		return ""
	}
	if size >= 0 {
		for _, h := range hits {
			if info, err := os.Stat(h); err == nil && info.Size() == size {
				return h
			}
		}
	}
	return hits[0]
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
