package keyring

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/YoshihikoAbe/wxmedia/dat"
)

const (
	// MaxSamples is how many template files are sampled for their tail.
	MaxSamples = 16

	templateSuffix = "_t.dat"
)

var monthPattern = regexp.MustCompile(`\d{4}-\d{2}`)

// Templates returns every template file under root, most recent month first.
// Files without a month in their path sort last; the order is otherwise
// lexical.
func Templates(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), templateSuffix) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	sort.SliceStable(files, func(i, j int) bool {
		return month(files[i]) > month(files[j])
	})
	return files, nil
}

func month(path string) string {
	if m := monthPattern.FindString(filepath.ToSlash(path)); m != "" {
		return m
	}
	return "0000-00"
}

// TailMode returns the most common trailing byte pair among the first
// MaxSamples files. A tie goes to the pair seen first.
func TailMode(files []string) ([]byte, bool) {
	if len(files) > MaxSamples {
		files = files[:MaxSamples]
	}

	var (
		order  []string
		counts = map[string]int{}
	)
	for _, name := range files {
		tail, err := readTail(name)
		if err != nil {
			continue
		}
		if counts[string(tail)] == 0 {
			order = append(order, string(tail))
		}
		counts[string(tail)]++
	}
	if len(order) == 0 {
		return nil, false
	}

	best := order[0]
	for _, tail := range order[1:] {
		if counts[tail] > counts[best] {
			best = tail
		}
	}
	return []byte(best), true
}

// XORFromTail derives the XOR key from the tail of a template. Templates end
// with the JPEG end of image marker, so both bytes must agree on the key.
func XORFromTail(tail []byte) (byte, bool) {
	if len(tail) != 2 {
		return 0, false
	}
	key := tail[0] ^ 0xff
	if key != tail[1]^0xd9 {
		return 0, false
	}
	return key, true
}

// V2Ciphertext returns the first encrypted block of a V2 template. Templates
// ending with tail are preferred; any V2 template is accepted otherwise.
func V2Ciphertext(files []string, tail []byte) ([]byte, bool) {
	if len(tail) == 2 {
		for _, name := range files {
			if ct, ok := readCiphertext(name, tail); ok {
				return ct, true
			}
		}
	}
	for _, name := range files {
		if ct, ok := readCiphertext(name, nil); ok {
			return ct, true
		}
	}
	return nil, false
}

func readCiphertext(name string, tail []byte) ([]byte, bool) {
	f, err := os.Open(name)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	b := make([]byte, dat.HeaderSize+16)
	if _, err := io.ReadFull(f, b); err != nil {
		return nil, false
	}
	if !bytes.HasPrefix(b, dat.SigV2) {
		return nil, false
	}
	if tail != nil {
		t, err := readTail(name)
		if err != nil || !bytes.Equal(t, tail) {
			return nil, false
		}
	}
	return b[dat.HeaderSize:], true
}

func readTail(name string) ([]byte, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tail := make([]byte, 2)
	if _, err := f.Seek(-2, io.SeekEnd); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(f, tail); err != nil {
		return nil, err
	}
	return tail, nil
}
