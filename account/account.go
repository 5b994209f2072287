// Package account locates the directories belonging to one decrypted
// account: its output directory, which holds the decrypted databases and the
// resource cache, and the client's data directory the media is read from.
package account

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/YoshihikoAbe/wxmedia/hardlink"
	"github.com/YoshihikoAbe/wxmedia/resource"
	"github.com/rs/zerolog/log"
)

type accountError string

func (e accountError) Error() string {
	return "wxmedia/account: " + string(e)
}

const (
	ErrNoAccounts  = accountError("no decrypted accounts found")
	ErrNotFound    = accountError("account not found")
	ErrInvalidName = accountError("invalid account name")

	SourceFileName = "_source.json"
)

// files that mark an output directory as a decrypted account
var markers = []string{"session.db", "contact.db"}

// homeDir is replaced in tests.
var homeDir = os.UserHomeDir

type Account struct {
	Name string
	// Dir is the output directory of the account.
	Dir string
	// DataDir is the client's data directory, or "" when it could not be
	// located.
	DataDir string
	// DBStorageDir is the client's database directory, or "".
	DBStorageDir string
}

type sourceInfo struct {
	DataDir       string `json:"wxid_dir"`
	DBStoragePath string `json:"db_storage_path"`
}

// List returns the names of the decrypted accounts under outputDir, sorted.
func List(outputDir string) ([]string, error) {
	entries, err := os.ReadDir(outputDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && isAccountDir(filepath.Join(outputDir, e.Name())) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func isAccountDir(dir string) bool {
	for _, m := range markers {
		if _, err := os.Stat(filepath.Join(dir, m)); err != nil {
			return false
		}
	}
	return true
}

// Open opens the account called name under outputDir. An empty name selects
// the first account.
func Open(outputDir, name string) (*Account, error) {
	names, err := List(outputDir)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, ErrNoAccounts
	}
	if name == "" {
		name = names[0]
	}

	if strings.ContainsAny(name, `/\`) || name == ".." {
		return nil, ErrInvalidName
	}
	base, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(base, name)
	if rel, err := filepath.Rel(base, dir); err != nil || rel == "." || strings.HasPrefix(rel, "..") || strings.ContainsRune(rel, filepath.Separator) {
		return nil, ErrInvalidName
	}
	if !isAccountDir(dir) {
		return nil, ErrNotFound
	}

	a := &Account{Name: name, Dir: dir}
	info := a.loadSource()
	a.DataDir = dataDir(info, name)
	a.DBStorageDir = dbStorageDir(info, a.DataDir)

	log.Debug().
		Str("account", name).
		Str("data_dir", a.DataDir).
		Str("db_storage", a.DBStorageDir).
		Msg("account opened")
	return a, nil
}

func (a *Account) HardlinkPath() string {
	return filepath.Join(a.Dir, hardlink.FileName)
}

func (a *Account) ResourceDir() string {
	return filepath.Join(a.Dir, resource.DirName)
}

// ExtraRoots lists directories beyond DataDir that index paths may be
// relative to.
func (a *Account) ExtraRoots() []string {
	if a.DBStorageDir == "" {
		return nil
	}
	return []string{a.DBStorageDir}
}

func (a *Account) loadSource() sourceInfo {
	var info sourceInfo
	b, err := os.ReadFile(filepath.Join(a.Dir, SourceFileName))
	if err != nil {
		return info
	}
	if err := json.Unmarshal(b, &info); err != nil {
		log.Warn().Err(err).Str("account", a.Name).Msg("ignoring malformed " + SourceFileName)
	}
	return info
}

func dataDir(info sourceInfo, name string) string {
	if p := strings.TrimSpace(info.DataDir); p != "" && isDir(p) {
		return p
	}
	return guessDataDir(name)
}

// guessDataDir looks for the client's default data directories in the home
// directory: an exact match first, then <name>_<suffix>.
func guessDataDir(name string) string {
	home, err := homeDir()
	if err != nil {
		return ""
	}
	roots := []string{
		filepath.Join(home, "Documents", "xwechat_files"),
		filepath.Join(home, "Documents", "WeChat Files"),
	}

	for _, root := range roots {
		if p := filepath.Join(root, name); isDir(p) {
			return p
		}
	}
	for _, root := range roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() && strings.HasPrefix(e.Name(), name+"_") {
				return filepath.Join(root, e.Name())
			}
		}
	}
	return ""
}

func dbStorageDir(info sourceInfo, dataDir string) string {
	if p := strings.TrimSpace(info.DBStoragePath); p != "" && isDir(p) {
		return p
	}
	if dataDir != "" {
		if p := filepath.Join(dataDir, "db_storage"); isDir(p) {
			return p
		}
	}
	return ""
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
