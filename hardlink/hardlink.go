// Package hardlink reads the client's hardlink index, which maps the content
// hash of a media file to the directory it was stored in.
package hardlink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

type hardlinkError string

func (e hardlinkError) Error() string {
	return "wxmedia/hardlink: " + string(e)
}

const (
	ErrNoTable = hardlinkError("no matching table")
	ErrNoRow   = hardlinkError("no matching row")

	FileName = "hardlink.db"

	dirTablePrefix = "dir2id"
)

// An Entry is one row of a hardlink table.
type Entry struct {
	Table    string
	MD5      string
	Dir1     string
	Dir2     string
	FileName string
	// FileSize is -1 when the table does not record it.
	FileSize   int64
	ModifyTime int64
}

// DB is a read-only handle on a hardlink database.
type DB struct {
	db *sql.DB

	mu      sync.Mutex
	columns map[string]map[string]bool
}

func Open(path string) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("wxmedia/hardlink: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("wxmedia/hardlink: open database: %w", err)
	}
	return &DB{db: db, columns: map[string]map[string]bool{}}, nil
}

// dsn builds a read-only URI for path with its reserved characters escaped.
func dsn(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	path = filepath.ToSlash(path)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := url.URL{Scheme: "file", Path: path, RawQuery: "mode=ro"}
	return u.String()
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Table returns the name of the newest table whose name starts with prefix.
// Names carry a version suffix, so the lexically greatest is the newest.
func (db *DB) Table(ctx context.Context, prefix string) (string, error) {
	var name string
	err := db.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name LIKE ? ORDER BY name DESC LIMIT 1",
		prefix+"%",
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoTable
	}
	return name, err
}

// Lookup returns the most recently modified row for md5 in the first table,
// taken in the order of prefixes, that has one.
func (db *DB) Lookup(ctx context.Context, prefixes []string, md5 string) (*Entry, error) {
	for _, prefix := range prefixes {
		table, err := db.Table(ctx, prefix)
		if errors.Is(err, ErrNoTable) {
			continue
		}
		if err != nil {
			return nil, err
		}

		entry, err := db.lookup(ctx, table, md5)
		if errors.Is(err, ErrNoRow) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("wxmedia/hardlink: %s: %w", table, err)
		}
		return entry, nil
	}
	return nil, ErrNoRow
}

func (db *DB) lookup(ctx context.Context, table, md5 string) (*Entry, error) {
	cols, err := db.tableColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	size := "-1"
	if cols["file_size"] {
		size = "file_size"
	}

	var (
		dir1, dir2, name sql.NullString
		fileSize, mtime  sql.NullInt64
	)
	err = db.db.QueryRowContext(ctx,
		"SELECT dir1, dir2, file_name, "+size+", modify_time FROM "+quote(table)+" WHERE md5 = ? ORDER BY modify_time DESC LIMIT 1",
		md5,
	).Scan(&dir1, &dir2, &name, &fileSize, &mtime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRow
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(name.String) == "" {
		return nil, ErrNoRow
	}

	entry := &Entry{
		Table:      table,
		MD5:        md5,
		Dir1:       strings.TrimSpace(dir1.String),
		Dir2:       strings.TrimSpace(dir2.String),
		FileName:   strings.TrimSpace(name.String),
		FileSize:   -1,
		ModifyTime: mtime.Int64,
	}
	if fileSize.Valid {
		entry.FileSize = fileSize.Int64
	}
	return entry, nil
}

// DirName maps the dir2 bucket id of an entry to the directory name it stands
// for. Without a mapping dir2 itself is returned.
func (db *DB) DirName(ctx context.Context, dir2, username string) (string, error) {
	table, err := db.Table(ctx, dirTablePrefix)
	if errors.Is(err, ErrNoTable) {
		return dir2, nil
	}
	if err != nil {
		return "", err
	}

	var name sql.NullString
	if id, err := strconv.ParseInt(dir2, 10, 64); err == nil {
		err = db.db.QueryRowContext(ctx, "SELECT username FROM "+quote(table)+" WHERE rowid = ? LIMIT 1", id).Scan(&name)
		if err == nil && name.String != "" {
			return name.String, nil
		}
	}
	if username != "" {
		err = db.db.QueryRowContext(ctx, "SELECT dir_name FROM "+quote(table)+" WHERE dir_id = ? AND username = ? LIMIT 1", dir2, username).Scan(&name)
		if err == nil && name.String != "" {
			return name.String, nil
		}
	}
	return dir2, nil
}

func (db *DB) tableColumns(ctx context.Context, table string) (map[string]bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if cols, ok := db.columns[table]; ok {
		return cols, nil
	}

	rows, err := db.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[strings.ToLower(name)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	db.columns[table] = cols
	return cols, nil
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
