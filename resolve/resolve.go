// Package resolve maps the content hash or file identifier of a media item
// to the file the client stored it in.
package resolve

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/YoshihikoAbe/wxmedia/hardlink"
	"github.com/YoshihikoAbe/wxmedia/memo"
	"github.com/rs/zerolog/log"
)

type resolveError string

func (e resolveError) Error() string {
	return "wxmedia/resolve: " + string(e)
}

const (
	ErrNotFound     = resolveError("media not found")
	ErrUnknownKind  = resolveError("unknown media kind")
	ErrEmptyRequest = resolveError("request has neither a content hash nor a file id")
)

type Kind string

const (
	Image      Kind = "image"
	Emoji      Kind = "emoji"
	Video      Kind = "video"
	VideoThumb Kind = "video_thumb"
	File       Kind = "file"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Image, Emoji, Video, VideoThumb, File:
		return k, nil
	}
	return "", resolveError("unknown media kind: " + s)
}

// tablePrefixes lists the hardlink tables consulted for k, in order.
func (k Kind) tablePrefixes() []string {
	switch k {
	case Image:
		return []string{"image_hardlink_info"}
	case Emoji:
		return []string{"emoji_hardlink_info", "emotion_hardlink_info", "image_hardlink_info"}
	case Video, VideoThumb:
		return []string{"video_hardlink_info"}
	case File:
		return []string{"file_hardlink_info"}
	}
	return nil
}

// Index is the subset of the hardlink database the resolver needs.
type Index interface {
	Lookup(ctx context.Context, prefixes []string, md5 string) (*hardlink.Entry, error)
	DirName(ctx context.Context, dir2, username string) (string, error)
}

// Cache is consulted before anything else. *resource.Cache implements it.
type Cache interface {
	Lookup(md5 string) (string, bool)
}

type Request struct {
	Kind     Kind
	MD5      string
	FileID   string
	Username string
}

// Via values of a Result.
const (
	ViaCache  = "cache"
	ViaIndex  = "index"
	ViaSearch = "search"
	ViaFileID = "file_id"
)

type Result struct {
	Path string
	Via  string
}

// Cached reports whether Path is an already decrypted resource.
func (r *Result) Cached() bool {
	return r.Via == ViaCache
}

type Resolver struct {
	// Root is the account's data directory.
	Root string
	// ExtraRoots are searched after the standard subdirectories of Root.
	ExtraRoots []string

	Index Index
	Cache Cache

	memo *memo.Cache[string]
}

func New(root string, extraRoots []string, index Index, cache Cache, m *memo.Cache[string]) *Resolver {
	return &Resolver{
		Root:       root,
		ExtraRoots: extraRoots,
		Index:      index,
		Cache:      cache,
		memo:       m,
	}
}

// Resolve locates the file of req. Stages are tried in order: the resource
// cache, the hardlink index, a search by content hash, and a search by file
// id. ErrNotFound means the item is unavailable on this machine.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Result, error) {
	if req.Kind.tablePrefixes() == nil {
		return nil, ErrUnknownKind
	}
	hash := strings.ToLower(strings.TrimSpace(req.MD5))
	fileID := strings.TrimSpace(req.FileID)
	if hash == "" && fileID == "" {
		return nil, ErrEmptyRequest
	}
	logger := log.With().Str("kind", string(req.Kind)).Str("md5", hash).Logger()

	if hash != "" {
		// plain attachments are never decrypted, so never cached
		if r.Cache != nil && req.Kind != File {
			if p, ok := r.Cache.Lookup(hash); ok {
				logger.Debug().Str("path", p).Str("via", ViaCache).Msg("resolved")
				return &Result{Path: p, Via: ViaCache}, nil
			}
		}

		if r.Index != nil {
			p, err := r.fromIndex(ctx, req.Kind, hash, req.Username)
			if err != nil {
				logger.Debug().Err(err).Msg("index lookup failed")
			} else if p != "" {
				logger.Debug().Str("path", p).Str("via", ViaIndex).Msg("resolved")
				return &Result{Path: p, Via: ViaIndex}, nil
			} else {
				logger.Debug().Msg("no usable index row")
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if p := r.searchMD5(req.Kind, hash); p != "" {
			logger.Debug().Str("path", p).Str("via", ViaSearch).Msg("resolved")
			return &Result{Path: p, Via: ViaSearch}, nil
		}
	}

	if fileID != "" {
		if p := r.searchFileID(req.Kind, fileID, req.Username); p != "" {
			logger.Debug().Str("path", p).Str("via", ViaFileID).Msg("resolved")
			return &Result{Path: p, Via: ViaFileID}, nil
		}
	}

	logger.Debug().Str("file_id", fileID).Msg("not found")
	return nil, ErrNotFound
}

// fromIndex returns the path the index points at, or "" when no row leads to
// an existing file.
func (r *Resolver) fromIndex(ctx context.Context, kind Kind, hash, username string) (string, error) {
	for _, prefix := range kind.tablePrefixes() {
		entry, err := r.Index.Lookup(ctx, []string{prefix}, hash)
		if errors.Is(err, hardlink.ErrNoRow) {
			continue
		}
		if err != nil {
			return "", err
		}

		var p string
		switch kind {
		case Video, VideoThumb:
			p = r.videoPath(entry, kind == VideoThumb)
		case File:
			p = r.filePath(entry)
		default:
			p, err = r.imagePath(ctx, entry, username)
			if err != nil {
				return "", err
			}
		}
		if p != "" {
			return p, nil
		}
		log.Debug().Str("table", entry.Table).Str("md5", hash).Msg("index row points to a missing file")
	}
	return "", nil
}

// roots lists the directories index paths are relative to.
func (r *Resolver) roots() []string {
	var roots []string
	if r.Root != "" {
		roots = append(roots,
			r.Root,
			filepath.Join(r.Root, "msg", "attach"),
			filepath.Join(r.Root, "msg", "file"),
			filepath.Join(r.Root, "msg", "video"),
			filepath.Join(r.Root, "cache"),
		)
	}
	return dedup(append(roots, r.ExtraRoots...))
}

func chatHash(username string) string {
	sum := md5.Sum([]byte(username))
	return hex.EncodeToString(sum[:])
}

// month formats a unix time as the YYYY-MM directory name used by the
// client, or "" for an unset time.
func month(unix int64) string {
	if unix <= 0 {
		return ""
	}
	return time.Unix(unix, 0).Format("2006-01")
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

func dedup(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := paths[:0:0]
	for _, p := range paths {
		if p == "" {
			continue
		}
		key := filepath.Clean(p)
		if abs, err := filepath.Abs(key); err == nil {
			key = abs
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}
