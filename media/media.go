// Package media ties the pipeline together: a request for a content hash is
// served from the resource cache, or resolved to a source file that is
// decrypted and stored in the cache.
package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/YoshihikoAbe/wxmedia/account"
	"github.com/YoshihikoAbe/wxmedia/dat"
	"github.com/YoshihikoAbe/wxmedia/hardlink"
	"github.com/YoshihikoAbe/wxmedia/keyring"
	"github.com/YoshihikoAbe/wxmedia/memo"
	"github.com/YoshihikoAbe/wxmedia/resolve"
	"github.com/YoshihikoAbe/wxmedia/resource"
	"github.com/YoshihikoAbe/wxmedia/sniff"
	"github.com/YoshihikoAbe/wxmedia/wxgf"
	"github.com/rs/zerolog/log"
)

type mediaError string

func (e mediaError) Error() string {
	return "wxmedia/media: " + string(e)
}

// Outcomes other than success. Each is matched with errors.Is.
var (
	ErrNotFound       error = resolve.ErrNotFound
	ErrKeyUnavailable error = keyring.ErrKeyUnavailable
	ErrUnrecognized   error = dat.ErrUnrecognized
	ErrNoDecoder      error = wxgf.ErrUnavailable
)

const ErrNoAccount = mediaError("no account configured")

type Resource struct {
	MD5       string
	Path      string
	MediaType string
	Data      []byte
	// Via names the resolver stage that found the source.
	Via string
}

type Options struct {
	// Account may be nil, in which case only Decode is usable.
	Account *account.Account
	// Root overrides the data directory keys are recovered from.
	Root string

	KeySource    keyring.KeySource
	Wxgf         wxgf.Decoder
	MemoCapacity int64
}

type Service struct {
	Account  *account.Account
	Keys     *keyring.Recoverer
	Decoder  *dat.Decoder
	Resolver *resolve.Resolver
	Cache    *resource.Cache

	index   *hardlink.DB
	paths   *memo.Cache[string]
	keyMemo *memo.Cache[[]byte]
}

func New(opts Options) (*Service, error) {
	paths, err := memo.New[string](opts.MemoCapacity)
	if err != nil {
		return nil, err
	}
	keyMemo, err := memo.New[[]byte](opts.MemoCapacity)
	if err != nil {
		paths.Close()
		return nil, err
	}
	s := &Service{
		Account: opts.Account,
		paths:   paths,
		keyMemo: keyMemo,
	}

	root := opts.Root
	accountDir := ""
	if a := opts.Account; a != nil {
		accountDir = a.Dir
		if root == "" {
			root = a.DataDir
		}
		if root == "" && a.DBStorageDir != "" {
			root = filepath.Dir(a.DBStorageDir)
		}
	}

	s.Keys = keyring.NewRecoverer(root, accountDir, opts.KeySource, keyMemo)
	s.Decoder = &dat.Decoder{Keys: s.Keys, Wxgf: opts.Wxgf}

	if a := opts.Account; a != nil {
		s.Cache = resource.New(a.ResourceDir())
		s.Resolver = resolve.New(root, a.ExtraRoots(), nil, s.Cache, paths)

		if db, err := hardlink.Open(a.HardlinkPath()); err != nil {
			log.Debug().Err(err).Str("account", a.Name).Msg("hardlink index unavailable")
		} else {
			s.index = db
			s.Resolver.Index = db
		}
	}
	return s, nil
}

func (s *Service) Close() error {
	s.paths.Close()
	s.keyMemo.Close()
	if s.index != nil {
		return s.index.Close()
	}
	return nil
}

// Open returns the media of req. A resource that could not be decrypted is
// still returned with the source bytes, together with the reason.
func (s *Service) Open(ctx context.Context, req resolve.Request) (*Resource, error) {
	if s.Resolver == nil {
		return nil, ErrNoAccount
	}
	r, err := s.Resolver.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(r.Path)
	if err != nil {
		return nil, err
	}

	res := &Resource{
		MD5:  req.MD5,
		Path: r.Path,
		Data: data,
		Via:  r.Via,
	}
	logger := log.With().Str("md5", req.MD5).Str("kind", string(req.Kind)).Str("path", r.Path).Logger()

	if r.Cached() {
		res.MediaType = sniff.MediaType(data)
		if res.MediaType == sniff.OctetStream {
			res.MediaType = sniff.TypeByName(r.Path)
		}
		return res, nil
	}
	if req.Kind == resolve.File {
		res.MediaType = sniff.TypeByName(r.Path)
		return res, nil
	}

	decoded, err := s.Decoder.Decode(ctx, data, r.Path)
	res.Data = decoded.Data
	res.MediaType = decoded.MediaType
	if err != nil {
		logger.Debug().Err(err).Str("generation", decoded.Descriptor.Generation.String()).Msg("serving source bytes")
		return res, err
	}

	if req.MD5 != "" {
		if p, err := s.Cache.Store(req.MD5, decoded.Data, decoded.MediaType, r.Path); err != nil {
			logger.Warn().Err(err).Msg("failed to store resource")
		} else {
			res.Path = p
		}
	}
	return res, nil
}

// Decode decrypts a container read from a file called name.
func (s *Service) Decode(ctx context.Context, data []byte, name string) (*dat.Result, error) {
	return s.Decoder.Decode(ctx, data, name)
}

// Export decrypts a collected source file into the resource cache and
// returns the stored path. Already stored resources are skipped.
func (s *Service) Export(ctx context.Context, f resolve.SourceFile) (string, error) {
	if s.Cache == nil {
		return "", ErrNoAccount
	}
	if p, ok := s.Cache.Lookup(f.MD5); ok {
		return p, nil
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", mediaError("empty file: " + f.Path)
	}

	res, err := s.Decoder.Decode(ctx, data, f.Path)
	if err != nil {
		log.Debug().Err(err).Str("path", f.Path).Msg("export skipped")
		return "", err
	}
	return s.Cache.Store(f.MD5, res.Data, res.MediaType, f.Path)
}

// IsUnavailable reports whether err only means the media cannot be served
// right now, as opposed to an I/O or programming error.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrKeyUnavailable) ||
		errors.Is(err, ErrUnrecognized) ||
		errors.Is(err, ErrNoDecoder)
}
