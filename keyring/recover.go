package keyring

import (
	"context"
	"crypto/aes"
	"fmt"
	"sync"

	"github.com/YoshihikoAbe/wxmedia/memo"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Recoverer supplies the keys of one source root. The XOR key comes from
// template statistics, falling back to the account's key file. The AES key
// comes from the key file, and otherwise from Source, after which it is
// written back to the key file. Source is consulted at most once at a time,
// and not again after it failed.
type Recoverer struct {
	Root       string
	AccountDir string
	Source     KeySource

	cache *memo.Cache[[]byte]
	group singleflight.Group

	mu     sync.Mutex
	srcErr error
}

// NewRecoverer creates a Recoverer. cache may be shared between recoverers of
// different roots and may be nil.
func NewRecoverer(root, accountDir string, src KeySource, cache *memo.Cache[[]byte]) *Recoverer {
	return &Recoverer{
		Root:       root,
		AccountDir: accountDir,
		Source:     src,
		cache:      cache,
	}
}

func (r *Recoverer) XORKey(ctx context.Context) (byte, error) {
	if tail, ok := r.tail(); ok {
		if key, ok := XORFromTail(tail); ok {
			return key, nil
		}
		log.Debug().Str("root", r.Root).Hex("tail", tail).Msg("template tail checks disagree")
	}

	if r.AccountDir != "" {
		m, err := Load(r.AccountDir)
		if err != nil {
			log.Debug().Err(err).Str("account", r.AccountDir).Msg("failed to read key file")
		} else if m.HasXOR {
			log.Debug().Str("account", r.AccountDir).Msg("using xor key from key file")
			return m.XOR, nil
		}
	}
	return 0, ErrKeyUnavailable
}

func (r *Recoverer) AESKey(ctx context.Context) ([]byte, error) {
	cacheKey := "aes|" + r.Root
	if key, ok := r.cache.Get(cacheKey); ok {
		return key, nil
	}
	v, err, _ := r.group.Do(cacheKey, func() (interface{}, error) {
		return r.recoverAES(ctx, cacheKey)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (r *Recoverer) recoverAES(ctx context.Context, cacheKey string) ([]byte, error) {
	var saved Material
	if r.AccountDir != "" {
		m, err := Load(r.AccountDir)
		if err != nil {
			log.Debug().Err(err).Str("account", r.AccountDir).Msg("failed to read key file")
		}
		if len(m.AES) >= aes.BlockSize {
			r.cache.Set(cacheKey, m.AES)
			return m.AES, nil
		}
		saved = m
	}

	if r.Source == nil {
		return nil, ErrKeyUnavailable
	}
	r.mu.Lock()
	srcErr := r.srcErr
	r.mu.Unlock()
	if srcErr != nil {
		return nil, srcErr
	}

	files, err := Templates(r.Root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyUnavailable, err)
	}
	tail, _ := r.tail()
	ct, ok := V2Ciphertext(files, tail)
	if !ok {
		log.Debug().Str("root", r.Root).Msg("no v2 template found")
		return nil, ErrKeyUnavailable
	}

	key, err := r.Source.AESKey(ctx, ct)
	if err == nil && !Validate(ct, key) {
		err = keyringError("recovered key does not decrypt the template")
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrKeyUnavailable, err)
		if ctx.Err() == nil {
			r.mu.Lock()
			r.srcErr = err
			r.mu.Unlock()
		}
		return nil, err
	}
	key = key[:aes.BlockSize]
	log.Info().Str("root", r.Root).Msg("recovered aes key")
	r.cache.Set(cacheKey, key)

	if r.AccountDir != "" {
		saved.AES = key
		if xor, err := r.XORKey(ctx); err == nil {
			saved.XOR, saved.HasXOR = xor, true
		}
		if err := Save(r.AccountDir, saved); err != nil {
			log.Warn().Err(err).Str("account", r.AccountDir).Msg("failed to save key file")
		}
	}
	return key, nil
}

// Material returns whatever keys can be recovered right now.
func (r *Recoverer) Material(ctx context.Context) Material {
	var m Material
	if key, err := r.XORKey(ctx); err == nil {
		m.XOR, m.HasXOR = key, true
	}
	if key, err := r.AESKey(ctx); err == nil {
		m.AES = key
	}
	return m
}

func (r *Recoverer) tail() ([]byte, bool) {
	cacheKey := "tail|" + r.Root
	if tail, ok := r.cache.Get(cacheKey); ok {
		return tail, true
	}
	files, err := Templates(r.Root)
	if err != nil {
		log.Debug().Err(err).Str("root", r.Root).Msg("failed to list templates")
		return nil, false
	}
	tail, ok := TailMode(files)
	if ok {
		r.cache.Set(cacheKey, tail)
	}
	return tail, ok
}
