// Package memscan recovers the AES key of V2 containers from the memory of a
// running client process.
package memscan

import (
	"context"

	"github.com/YoshihikoAbe/wxmedia/keyring"
	"github.com/rs/zerolog/log"
)

type memscanError string

func (e memscanError) Error() string {
	return "wxmedia/memscan: " + string(e)
}

const (
	ErrUnsupported = memscanError("memory scanning is not supported on this platform")
	ErrNoProcess   = memscanError("no client process found")
	ErrNotFound    = memscanError("no key found in process memory")

	DefaultMaxRegion = 100 << 20
	DefaultChunkSize = 4 << 20
	MaxWorkers       = 32
)

var (
	// DefaultNames are matched exactly, in order of preference.
	DefaultNames = []string{"weixin.exe", "wechat.exe", "wechatappex.exe", "wechatapp.exe"}
	// DefaultPrefixes catch any other client process.
	DefaultPrefixes = []string{"wechat", "weixin"}
)

// A Region is a committed, private, readable range of a process's address
// space.
type Region struct {
	Base uint64
	Size uint64
}

// A Process is an open handle on another process's memory.
type Process interface {
	Regions() ([]Region, error)
	ReadAt(b []byte, addr uint64) (int, error)
	Close() error
}

// Scanner searches client processes for the AES key. It implements
// keyring.KeySource.
type Scanner struct {
	Names     []string
	Prefixes  []string
	MaxRegion uint64
	ChunkSize int
	// Workers caps the number of regions scanned at once. Values below one
	// mean MaxWorkers.
	Workers int

	Find func(ctx context.Context, names, prefixes []string) ([]int32, error)
	Open func(pid int32) (Process, error)
}

func New() *Scanner {
	return &Scanner{
		Names:     DefaultNames,
		Prefixes:  DefaultPrefixes,
		MaxRegion: DefaultMaxRegion,
		ChunkSize: DefaultChunkSize,
		Find:      FindProcesses,
		Open:      OpenProcess,
	}
}

func (s *Scanner) AESKey(ctx context.Context, ciphertext []byte) ([]byte, error) {
	pids, err := s.Find(ctx, s.Names, s.Prefixes)
	if err != nil {
		return nil, err
	}
	if len(pids) == 0 {
		return nil, ErrNoProcess
	}

	validate := func(key []byte) bool {
		return keyring.Validate(ciphertext, key)
	}
	for _, pid := range pids {
		key, err := s.scanPID(ctx, pid, validate)
		if err == nil {
			log.Info().Int32("pid", pid).Msg("found aes key in process memory")
			return key, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Debug().Err(err).Int32("pid", pid).Msg("process scan failed")
	}
	return nil, ErrNotFound
}

func (s *Scanner) scanPID(ctx context.Context, pid int32, validate func([]byte) bool) ([]byte, error) {
	p, err := s.Open(pid)
	if err != nil {
		return nil, err
	}
	defer p.Close()
	return s.FindKey(ctx, p, validate)
}

var _ keyring.KeySource = (*Scanner)(nil)
