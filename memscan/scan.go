package memscan

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// overlap is carried from one chunk into the next so that a key straddling
// the chunk boundary is still seen whole.
const overlap = 64

// FindKey scans the regions of p in parallel and returns the first candidate
// accepted by validate. Workers stop at the next chunk once a key is found.
func (s *Scanner) FindKey(ctx context.Context, p Process, validate func([]byte) bool) ([]byte, error) {
	all, err := p.Regions()
	if err != nil {
		return nil, err
	}

	maxRegion := s.MaxRegion
	if maxRegion == 0 {
		maxRegion = DefaultMaxRegion
	}
	regions := all[:0:0]
	for _, r := range all {
		if r.Size > 0 && r.Size <= maxRegion {
			regions = append(regions, r)
		}
	}
	log.Debug().Int("regions", len(regions)).Int("skipped", len(all)-len(regions)).Msg("scanning process memory")

	workers := s.Workers
	if workers < 1 || workers > MaxWorkers {
		workers = MaxWorkers
	}
	if workers > len(regions) {
		workers = max(1, len(regions))
	}

	var (
		stop   atomic.Bool
		once   sync.Once
		result []byte
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, r := range regions {
		if stop.Load() || gctx.Err() != nil {
			break
		}
		r := r
		g.Go(func() error {
			if key := s.scanRegion(gctx, p, r, validate, &stop); key != nil {
				once.Do(func() { result = key })
				stop.Store(true)
			}
			return nil
		})
	}
	g.Wait()

	if result != nil {
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, ErrNotFound
}

func (s *Scanner) scanRegion(ctx context.Context, p Process, r Region, validate func([]byte) bool, stop *atomic.Bool) []byte {
	chunk := uint64(s.ChunkSize)
	if chunk == 0 {
		chunk = DefaultChunkSize
	}
	buf := make([]byte, min(chunk, r.Size))

	var tail []byte
	for off := uint64(0); off < r.Size; off += chunk {
		if stop.Load() || ctx.Err() != nil {
			return nil
		}
		size := min(chunk, r.Size-off)
		n, err := p.ReadAt(buf[:size], r.Base+off)
		if n <= 0 {
			// unreadable pages do not end the region
			if err != nil {
				log.Trace().Err(err).Uint64("addr", r.Base+off).Msg("read failed")
			}
			tail = nil
			continue
		}

		data := append(tail, buf[:n]...)
		if key := scanBuffer(data, validate); key != nil {
			return key
		}
		tail = append([]byte(nil), data[max(0, len(data)-overlap):]...)
	}
	return nil
}

// scanBuffer looks for runs of exactly 16 or 32 ASCII letters and digits. A
// 32 character run is tried as two 16 byte keys.
func scanBuffer(data []byte, validate func([]byte) bool) []byte {
	for i := 0; i < len(data); {
		if !isAlnum(data[i]) {
			i++
			continue
		}
		j := i
		for j < len(data) && isAlnum(data[j]) {
			j++
		}

		var candidates [][]byte
		switch j - i {
		case 32:
			candidates = [][]byte{data[i : i+16], data[i+16 : j]}
		case 16:
			candidates = [][]byte{data[i:j]}
		}
		for _, c := range candidates {
			if validate(c) {
				return append([]byte(nil), c...)
			}
		}
		i = j
	}
	return nil
}

func isAlnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
