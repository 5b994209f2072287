package dat

import (
	"context"
	"fmt"

	"github.com/YoshihikoAbe/wxmedia/sniff"
	"github.com/YoshihikoAbe/wxmedia/wxgf"
	"github.com/rs/zerolog/log"
)

// KeyProvider supplies the key material of a source root. Implementations
// return an error when a key cannot be recovered; it is never guessed.
type KeyProvider interface {
	XORKey(ctx context.Context) (byte, error)
	AESKey(ctx context.Context) ([]byte, error)
}

type Result struct {
	Data       []byte
	MediaType  string
	Descriptor Descriptor
}

// Decoder turns container bytes into media bytes.
type Decoder struct {
	Keys KeyProvider
	// Wxgf converts vendor compressed images. May be nil.
	Wxgf wxgf.Decoder
}

// Decode classifies b and applies the matching transform. On failure the
// returned Result still carries b with a media type guessed from name, so
// callers can fall back to serving the raw bytes.
func (d *Decoder) Decode(ctx context.Context, b []byte, name string) (*Result, error) {
	res, err := d.decode(ctx, b, 0)
	if err != nil {
		return &Result{
			Data:       b,
			MediaType:  sniff.TypeByName(name),
			Descriptor: Classify(b),
		}, err
	}
	return res, nil
}

func (d *Decoder) decode(ctx context.Context, b []byte, depth int) (*Result, error) {
	desc := Classify(b)
	logger := log.With().Str("generation", desc.Generation.String()).Int("size", len(b)).Logger()

	switch desc.Generation {
	case Plain:
		return &Result{Data: b, MediaType: sniff.ImageType(b), Descriptor: desc}, nil

	case Wxgf:
		out, err := wxgf.Convert(d.Wxgf, b[desc.Offset:])
		if err != nil {
			logger.Debug().Err(err).Int("offset", desc.Offset).Msg("vendor image not converted")
			return nil, fmt.Errorf("%w: %w", ErrUnrecognized, err)
		}
		return &Result{Data: out, MediaType: sniff.ImageType(out), Descriptor: desc}, nil

	case V1, V2:
		xorKey, err := d.xorKey(ctx, b)
		if err != nil {
			return nil, err
		}
		aesKey := V1Key
		if desc.Generation == V2 {
			if d.Keys == nil {
				return nil, datError("no key provider")
			}
			if aesKey, err = d.Keys.AESKey(ctx); err != nil {
				return nil, err
			}
		}
		out, err := DecryptV4(b, xorKey, aesKey)
		if err != nil {
			return nil, err
		}
		if res, ok := d.finish(out, desc); ok {
			return res, nil
		}
		logger.Debug().Msg("decrypted container has no media signature")
		return nil, ErrUnrecognized

	case XOR:
		if d.Keys != nil {
			key, err := d.Keys.XORKey(ctx)
			if err == nil {
				if res, ok := d.finish(DecryptXOR(b, key), desc); ok {
					res.Descriptor.XORKey = key
					return res, nil
				}
				logger.Debug().Uint8("key", key).Msg("xor key did not produce media")
			} else {
				logger.Debug().Err(err).Msg("xor key unavailable")
			}
		}
		return d.secondary(ctx, b, desc, depth)
	}
	return nil, ErrUnrecognized
}

// secondary runs when the container could not be decoded with the recovered
// keys: first the signature aligned single byte keys, then every key.
func (d *Decoder) secondary(ctx context.Context, b []byte, desc Descriptor, depth int) (*Result, error) {
	if key, offset, ok := MagicXOR(b); ok {
		decoded := DecryptXOR(b, key)
		// only the vendor marker may sit behind a prefix
		if sniff.IsWxgf(decoded[offset:]) {
			decoded = decoded[offset:]
		}
		if res, ok := d.finish(decoded, desc); ok {
			res.Descriptor.XORKey = key
			return res, nil
		}
		log.Debug().Uint8("key", key).Int("offset", offset).Msg("aligned xor key did not produce media")
	}
	if depth > 0 {
		return nil, ErrUnrecognized
	}

	var res *Result
	_, ok := Bruteforce(b, func(key byte) bool {
		decoded := DecryptXOR(b, key)
		inner := Classify(decoded)
		switch inner.Generation {
		case XOR, Unknown:
			r, ok := d.finish(decoded, inner)
			if ok {
				res = r
			}
		default:
			r, err := d.decode(ctx, decoded, depth+1)
			if err != nil {
				log.Debug().Err(err).Uint8("key", key).Msg("bruteforce candidate rejected")
				return false
			}
			res = r
		}
		if res == nil {
			return false
		}
		res.Descriptor.Obfuscated = key != 0
		res.Descriptor.XORKey = key
		return true
	})
	if !ok {
		return nil, ErrUnrecognized
	}
	return res, nil
}

// finish accepts a transformed stream once it starts with, or contains near
// its start, a known media signature. Vendor compressed output is converted.
func (d *Decoder) finish(out []byte, desc Descriptor) (*Result, bool) {
	if i := sniff.IndexWxgf(out); i >= 0 {
		converted, err := wxgf.Convert(d.Wxgf, out[i:])
		if err == nil {
			return &Result{Data: converted, MediaType: sniff.ImageType(converted), Descriptor: desc}, true
		}
		log.Debug().Err(err).Int("offset", i).Msg("vendor image not converted")
	}

	stripped, ok := sniff.StripPrefix(out)
	if !ok {
		return nil, false
	}
	mt := sniff.MediaType(stripped)
	if mt == sniff.OctetStream {
		// the vendor marker itself is a known signature but not media
		return nil, false
	}
	return &Result{Data: stripped, MediaType: mt, Descriptor: desc}, true
}

func (d *Decoder) xorKey(ctx context.Context, b []byte) (byte, error) {
	// a container without an XOR segment does not need the key
	if len(b) >= HeaderSize && b[10]|b[11]|b[12]|b[13] == 0 {
		return 0, nil
	}
	if d.Keys == nil {
		return 0, datError("no key provider")
	}
	return d.Keys.XORKey(ctx)
}
