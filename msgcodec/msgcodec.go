// Package msgcodec decodes message content as stored in the message
// database: either plain UTF-8 or a zstd frame.
package msgcodec

import (
	"bytes"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var Magic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var (
	once    sync.Once
	decoder *zstd.Decoder
	encoder *zstd.Encoder
	initErr error
)

func codecs() error {
	once.Do(func() {
		if decoder, initErr = zstd.NewReader(nil); initErr != nil {
			return
		}
		encoder, initErr = zstd.NewWriter(nil)
	})
	return initErr
}

// IsCompressed reports whether b starts a zstd frame.
func IsCompressed(b []byte) bool {
	return bytes.HasPrefix(b, Magic)
}

// Bytes returns b decompressed when it is a zstd frame and b itself
// otherwise.
func Bytes(b []byte) ([]byte, error) {
	if !IsCompressed(b) {
		return b, nil
	}
	if err := codecs(); err != nil {
		return nil, err
	}
	return decoder.DecodeAll(b, nil)
}

// Decode returns the text of a message row. compressed is the
// compress_content column and takes precedence over message_content. A frame
// that fails to decompress is returned as is.
func Decode(compressed, content []byte) string {
	b := content
	if len(compressed) > 0 {
		b = compressed
	}
	out, err := Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

// DecodeHex decodes hex-encoded content, ignoring whitespace.
func DecodeHex(s string) (string, error) {
	b, err := ParseHex(s)
	if err != nil {
		return "", err
	}
	out, err := Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Encode returns text as stored by the client, zstd compressed if compress
// is set.
func Encode(text string, compress bool) ([]byte, error) {
	if !compress {
		return []byte(text), nil
	}
	if err := codecs(); err != nil {
		return nil, err
	}
	return encoder.EncodeAll([]byte(text), nil), nil
}

func ParseHex(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
			return -1
		}
		return r
	}, s)
	return hex.DecodeString(clean)
}
