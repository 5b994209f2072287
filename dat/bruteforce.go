package dat

import (
	"bytes"

	"github.com/YoshihikoAbe/wxmedia/sniff"
)

const previewSize = 8192

type alignedMagic struct {
	offset int
	magic  []byte
}

var alignedMagics = func() []alignedMagic {
	magics := []alignedMagic{
		{0, sniff.PNG},
		{0, sniff.JPEG},
		{0, sniff.GIF87a},
		{0, sniff.GIF89a},
	}
	for i := 0; i < 16; i++ {
		magics = append(magics, alignedMagic{i, sniff.Wxgf})
	}
	return append(magics, alignedMagic{0, sniff.RIFF}, alignedMagic{4, sniff.Ftyp})
}()

var bruteforceMagics = [][]byte{
	sniff.Wxgf,
	sniff.PNG,
	sniff.JPEG,
	sniff.GIF87a,
	sniff.GIF89a,
	sniff.RIFF,
	sniff.Ftyp,
	SigV1,
	SigV2,
}

// MagicXOR looks for a single byte key that turns the start of b into a known
// media signature. Each candidate is tried at a fixed offset, so a match is
// checked over the whole signature rather than guessed from one byte.
func MagicXOR(b []byte) (key byte, offset int, ok bool) {
	for _, c := range alignedMagics {
		if len(b) < c.offset+len(c.magic) {
			continue
		}
		k := b[c.offset] ^ c.magic[0]
		match := true
		for i, m := range c.magic {
			if b[c.offset+i]^k != m {
				match = false
				break
			}
		}
		if !match {
			continue
		}

		// RIFF alone is not enough
		if bytes.Equal(c.magic, sniff.RIFF) {
			if len(b) < 12 || !bytes.Equal(DecryptXOR(b[8:12], k), sniff.WEBP) {
				continue
			}
		}
		return k, c.offset, true
	}
	return 0, 0, false
}

// Bruteforce tries all 256 single byte keys over the first few kilobytes of b.
// Every key whose decoding shows a known signature is handed to accept, and
// the first accepted key is returned.
func Bruteforce(b []byte, accept func(key byte) bool) (byte, bool) {
	preview := b
	if len(preview) > previewSize {
		preview = preview[:previewSize]
	}
	if len(preview) == 0 {
		return 0, false
	}

	buf := make([]byte, len(preview))
	for k := 0; k < 256; k++ {
		for i, c := range preview {
			buf[i] = c ^ byte(k)
		}
		for _, magic := range bruteforceMagics {
			if bytes.Contains(buf, magic) {
				if accept(byte(k)) {
					return byte(k), true
				}
				break
			}
		}
	}
	return 0, false
}
