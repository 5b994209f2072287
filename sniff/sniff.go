package sniff

import (
	"bytes"
	"path/filepath"
	"strings"
)

const (
	// HeadSize is how much of a file is inspected when classifying it.
	HeadSize = 256 << 10
	// SearchSize bounds how far into the head a signature is searched for.
	SearchSize = 128 << 10

	OctetStream = "application/octet-stream"
)

var (
	PNG    = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	JPEG   = []byte{0xff, 0xd8, 0xff}
	GIF87a = []byte("GIF87a")
	GIF89a = []byte("GIF89a")
	RIFF   = []byte("RIFF")
	WEBP   = []byte("WEBP")
	Ftyp   = []byte("ftyp")
	Wxgf   = []byte("wxgf")
)

var imageSignatures = [][]byte{PNG, JPEG, GIF87a, GIF89a}

// ImageType returns the media type of b when it starts with an image
// signature, or the empty string.
func ImageType(b []byte) string {
	switch {
	case bytes.HasPrefix(b, PNG):
		return "image/png"
	case bytes.HasPrefix(b, JPEG):
		return "image/jpeg"
	case bytes.HasPrefix(b, GIF87a), bytes.HasPrefix(b, GIF89a):
		return "image/gif"
	case isWebP(b):
		return "image/webp"
	}
	return ""
}

func MediaType(b []byte) string {
	if mt := ImageType(b); mt != "" {
		return mt
	}
	if isMP4(b) {
		return "video/mp4"
	}
	return OctetStream
}

// IsKnownPlaintext reports whether b looks like the first block of a
// decrypted media payload.
func IsKnownPlaintext(b []byte) bool {
	return ImageType(b) != "" || bytes.HasPrefix(b, Wxgf) || isMP4(b)
}

func IsWxgf(b []byte) bool {
	return bytes.HasPrefix(b, Wxgf)
}

// IndexWxgf returns the offset of the vendor marker within the first
// SearchSize bytes of b, or -1.
func IndexWxgf(b []byte) int {
	return bytes.Index(limit(b, SearchSize+len(Wxgf)), Wxgf)
}

// StripPrefix drops any junk that precedes a media payload. The payload must
// begin within the first SearchSize bytes. ok is false when no known
// signature was found.
func StripPrefix(b []byte) (out []byte, ok bool) {
	if IsKnownPlaintext(b) {
		return b, true
	}
	head := limit(b, HeadSize)

	best := -1
	for _, sig := range imageSignatures {
		if i := bytes.Index(limit(head, SearchSize+len(sig)), sig); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	if best >= 0 {
		return b[best:], true
	}

	if i := bytes.Index(limit(head, SearchSize+12), RIFF); i >= 0 && isWebP(b[i:]) {
		return b[i:], true
	}
	if i := bytes.Index(limit(head, SearchSize+8), Ftyp); i >= 4 {
		return b[i-4:], true
	}
	return nil, false
}

// Extension maps a media type to the file extension used for it.
func Extension(mediaType string) string {
	switch mediaType {
	case "image/jpeg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	case "video/mp4":
		return "mp4"
	}
	return ""
}

// TypeByName guesses a media type from a file name.
func TypeByName(name string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "mp4":
		return "video/mp4"
	}
	return OctetStream
}

func isWebP(b []byte) bool {
	return len(b) >= 12 && bytes.HasPrefix(b, RIFF) && bytes.Equal(b[8:12], WEBP)
}

func isMP4(b []byte) bool {
	return len(b) >= 8 && bytes.Equal(b[4:8], Ftyp)
}

func limit(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
