package dat

import (
	"bytes"

	"github.com/YoshihikoAbe/wxmedia/sniff"
)

type datError string

func (e datError) Error() string {
	return "wxmedia/dat: " + string(e)
}

const (
	// ErrUnrecognized is returned when no transform produced a known media
	// signature.
	ErrUnrecognized = datError("unrecognized container")

	// HeaderSize is the size of the V1/V2 container header: a six byte
	// signature, the AES and XOR segment lengths, and one reserved byte.
	HeaderSize = 15
)

var (
	SigV1 = []byte{0x07, 0x08, 'V', '1', 0x08, 0x07}
	SigV2 = []byte{0x07, 0x08, 'V', '2', 0x08, 0x07}

	// V1Key is the fixed AES key shared by every V1 container.
	V1Key = []byte("cfcd208495d565ef")
)

type Generation int

const (
	Unknown Generation = iota
	Plain
	XOR
	V1
	V2
	Wxgf
)

func (g Generation) String() string {
	switch g {
	case Plain:
		return "plain"
	case XOR:
		return "xor"
	case V1:
		return "aes-v1"
	case V2:
		return "aes-v2"
	case Wxgf:
		return "wxgf"
	}
	return "unknown"
}

type Descriptor struct {
	Generation Generation
	Signature  []byte
	// Offset is where the payload starts: the prefix length in front of a
	// plain image or of the vendor marker.
	Offset int

	// Set by the brute-force pass when the whole stream was XORed with a
	// single byte before anything else happened to it.
	Obfuscated bool
	XORKey     byte
}

// Classify inspects the head of a file. It never fails: streams that carry no
// recognizable structure are reported as generation 0 (XOR) containers, and
// streams too short to hold a signature as Unknown.
func Classify(b []byte) Descriptor {
	if len(b) > sniff.HeadSize {
		b = b[:sniff.HeadSize]
	}

	if sniff.ImageType(b) != "" {
		return Descriptor{Generation: Plain, Signature: signature(b)}
	}
	if i := sniff.IndexWxgf(b); i >= 0 {
		return Descriptor{Generation: Wxgf, Signature: sniff.Wxgf, Offset: i}
	}

	switch Version(b) {
	case 1:
		return Descriptor{Generation: V1, Signature: SigV1}
	case 2:
		return Descriptor{Generation: V2, Signature: SigV2}
	case 0:
		return Descriptor{Generation: XOR, Signature: signature(b)}
	}
	return Descriptor{Generation: Unknown}
}

// Version returns the container version stored in the header: 1 or 2 for the
// hybrid containers, 0 for anything else, -1 if b is too short.
func Version(b []byte) int {
	if len(b) < len(SigV1) {
		return -1
	}
	switch {
	case bytes.HasPrefix(b, SigV1):
		return 1
	case bytes.HasPrefix(b, SigV2):
		return 2
	}
	return 0
}

func signature(b []byte) []byte {
	n := len(SigV1)
	if len(b) < n {
		n = len(b)
	}
	return append([]byte(nil), b[:n]...)
}
