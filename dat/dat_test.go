package dat

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/YoshihikoAbe/wxmedia/sniff"
	"github.com/YoshihikoAbe/wxmedia/wxgf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyError = datError("test: key unavailable")

type staticKeys struct {
	xor    byte
	xorErr error
	aes    []byte
	aesErr error
}

func (k staticKeys) XORKey(ctx context.Context) (byte, error) {
	return k.xor, k.xorErr
}

func (k staticKeys) AESKey(ctx context.Context) ([]byte, error) {
	return k.aes, k.aesErr
}

type fakeWxgf struct {
	out   []byte
	mode  int
	calls []int
}

func (f *fakeWxgf) Decode(payload []byte, mode int) ([]byte, error) {
	f.calls = append(f.calls, mode)
	if mode != f.mode {
		return nil, errors.New("unsupported mode")
	}
	return f.out, nil
}

// testJPEG returns a JPEG-looking payload whose body holds none of the
// signatures the classifier looks for.
func testJPEG(size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = byte(i % 16)
	}
	copy(b, []byte{0xff, 0xd8, 0xff, 0xe0})
	copy(b[len(b)-2:], []byte{0xff, 0xd9})
	return b
}

func TestClassifyPlainIsIdentity(t *testing.T) {
	for name, b := range map[string][]byte{
		"png":  append(append([]byte(nil), sniff.PNG...), 1, 2, 3),
		"jpeg": testJPEG(64),
		"gif":  []byte("GIF89a........"),
		"webp": []byte("RIFF\x10\x00\x00\x00WEBPVP8 "),
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, Plain, Classify(b).Generation)

			res, err := (&Decoder{}).Decode(context.Background(), b, "x.dat")
			require.NoError(t, err)
			assert.Equal(t, b, res.Data)
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, V1, Classify(append(append([]byte(nil), SigV1...), make([]byte, 32)...)).Generation)
	assert.Equal(t, V2, Classify(append(append([]byte(nil), SigV2...), make([]byte, 32)...)).Generation)
	assert.Equal(t, XOR, Classify([]byte{1, 2, 3, 4, 5, 6, 7}).Generation)
	assert.Equal(t, Unknown, Classify([]byte{1, 2}).Generation)

	d := Classify([]byte("\x00\x00\x00wxgf...."))
	assert.Equal(t, Wxgf, d.Generation)
	assert.Equal(t, 3, d.Offset)
}

func TestXORRoundTrip(t *testing.T) {
	plain := testJPEG(4096)
	const key = 0x42
	enc := DecryptXOR(plain, key)

	assert.Equal(t, plain, DecryptXOR(enc, key))
	for k := 0; k < 256; k++ {
		if k == key {
			continue
		}
		assert.Empty(t, sniff.ImageType(DecryptXOR(enc, byte(k))), "key %#x", k)
	}
}

func TestDecodeXOR(t *testing.T) {
	plain := testJPEG(4096)
	enc := DecryptXOR(plain, 0x42)

	res, err := (&Decoder{Keys: staticKeys{xor: 0x42}}).Decode(context.Background(), enc, "a.dat")
	require.NoError(t, err)
	assert.Equal(t, plain, res.Data)
	assert.Equal(t, "image/jpeg", res.MediaType)
	assert.Equal(t, XOR, res.Descriptor.Generation)

	// without a key the aligned signature pass finds it
	res, err = (&Decoder{Keys: staticKeys{xorErr: testKeyError}}).Decode(context.Background(), enc, "a.dat")
	require.NoError(t, err)
	assert.Equal(t, plain, res.Data)
	assert.EqualValues(t, 0x42, res.Descriptor.XORKey)
}

func TestDecodeXORVideoWithoutKey(t *testing.T) {
	plain := make([]byte, 4096)
	for i := range plain {
		plain[i] = byte(i % 16)
	}
	copy(plain, []byte{0, 0, 0, 0x20})
	copy(plain[4:], sniff.Ftyp)
	copy(plain[8:], "isom")
	enc := DecryptXOR(plain, 0x42)
	// decodes to a JPEG marker under key 0x01
	copy(enc[200:], []byte{0xfe, 0xd9, 0xfe, 0xe1})
	plain = DecryptXOR(enc, 0x42)

	res, err := (&Decoder{Keys: staticKeys{xorErr: testKeyError}}).Decode(context.Background(), enc, "a.dat")
	require.NoError(t, err)
	assert.Equal(t, "video/mp4", res.MediaType)
	assert.Equal(t, plain, res.Data)
	assert.EqualValues(t, 0x42, res.Descriptor.XORKey)
	assert.False(t, res.Descriptor.Obfuscated)
}

func TestDecodeV1(t *testing.T) {
	plain := testJPEG(4096)
	enc, err := EncryptV4(plain, SigV1, 0x37, V1Key, 1024, 512)
	require.NoError(t, err)

	res, err := (&Decoder{Keys: staticKeys{xor: 0x37}}).Decode(context.Background(), enc, "a.dat")
	require.NoError(t, err)
	assert.Equal(t, plain, res.Data)
	assert.Equal(t, V1, res.Descriptor.Generation)
}

func TestDecodeV2(t *testing.T) {
	plain := testJPEG(4096)
	key := []byte("0123456789abcdef")
	enc, err := EncryptV4(plain, SigV2, 0x37, key, 1024, 512)
	require.NoError(t, err)

	res, err := (&Decoder{Keys: staticKeys{xor: 0x37, aes: key}}).Decode(context.Background(), enc, "a.dat")
	require.NoError(t, err)
	assert.Equal(t, plain, res.Data)

	res, err = (&Decoder{Keys: staticKeys{xor: 0x37, aesErr: testKeyError}}).Decode(context.Background(), enc, "a.dat")
	assert.ErrorIs(t, err, testKeyError)
	assert.Equal(t, enc, res.Data)
	assert.Equal(t, sniff.OctetStream, res.MediaType)
}

func TestDecryptV4AlignedSegment(t *testing.T) {
	plain := testJPEG(256)
	enc, err := EncryptV4(plain, SigV1, 0, V1Key, 32, 0)
	require.NoError(t, err)
	// a full block of padding follows block aligned plaintext
	assert.Len(t, enc, HeaderSize+48+len(plain)-32)

	out, err := DecryptV4(enc, 0, V1Key)
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

func TestDecryptV4Truncated(t *testing.T) {
	_, err := DecryptV4(SigV1, 0, V1Key)
	assert.Error(t, err)
}

func TestDecryptV4HostileHeader(t *testing.T) {
	enc, err := EncryptV4(testJPEG(256), SigV1, 0x37, V1Key, 64, 32)
	require.NoError(t, err)

	b := append([]byte(nil), enc...)
	binary.LittleEndian.PutUint32(b[6:], 0xffffffff)
	binary.LittleEndian.PutUint32(b[10:], 0xffffffff)
	_, err = DecryptV4(b, 0x37, V1Key)
	assert.Error(t, err)

	binary.LittleEndian.PutUint32(b[10:], 0)
	assert.NotPanics(t, func() {
		DecryptV4(b, 0x37, V1Key)
	})
}

func TestDecodeObfuscatedContainer(t *testing.T) {
	plain := testJPEG(4096)
	enc, err := EncryptV4(plain, SigV1, 0x37, V1Key, 64, 512)
	require.NoError(t, err)
	obfuscated := DecryptXOR(enc, 0x5a)

	res, err := (&Decoder{Keys: staticKeys{xor: 0x37}}).Decode(context.Background(), obfuscated, "a.dat")
	require.NoError(t, err)
	assert.Equal(t, plain, res.Data)
	assert.True(t, res.Descriptor.Obfuscated)
	assert.EqualValues(t, 0x5a, res.Descriptor.XORKey)
}

func TestDecodeStripsPrefix(t *testing.T) {
	png := append(append([]byte(nil), sniff.PNG...), bytes.Repeat([]byte{0x10}, 64)...)
	b := append(make([]byte, 100), png...)

	res, err := (&Decoder{}).Decode(context.Background(), b, "a.dat")
	require.NoError(t, err)
	assert.Equal(t, png, res.Data)
	assert.Equal(t, "image/png", res.MediaType)
	assert.False(t, res.Descriptor.Obfuscated)
}

func TestDecodeWxgf(t *testing.T) {
	img := testJPEG(128)
	dec := &fakeWxgf{out: img, mode: 3}
	b := append([]byte("wxgf"), bytes.Repeat([]byte{0x01}, 64)...)

	res, err := (&Decoder{Wxgf: dec}).Decode(context.Background(), b, "a.dat")
	require.NoError(t, err)
	assert.Equal(t, img, res.Data)
	assert.Equal(t, []int{0, 3}, dec.calls)
}

func TestDecodeWxgfWithoutDecoder(t *testing.T) {
	b := append([]byte("wxgf"), bytes.Repeat([]byte{0x01}, 64)...)

	res, err := (&Decoder{}).Decode(context.Background(), b, "a.gif")
	assert.ErrorIs(t, err, ErrUnrecognized)
	assert.ErrorIs(t, err, wxgf.ErrUnavailable)
	assert.Equal(t, b, res.Data)
	assert.Equal(t, "image/gif", res.MediaType)
}

func TestDecodeUnrecognized(t *testing.T) {
	b := bytes.Repeat([]byte{0x01, 0x02, 0x04, 0x08}, 64)

	res, err := (&Decoder{}).Decode(context.Background(), b, "a.dat")
	assert.ErrorIs(t, err, ErrUnrecognized)
	assert.Equal(t, b, res.Data)
	assert.Equal(t, sniff.OctetStream, res.MediaType)
}
