package keyring

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/YoshihikoAbe/wxmedia/dat"
	"github.com/YoshihikoAbe/wxmedia/memo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAESKey = []byte("0123456789abcdef")

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0777))
	require.NoError(t, os.WriteFile(path, b, 0644))
}

func jpegWithKey(key byte) []byte {
	b := make([]byte, 256)
	copy(b, []byte{0xff, 0xd8, 0xff, 0xe0})
	b[len(b)-2], b[len(b)-1] = 0xff, 0xd9
	return dat.DecryptXOR(b, key)
}

func v2Template(t *testing.T, xor byte) []byte {
	t.Helper()
	plain := make([]byte, 256)
	copy(plain, []byte{0xff, 0xd8, 0xff, 0xe0})
	plain[len(plain)-2], plain[len(plain)-1] = 0xff, 0xd9
	b, err := dat.EncryptV4(plain, dat.SigV2, xor, testAESKey, 64, 32)
	require.NoError(t, err)
	return b
}

func TestTemplatesOrder(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{
		"misc/c_t.dat",
		"msg/attach/x/2024-01/Img/a_t.dat",
		"msg/attach/x/2024-03/Img/b_t.dat",
		"msg/attach/x/2024-03/Img/b.dat",
	} {
		writeFile(t, filepath.Join(root, name), []byte{0, 0})
	}

	files, err := Templates(root)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "b_t.dat", filepath.Base(files[0]))
	assert.Equal(t, "a_t.dat", filepath.Base(files[1]))
	assert.Equal(t, "c_t.dat", filepath.Base(files[2]))
}

func TestXORKeyFromTemplates(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 5; i++ {
		writeFile(t, filepath.Join(root, "2024-05", string(rune('a'+i))+"_t.dat"), jpegWithKey(0x42))
	}
	// noise
	writeFile(t, filepath.Join(root, "2024-05", "x_t.dat"), []byte{1, 2, 3})
	writeFile(t, filepath.Join(root, "2024-05", "y_t.dat"), []byte{4, 5, 6})

	key, err := NewRecoverer(root, "", nil, nil).XORKey(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 0x42, key)
}

func TestXORKeyRejectsDisagreement(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 3; i++ {
		writeFile(t, filepath.Join(root, string(rune('a'+i))+"_t.dat"), []byte{9, 0x10, 0x20})
	}

	_, err := NewRecoverer(root, "", nil, nil).XORKey(context.Background())
	assert.ErrorIs(t, err, ErrKeyUnavailable)

	// a saved key is still usable
	account := t.TempDir()
	require.NoError(t, Save(account, Material{XOR: 0x11, HasXOR: true}))
	key, err := NewRecoverer(root, account, nil, nil).XORKey(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 0x11, key)
}

func TestTailModeTie(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "2024-01", "a_t.dat"), []byte{0, 1, 1})
	writeFile(t, filepath.Join(root, "2024-01", "b_t.dat"), []byte{0, 2, 2})
	writeFile(t, filepath.Join(root, "2024-02", "c_t.dat"), []byte{0, 2, 2})
	writeFile(t, filepath.Join(root, "2024-02", "d_t.dat"), []byte{0, 1, 1})

	files, err := Templates(root)
	require.NoError(t, err)
	tail, ok := TailMode(files)
	require.True(t, ok)
	// c_t.dat is the most recent sample
	assert.Equal(t, []byte{2, 2}, tail)
}

func TestXORFromTail(t *testing.T) {
	key, ok := XORFromTail([]byte{0xff ^ 0x37, 0xd9 ^ 0x37})
	assert.True(t, ok)
	assert.EqualValues(t, 0x37, key)

	_, ok = XORFromTail([]byte{0xff ^ 0x37, 0xd9 ^ 0x38})
	assert.False(t, ok)
	_, ok = XORFromTail([]byte{1})
	assert.False(t, ok)
}

func TestKeyFile(t *testing.T) {
	dir := t.TempDir()

	m, err := Load(dir)
	require.NoError(t, err)
	assert.False(t, m.HasXOR)

	require.NoError(t, Save(dir, Material{XOR: 0x37, HasXOR: true, AES: testAESKey}))
	b, err := os.ReadFile(filepath.Join(dir, KeyFileName))
	require.NoError(t, err)
	assert.JSONEq(t, `{"xor":55,"aes":"0123456789abcdef"}`, string(b))

	m, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, Material{XOR: 0x37, HasXOR: true, AES: testAESKey}, m)

	writeFile(t, filepath.Join(dir, KeyFileName), []byte(`{"xor":300,"aes":"short"}`))
	m, err = Load(dir)
	require.NoError(t, err)
	assert.False(t, m.HasXOR)
	assert.Nil(t, m.AES)
}

func TestAESKeyFromSource(t *testing.T) {
	root := t.TempDir()
	account := t.TempDir()
	writeFile(t, filepath.Join(root, "2024-05", "a_t.dat"), v2Template(t, 0x42))

	cache, err := memo.New[[]byte](16)
	require.NoError(t, err)
	defer cache.Close()

	r := NewRecoverer(root, account, MemoryKeySource{Key: string(testAESKey)}, cache)
	key, err := r.AESKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testAESKey, key)

	m, err := Load(account)
	require.NoError(t, err)
	assert.Equal(t, Material{XOR: 0x42, HasXOR: true, AES: testAESKey}, m)

	// the key file is enough from now on
	key, err = NewRecoverer(root, account, nil, nil).AESKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testAESKey, key)
}

func TestAESKeyWrongSource(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a_t.dat"), v2Template(t, 0x42))

	r := NewRecoverer(root, t.TempDir(), MemoryKeySource{Key: "fedcba9876543210"}, nil)
	_, err := r.AESKey(context.Background())
	assert.ErrorIs(t, err, ErrKeyUnavailable)

	_, err = NewRecoverer(root, "", nil, nil).AESKey(context.Background())
	assert.ErrorIs(t, err, ErrKeyUnavailable)
}

func TestValidate(t *testing.T) {
	ct := v2Template(t, 0)[dat.HeaderSize : dat.HeaderSize+16]
	assert.True(t, Validate(ct, testAESKey))
	assert.False(t, Validate(ct, []byte("fedcba9876543210")))
	assert.False(t, Validate(ct, []byte("short")))
}

type countingSource struct {
	calls int
	err   error
}

func (s *countingSource) AESKey(ctx context.Context, ciphertext []byte) ([]byte, error) {
	s.calls++
	return nil, s.err
}

func TestAESKeySourceFailureIsSticky(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a_t.dat"), v2Template(t, 0x42))

	src := &countingSource{err: keyringError("no process")}
	r := NewRecoverer(root, "", src, nil)
	for i := 0; i < 3; i++ {
		_, err := r.AESKey(context.Background())
		assert.ErrorIs(t, err, ErrKeyUnavailable)
	}
	assert.Equal(t, 1, src.calls)
}
