package resource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jpeg = []byte{0xff, 0xd8, 0xff, 0xe0, 0, 0x10, 'J', 'F', 'I', 'F', 0, 0xff, 0xd9}

const hash = "0123456789abcdef0123456789abcdef"

func TestFormatHashPath(t *testing.T) {
	p, err := formatHashPath("ABcdef", "jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("ab", "abcdef.jpg"), p)

	p, err = formatHashPath("a", "png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("00", "a.png"), p)

	_, err = formatHashPath("../x", "jpg")
	assert.Error(t, err)
	_, err = formatHashPath("", "jpg")
	assert.Error(t, err)
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "jpg", Extension("image/jpeg", "x.dat"))
	assert.Equal(t, "mp4", Extension("video/mp4", "x.dat"))
	assert.Equal(t, "mov", Extension("video/quicktime", "clip.MOV"))
	assert.Equal(t, "dat", Extension("video/quicktime", "noext"))
}

func TestStoreAndLookup(t *testing.T) {
	c := New(t.TempDir())

	_, ok := c.Lookup(hash)
	assert.False(t, ok)

	p, err := c.Store(hash, jpeg, "image/jpeg", "a.dat")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(c.Dir, "01", hash+".jpg"), p)

	found, ok := c.Lookup(hash)
	require.True(t, ok)
	assert.Equal(t, p, found)

	// no temp files are left behind
	entries, err := os.ReadDir(filepath.Dir(p))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStoreIsWriteOnce(t *testing.T) {
	c := New(t.TempDir())

	p, err := c.Store(hash, jpeg, "image/jpeg", "a.dat")
	require.NoError(t, err)

	other := append([]byte{}, jpeg...)
	other[6] = 'X'
	p2, err := c.Store(hash, other, "image/jpeg", "b.dat")
	require.NoError(t, err)
	assert.Equal(t, p, p2)

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, jpeg, b)
}

func TestStoreRejectsUnknown(t *testing.T) {
	c := New(t.TempDir())
	_, err := c.Store(hash, []byte("garbage"), "application/octet-stream", "a.dat")
	assert.Error(t, err)

	_, ok := c.Lookup(hash)
	assert.False(t, ok)
}

func TestLookupOrder(t *testing.T) {
	c := New(t.TempDir())
	dir := filepath.Join(c.Dir, "01")
	require.NoError(t, os.MkdirAll(dir, 0777))
	require.NoError(t, os.WriteFile(filepath.Join(dir, hash+".dat"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, hash+".png"), []byte("x"), 0644))

	p, ok := c.Lookup(hash)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, hash+".png"), p)
}

func TestCheck(t *testing.T) {
	c := New(t.TempDir())
	_, err := c.Store(hash, jpeg, "image/jpeg", "a.dat")
	require.NoError(t, err)

	bad := "fedcba9876543210fedcba9876543210"
	dir := filepath.Join(c.Dir, "fe")
	require.NoError(t, os.MkdirAll(dir, 0777))
	require.NoError(t, os.WriteFile(filepath.Join(dir, bad+".png"), jpeg, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	result, err := c.Check()
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalFiles)
	assert.Equal(t, []string{filepath.Join("fe", bad+".png")}, result.Broken)
	assert.Equal(t, []string{filepath.Join("fe", "notes.txt")}, result.Unknown)
}

func TestCheckMissingDir(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), DirName))
	result, err := c.Check()
	require.NoError(t, err)
	assert.Zero(t, result.TotalFiles)
	assert.Empty(t, result.Broken)
	assert.Empty(t, result.Unknown)
}
