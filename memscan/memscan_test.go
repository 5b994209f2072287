package memscan

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcess struct {
	regions map[uint64][]byte
	closed  bool
}

func (p *fakeProcess) Regions() ([]Region, error) {
	var out []Region
	for base, b := range p.regions {
		out = append(out, Region{Base: base, Size: uint64(len(b))})
	}
	return out, nil
}

func (p *fakeProcess) ReadAt(b []byte, addr uint64) (int, error) {
	for base, mem := range p.regions {
		if addr >= base && addr < base+uint64(len(mem)) {
			return copy(b, mem[addr-base:]), nil
		}
	}
	return 0, errors.New("unmapped")
}

func (p *fakeProcess) Close() error {
	p.closed = true
	return nil
}

var testKey = []byte("k3y0fs1xteenchrs")

func matches(key []byte) func([]byte) bool {
	return func(c []byte) bool {
		return bytes.Equal(c, key)
	}
}

func region(size, at int, content string) []byte {
	b := bytes.Repeat([]byte{0}, size)
	copy(b[at:], content)
	return b
}

func TestScanBuffer(t *testing.T) {
	assert.Equal(t, testKey, scanBuffer([]byte("\x00"+string(testKey)+"\x00"), matches(testKey)))
	// longer runs are not keys
	assert.Nil(t, scanBuffer([]byte("\x00x"+string(testKey)+"\x00"), matches(testKey)))
	// both halves of a 32 character run are tried
	assert.Equal(t, testKey, scanBuffer([]byte("-0123456789abcdef"+string(testKey)+"-"), matches(testKey)))
	// a run at the very end of the buffer counts
	assert.Equal(t, testKey, scanBuffer(append([]byte{' '}, testKey...), matches(testKey)))
}

func TestFindKeyAcrossChunks(t *testing.T) {
	p := &fakeProcess{regions: map[uint64][]byte{
		0x1000: region(1000, 90, "\x00"+string(testKey)+"\x00"),
	}}
	s := &Scanner{ChunkSize: 100}

	key, err := s.FindKey(context.Background(), p, matches(testKey))
	require.NoError(t, err)
	assert.Equal(t, testKey, key)
}

func TestFindKeyManyRegions(t *testing.T) {
	regions := map[uint64][]byte{}
	for i := 0; i < 64; i++ {
		regions[uint64(i)<<20] = region(4096, 0, "")
	}
	regions[40<<20] = region(4096, 2000, " "+string(testKey)+" ")
	s := &Scanner{ChunkSize: 512, Workers: 4}

	key, err := s.FindKey(context.Background(), &fakeProcess{regions: regions}, matches(testKey))
	require.NoError(t, err)
	assert.Equal(t, testKey, key)
}

func TestFindKeySkipsLargeRegions(t *testing.T) {
	p := &fakeProcess{regions: map[uint64][]byte{
		0: region(2048, 100, " "+string(testKey)+" "),
	}}
	s := &Scanner{MaxRegion: 1024}

	_, err := s.FindKey(context.Background(), p, matches(testKey))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindKeyCanceled(t *testing.T) {
	p := &fakeProcess{regions: map[uint64][]byte{
		0: region(2048, 100, " "+string(testKey)+" "),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&Scanner{}).FindKey(ctx, p, matches(testKey))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAESKey(t *testing.T) {
	var opened []int32
	procs := map[int32]*fakeProcess{
		10: {regions: map[uint64][]byte{0: region(256, 0, "")}},
		20: {regions: map[uint64][]byte{0: region(256, 10, " "+string(testKey)+" ")}},
	}
	s := &Scanner{
		Find: func(ctx context.Context, names, prefixes []string) ([]int32, error) {
			return []int32{10, 20}, nil
		},
		Open: func(pid int32) (Process, error) {
			opened = append(opened, pid)
			return procs[pid], nil
		},
	}

	// the ciphertext is the key encrypting the JPEG magic
	ct := encryptBlock(t, testKey, []byte{0xff, 0xd8, 0xff, 0xe0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	key, err := s.AESKey(context.Background(), ct)
	require.NoError(t, err)
	assert.Equal(t, testKey, key)
	assert.Equal(t, []int32{10, 20}, opened)
	assert.True(t, procs[10].closed)
	assert.True(t, procs[20].closed)
}

func TestAESKeyNoProcess(t *testing.T) {
	s := &Scanner{
		Find: func(ctx context.Context, names, prefixes []string) ([]int32, error) {
			return nil, nil
		},
	}
	_, err := s.AESKey(context.Background(), make([]byte, 16))
	assert.ErrorIs(t, err, ErrNoProcess)
}

func TestOrderProcesses(t *testing.T) {
	procs := []processName{
		{1, "explorer.exe"},
		{2, "WeChatAppEx.exe"},
		{3, "Weixin.exe"},
		{4, "wechat_helper"},
		{5, "WeChat.exe"},
		{3, "weixin.exe"},
		{0, "weixin.exe"},
	}
	assert.Equal(t, []int32{3, 5, 2, 4}, orderProcesses(procs, DefaultNames, DefaultPrefixes))
}
