package memscan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMaps(t *testing.T) {
	maps := `55d0c0a00000-55d0c0a21000 r--p 00000000 08:01 1234 /usr/bin/wechat
55d0c1a00000-55d0c1a21000 rw-p 00000000 00:00 0 [heap]
7f1e2c000000-7f1e2c021000 rw-p 00000000 00:00 0
7f1e2d000000-7f1e2d001000 ---p 00000000 00:00 0
7f1e2e000000-7f1e2e001000 rw-s 00000000 00:05 77 /dev/shm/x
7ffd5e7b1000-7ffd5e7b5000 r--p 00000000 00:00 0 [vvar]
`
	regions, err := parseMaps(strings.NewReader(maps))
	require.NoError(t, err)
	assert.Equal(t, []Region{
		{Base: 0x55d0c1a00000, Size: 0x21000},
		{Base: 0x7f1e2c000000, Size: 0x21000},
	}, regions)
}
