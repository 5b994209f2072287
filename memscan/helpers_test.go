package memscan

import (
	"crypto/aes"
	"testing"

	"github.com/stretchr/testify/require"
)

func encryptBlock(t *testing.T, key, plain []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	out := make([]byte, aes.BlockSize)
	block.Encrypt(out, plain)
	return out
}
