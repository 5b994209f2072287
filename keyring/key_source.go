package keyring

import (
	"context"
	"crypto/aes"

	"github.com/YoshihikoAbe/wxmedia/sniff"
)

// A KeySource recovers the AES key of V2 containers. ciphertext is the
// first encrypted block of a V2 template, used to validate candidates.
type KeySource interface {
	AESKey(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// MemoryKeySource serves a key that is already known, such as one given on
// the command line.
type MemoryKeySource struct {
	Key string `json:"aes"`
}

func (ks MemoryKeySource) AESKey(ctx context.Context, ciphertext []byte) ([]byte, error) {
	key := []byte(ks.Key)
	if len(ciphertext) > 0 && !Validate(ciphertext, key) {
		return nil, keyringError("key does not decrypt the template")
	}
	if len(key) < aes.BlockSize {
		return nil, keyringError("key too short")
	}
	return key[:aes.BlockSize], nil
}

// Validate reports whether key decrypts ciphertext into the start of a known
// media payload.
func Validate(ciphertext, key []byte) bool {
	if len(key) < aes.BlockSize || len(ciphertext) < aes.BlockSize {
		return false
	}
	block, err := aes.NewCipher(key[:aes.BlockSize])
	if err != nil {
		return false
	}
	plain := make([]byte, aes.BlockSize)
	block.Decrypt(plain, ciphertext[:aes.BlockSize])
	return sniff.IsKnownPlaintext(plain)
}
