package keyring

import (
	"context"
	"crypto/aes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

type keyringError string

func (e keyringError) Error() string {
	return "wxmedia/keyring: " + string(e)
}

const (
	// ErrKeyUnavailable means a key could not be recovered. It is never
	// replaced by a guess.
	ErrKeyUnavailable = keyringError("key unavailable")

	KeyFileName = "_media_keys.json"
)

// Material is the key material shared by every container of a source root.
type Material struct {
	XOR    byte
	HasXOR bool
	AES    []byte
}

func (m Material) XORKey(ctx context.Context) (byte, error) {
	if !m.HasXOR {
		return 0, ErrKeyUnavailable
	}
	return m.XOR, nil
}

func (m Material) AESKey(ctx context.Context) ([]byte, error) {
	if len(m.AES) < aes.BlockSize {
		return nil, ErrKeyUnavailable
	}
	return m.AES[:aes.BlockSize], nil
}

type keyFile struct {
	XOR *int   `json:"xor,omitempty"`
	AES string `json:"aes,omitempty"`
}

// Load reads the key file of an account. A missing file yields empty
// material and no error.
func Load(accountDir string) (Material, error) {
	var m Material
	b, err := os.ReadFile(filepath.Join(accountDir, KeyFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return m, err
	}

	var kf keyFile
	if err := json.Unmarshal(b, &kf); err != nil {
		return m, err
	}
	if kf.XOR != nil && *kf.XOR >= 0 && *kf.XOR <= 255 {
		m.XOR = byte(*kf.XOR)
		m.HasXOR = true
	}
	if len(kf.AES) >= aes.BlockSize {
		m.AES = []byte(kf.AES[:aes.BlockSize])
	}
	return m, nil
}

func Save(accountDir string, m Material) error {
	var kf keyFile
	if m.HasXOR {
		x := int(m.XOR)
		kf.XOR = &x
	}
	if len(m.AES) > 0 {
		kf.AES = string(m.AES)
	}
	b, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(accountDir, 0777); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(accountDir, KeyFileName), b, 0644)
}
