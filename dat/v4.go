package dat

import (
	"bytes"
	"crypto/aes"
	"encoding/binary"
	"strconv"
)

// DecryptXOR returns a copy of b with every byte XORed with key.
func DecryptXOR(b []byte, key byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = c ^ key
	}
	return out
}

// DecryptV4 decodes a V1 or V2 hybrid container. The first AES segment is
// decrypted with aesKey, the last xorLen bytes are XORed with xorKey and
// everything in between is copied as is.
func DecryptV4(b []byte, xorKey byte, aesKey []byte) ([]byte, error) {
	if size := len(b); size < HeaderSize {
		return nil, datError("container smaller than its header: " + strconv.Itoa(size) + " < " + strconv.Itoa(HeaderSize))
	}
	if len(aesKey) < aes.BlockSize {
		return nil, datError("aes key too short")
	}
	aesLen := uint64(binary.LittleEndian.Uint32(b[6:]))
	xorLen64 := uint64(binary.LittleEndian.Uint32(b[10:]))
	body := b[HeaderSize:]

	// the AES segment always carries PKCS#7 padding, a full block of it
	// when the plaintext is already aligned
	segment := len(body) - len(body)%aes.BlockSize
	if padded := aesLen + aes.BlockSize - aesLen%aes.BlockSize; padded < uint64(segment) {
		segment = int(padded)
	}
	if xorLen64 > uint64(len(body)-segment) {
		return nil, datError("xor segment overlaps aes segment: " + strconv.FormatUint(xorLen64, 10))
	}
	xorLen := int(xorLen64)

	head, err := decryptECB(body[:segment], aesKey[:aes.BlockSize])
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(head)+len(body)-segment)
	out = append(out, head...)
	out = append(out, body[segment:len(body)-xorLen]...)
	for _, c := range body[len(body)-xorLen:] {
		out = append(out, c^xorKey)
	}
	return out, nil
}

// EncryptV4 builds a hybrid container from plaintext. The first aesLen bytes
// are AES encrypted and the last xorLen bytes are XORed; both are clamped to
// the size of plain.
func EncryptV4(plain []byte, sig []byte, xorKey byte, aesKey []byte, aesLen, xorLen int) ([]byte, error) {
	if len(sig) != len(SigV1) {
		return nil, datError("invalid signature size: " + strconv.Itoa(len(sig)))
	}
	if len(aesKey) < aes.BlockSize {
		return nil, datError("aes key too short")
	}
	if aesLen > len(plain) {
		aesLen = len(plain)
	}
	if xorLen > len(plain)-aesLen {
		xorLen = len(plain) - aesLen
	}

	enc, err := encryptECB(pkcs7(plain[:aesLen]), aesKey[:aes.BlockSize])
	if err != nil {
		return nil, err
	}

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+len(enc)+len(plain)-aesLen))
	buf.Write(sig)
	binary.Write(buf, binary.LittleEndian, uint32(aesLen))
	binary.Write(buf, binary.LittleEndian, uint32(xorLen))
	buf.WriteByte(1)
	buf.Write(enc)
	buf.Write(plain[aesLen : len(plain)-xorLen])
	for _, c := range plain[len(plain)-xorLen:] {
		buf.WriteByte(c ^ xorKey)
	}
	return buf.Bytes(), nil
}

func decryptECB(b, key []byte) ([]byte, error) {
	if len(b)%aes.BlockSize != 0 {
		return nil, datError("aes segment is not block aligned")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	for i := 0; i < len(b); i += aes.BlockSize {
		block.Decrypt(out[i:i+aes.BlockSize], b[i:i+aes.BlockSize])
	}
	return unpad(out), nil
}

func encryptECB(b, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	for i := 0; i < len(b); i += aes.BlockSize {
		block.Encrypt(out[i:i+aes.BlockSize], b[i:i+aes.BlockSize])
	}
	return out, nil
}

func pkcs7(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(append([]byte(nil), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

// unpad strips PKCS#7 padding, leaving b untouched when the padding is
// malformed.
func unpad(b []byte) []byte {
	if len(b) == 0 {
		return b
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return b
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return b
		}
	}
	return b[:len(b)-n]
}
