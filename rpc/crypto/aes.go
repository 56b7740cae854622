package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/ValentinKolb/pstore/rpc/common"
)

// NewSessionKey returns a fresh random AES-256 key
func NewSessionKey() ([]byte, error) {
	key := make([]byte, common.LenAESKey)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate session key: %w", err)
	}
	return key, nil
}

// SealedLen returns the length of an AES block carrying n plaintext bytes
func SealedLen(n int) int {
	return common.LenAESIV + (n/aes.BlockSize+1)*aes.BlockSize
}

// Seal encrypts plain with AES-CBC under key and returns IV . ciphertext.
// A fresh random IV is used for every call, the plaintext is PKCS#7 padded.
func Seal(key, plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}

	out := make([]byte, SealedLen(len(plain)))
	iv := out[:common.LenAESIV]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	body := out[common.LenAESIV:]
	copy(body, plain)
	pad := byte(len(body) - len(plain))
	for i := len(plain); i < len(body); i++ {
		body[i] = pad
	}

	cipher.NewCBCEncrypter(block, iv).CryptBlocks(body, body)
	return out, nil
}

// Open reverses Seal. Every malformed input (wrong key length, bad block
// alignment, invalid padding) returns an error wrapping common.ErrCrypto.
func Open(key, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}

	if len(sealed) < common.LenAESIV+aes.BlockSize || (len(sealed)-common.LenAESIV)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: invalid ciphertext length %d", common.ErrCrypto, len(sealed))
	}

	iv := sealed[:common.LenAESIV]
	body := make([]byte, len(sealed)-common.LenAESIV)
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(body, sealed[common.LenAESIV:])

	pad := int(body[len(body)-1])
	if pad == 0 || pad > aes.BlockSize {
		return nil, fmt.Errorf("%w: invalid padding", common.ErrCrypto)
	}
	for _, p := range body[len(body)-pad:] {
		if int(p) != pad {
			return nil, fmt.Errorf("%w: invalid padding", common.ErrCrypto)
		}
	}
	return body[:len(body)-pad], nil
}
