package youtube

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
)

// TokenCipher protects OAuth tokens at rest with AES-CBC. The key and IV come
// from process environment; the same pair must be used for the lifetime of the
// stored rows or existing tokens become unreadable.
type TokenCipher struct {
	block cipher.Block
	iv    []byte
}

// NewTokenCipher builds a cipher from a 16/24/32-byte key and a 16-byte IV.
func NewTokenCipher(key, iv string) (*TokenCipher, error) {
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("invalid token encryption key: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("token encryption IV must be %d bytes, got %d", aes.BlockSize, len(iv))
	}
	return &TokenCipher{block: block, iv: []byte(iv)}, nil
}

// Encrypt returns the base64-encoded AES-CBC ciphertext of a token.
func (tc *TokenCipher) Encrypt(plaintext string) string {
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(tc.block, tc.iv).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out)
}

// Decrypt reverses Encrypt.
func (tc *TokenCipher) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("stored token is not valid base64: %w", err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", errors.New("stored token has invalid ciphertext length")
	}
	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(tc.block, tc.iv).CryptBlocks(out, raw)
	return string(pkcs7Unpad(out)), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return data
	}
	return data[:len(data)-padLen]
}
