package saves

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required encryption key length in bytes.
const KeySize = chacha20poly1305.KeySize

var (
	ErrKeyLength     = errors.New("saves: encryption key must be 32 bytes")
	ErrDecryptFailed = errors.New("saves: decryption failed, wrong key or corrupted data")
)

// Cipher seals save payloads with XChaCha20-Poly1305. The random nonce is
// prepended to the ciphertext, so sealed blobs are self-contained.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a cipher from a raw 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrKeyLength
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("saves: init cipher: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// ParseKey decodes a hex-encoded 32-byte key.
func ParseKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("saves: decode key: %w", err)
	}
	if len(key) != KeySize {
		return nil, ErrKeyLength
	}
	return key, nil
}

// GenerateKey returns a random 32-byte encryption key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("saves: generate key: %w", err)
	}
	return key, nil
}

// ZeroKey overwrites a key in memory.
func ZeroKey(key []byte) {
	for i := range key {
		key[i] = 0
	}
}

// Seal encrypts a save payload.
func (c *Cipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("saves: nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a sealed save payload.
func (c *Cipher) Open(sealed []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(sealed) < ns {
		return nil, ErrDecryptFailed
	}
	plain, err := c.aead.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plain, nil
}
