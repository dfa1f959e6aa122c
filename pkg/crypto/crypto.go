// Package crypto seals model payloads exchanged between coordinators and
// workers with a shared AES-256-GCM workload key.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const keySize = 32

var (
	ErrKeySize      = errors.New("workload key must be 32 bytes (AES-256)")
	ErrShortPayload = errors.New("sealed payload too short")
	ErrOpenFailed   = errors.New("failed to open sealed payload")
)

// Sealer encrypts and decrypts payloads. The zero value, or a Sealer built
// from an empty key, passes data through unchanged.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer parses a hex encoded workload key. An empty key disables sealing.
func NewSealer(hexKey string) (*Sealer, error) {
	if hexKey == "" {
		return &Sealer{}, nil
	}

	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode workload key: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("%w, got %d", ErrKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Sealer{aead: gcm}, nil
}

func (s *Sealer) Enabled() bool {
	return s != nil && s.aead != nil
}

// Seal prefixes the ciphertext with a random nonce.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	if !s.Enabled() {
		return plaintext, nil
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if !s.Enabled() {
		return sealed, nil
	}

	if len(sealed) < s.aead.NonceSize() {
		return nil, ErrShortPayload
	}

	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]

	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.Join(ErrOpenFailed, err)
	}

	return plaintext, nil
}
