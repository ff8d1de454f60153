package sharestore

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/keyfate/keyfate/interfaces"
)

// Sealer encrypts server custody shares at rest with XChaCha20-Poly1305.
// The secret id is bound as associated data, so a sealed share moved to
// another secret's slot fails to open.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer creates a sealer from a 32-byte master key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("sealing key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts share for the given secret. Output layout is
// nonce || ciphertext.
func (s *Sealer) Seal(id interfaces.SecretID, share []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, share, []byte(id)), nil
}

// Open decrypts a sealed share for the given secret.
func (s *Sealer) Open(id interfaces.SecretID, sealed []byte) ([]byte, error) {
	if len(sealed) < s.aead.NonceSize() {
		return nil, errors.New("sealed share is too short")
	}

	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	share, err := s.aead.Open(nil, nonce, ciphertext, []byte(id))
	if err != nil {
		return nil, fmt.Errorf("failed to open sealed share: %w", err)
	}
	return share, nil
}
