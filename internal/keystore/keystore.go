// Package keystore seals private keys for storage and turns stored
// certificate records back into request signers.
//
// Private keys are never persisted in the clear: [Sealer] encrypts the
// PKCS#8 bytes with AES-256-GCM under a key derived from the configured
// master secret via HKDF-SHA256 with a per-seal random salt.
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	saltSize = 32
	keySize  = 32

	// hkdfInfo binds derived keys to this purpose
	hkdfInfo = "ebics-gateway key sealing v1"
)

// ErrSealedKeyInvalid indicates a blob that cannot be unsealed: wrong
// secret, truncated data, or tampering.
var ErrSealedKeyInvalid = errors.New("sealed key invalid")

// Sealer encrypts and decrypts private key material with keys derived
// from a master secret.
type Sealer struct {
	secret []byte
}

// NewSealer creates a sealer from the configured master secret.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, fmt.Errorf("sealing secret is required")
	}
	return &Sealer{secret: []byte(secret)}, nil
}

// Seal encrypts plaintext key bytes. The returned blob is
// salt || nonce || ciphertext and is self-contained for Unseal.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}

	gcm, err := s.cipherFor(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	blob := make([]byte, 0, saltSize+len(nonce)+len(plaintext)+gcm.Overhead())
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	return gcm.Seal(blob, nonce, plaintext, nil), nil
}

// Unseal decrypts a blob produced by Seal.
func (s *Sealer) Unseal(blob []byte) ([]byte, error) {
	if len(blob) < saltSize {
		return nil, ErrSealedKeyInvalid
	}
	salt, rest := blob[:saltSize], blob[saltSize:]

	gcm, err := s.cipherFor(salt)
	if err != nil {
		return nil, err
	}

	if len(rest) < gcm.NonceSize() {
		return nil, ErrSealedKeyInvalid
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealedKeyInvalid, err)
	}
	return plaintext, nil
}

func (s *Sealer) cipherFor(salt []byte) (cipher.AEAD, error) {
	key := make([]byte, keySize)
	kdf := hkdf.New(sha256.New, s.secret, salt, []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("deriving sealing key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
