// Package secrets seals device credentials for storage at rest.
//
// Credentials are encrypted with ChaCha20-Poly1305 AEAD before they touch the
// database. Only sealed blobs are ever persisted or returned from repositories;
// callers unseal immediately before use and let the plaintext go out of scope.
//
// # Usage
//
//	box, err := secrets.NewBox(cfg.Security.EncryptionKeyBytes())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	blob, err := box.Seal([]byte(`{"username":"admin","password":"s3cret"}`))
//	// store blob
//
//	plain, err := box.Open(blob)
//	// use plain, discard
package secrets

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Sentinel errors for sealing operations.
var (
	// ErrInvalidKey indicates the encryption key is not the required length.
	ErrInvalidKey = errors.New("secrets: encryption key must be 32 bytes")

	// ErrOpenFailed indicates a blob could not be decrypted. The blob is
	// either truncated, corrupted, or was sealed with a different key.
	ErrOpenFailed = errors.New("secrets: open failed")
)

// Box seals and opens small secrets with an AEAD cipher.
//
// Safe for concurrent use; the cipher is stateless between calls.
type Box struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
	}
}

// NewBox creates a Box from a 32-byte key.
func NewBox(key []byte) (*Box, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("secrets: creating cipher: %w", err)
	}

	return &Box{aead: aead}, nil
}

// Seal encrypts plaintext and returns a self-contained blob.
//
// A fresh random nonce is generated per call and prefixed to the ciphertext,
// so sealing the same plaintext twice yields different blobs.
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, b.aead.NonceSize(), b.aead.NonceSize()+len(plaintext)+chacha20poly1305.Overhead)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("secrets: generating nonce: %w", err)
	}

	return b.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a blob produced by Seal.
//
// Returns ErrOpenFailed if the blob is too short, has been tampered with,
// or was sealed under a different key.
func (b *Box) Open(blob []byte) ([]byte, error) {
	nonceSize := b.aead.NonceSize()
	if len(blob) < nonceSize+chacha20poly1305.Overhead {
		return nil, ErrOpenFailed
	}

	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]
	plaintext, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpenFailed, err)
	}

	return plaintext, nil
}
