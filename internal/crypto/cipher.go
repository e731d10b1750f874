// Package crypto provides encryption of tenant application credentials.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const (
	// NonceSize is the size of the AES-GCM nonce (12 bytes standard).
	NonceSize = 12

	// TagSize is the size of the GCM authentication tag.
	TagSize = 16

	// KeySize is the size of the AES-256 key (32 bytes).
	KeySize = 32
)

var (
	// ErrEmptyKeyMaterial indicates no key material was supplied.
	ErrEmptyKeyMaterial = errors.New("encryption key material is empty")
	// ErrInvalidCiphertext indicates the ciphertext blob is too short or malformed.
	ErrInvalidCiphertext = errors.New("ciphertext too short")
	// ErrDecryptionFailed indicates the authentication tag did not verify.
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Cipher encrypts and decrypts single secret strings with AES-256-GCM.
//
// The wire format is base64(nonce(12) || tag(16) || ciphertext), so the
// shortest valid blob decodes to 28 bytes (empty plaintext).
type Cipher struct {
	key []byte
}

// DeriveKey turns operator-supplied key material into a 32-byte AES key.
// Material that base64-decodes to exactly 32 bytes is used directly, which
// lets operators supply a high-entropy generated key. Anything else is
// treated as a passphrase and hashed with SHA-256.
func DeriveKey(material string) ([]byte, error) {
	if material == "" {
		return nil, ErrEmptyKeyMaterial
	}
	if decoded, err := base64.StdEncoding.DecodeString(material); err == nil && len(decoded) == KeySize {
		return decoded, nil
	}
	sum := sha256.Sum256([]byte(material))
	return sum[:], nil
}

// New creates a Cipher from raw key material.
func New(material string) (*Cipher, error) {
	key, err := DeriveKey(material)
	if err != nil {
		return nil, err
	}
	return &Cipher{key: key}, nil
}

// EncryptString encrypts a secret and returns the base64-encoded blob.
// A fresh random nonce is generated per call.
func (c *Cipher) EncryptString(secret string) (string, error) {
	gcm, err := c.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	// Seal produces ciphertext || tag; the blob layout puts the tag
	// directly after the nonce.
	sealed := gcm.Seal(nil, nonce, []byte(secret), nil)
	ciphertext := sealed[:len(sealed)-TagSize]
	tag := sealed[len(sealed)-TagSize:]

	blob := make([]byte, 0, NonceSize+TagSize+len(ciphertext))
	blob = append(blob, nonce...)
	blob = append(blob, tag...)
	blob = append(blob, ciphertext...)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// DecryptString decrypts a blob produced by EncryptString. It never returns
// a partial plaintext: any tamper or key mismatch yields ErrDecryptionFailed.
func (c *Cipher) DecryptString(encoded string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(blob) < NonceSize+TagSize {
		return "", ErrInvalidCiphertext
	}

	gcm, err := c.aead()
	if err != nil {
		return "", err
	}

	nonce := blob[:NonceSize]
	tag := blob[NonceSize : NonceSize+TagSize]
	ciphertext := blob[NonceSize+TagSize:]

	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

func (c *Cipher) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}

// GenerateKey generates a fresh random key encoded as base64, suitable as
// key material for New. Done once during server setup and stored securely.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
