// Package cryptofp encrypts the admin fingerprint at rest with AES-256-GCM.
//
// No pack dependency supplies an AES-GCM implementation that improves on
// the standard library's (crypto/aes + crypto/cipher is the ecosystem-
// standard way to do this in Go; nothing in the retrieval pack reaches for
// a third-party AEAD for this shape of problem), so this package is
// stdlib-only by design — see DESIGN.md.
package cryptofp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const KeySize = 32 // AES-256

var ErrMalformed = errors.New("cryptofp: malformed ciphertext")

// NewKey returns a fresh random 32-byte key suitable for Encrypt/Decrypt.
func NewKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("cryptofp: generate key: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext under key and returns "iv:authTag:ciphertext" in
// hex, matching the on-disk layout in spec §4.2/§6.2.
func Encrypt(key []byte, plaintext string) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("cryptofp: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cryptofp: new gcm: %w", err)
	}
	iv := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("cryptofp: generate iv: %w", err)
	}
	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	tagLen := gcm.Overhead()
	ciphertext := sealed[:len(sealed)-tagLen]
	authTag := sealed[len(sealed)-tagLen:]
	return fmt.Sprintf("%s:%s:%s", hex.EncodeToString(iv), hex.EncodeToString(authTag), hex.EncodeToString(ciphertext)), nil
}

// Decrypt reverses Encrypt.
func Decrypt(key []byte, encoded string) (string, error) {
	parts := strings.SplitN(encoded, ":", 3)
	if len(parts) != 3 {
		return "", ErrMalformed
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", ErrMalformed
	}
	authTag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", ErrMalformed
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrMalformed
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("cryptofp: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cryptofp: new gcm: %w", err)
	}
	sealed := append(ciphertext, authTag...)
	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("cryptofp: open: %w", err)
	}
	return string(plaintext), nil
}
