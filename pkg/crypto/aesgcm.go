// AES-GCM authenticated decryption for the radio telemetry link.
// The link uses AES-128-GCM as defined in NIST SP 800-38D with:
//   - Key length: 128 bits (16 bytes)
//   - Nonce length: 96 bits (12 bytes), supplied by the sender
//   - Tag length: 128 bits (16 bytes), appended after the ciphertext

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
)

// AES-GCM constants for the telemetry link.
const (
	// AESGCMKeySize is the AES-128 key size in bytes.
	AESGCMKeySize = 16

	// AESGCMNonceSize is the nonce size in bytes.
	AESGCMNonceSize = 12

	// AESGCMTagSize is the authentication tag size in bytes.
	AESGCMTagSize = 16
)

// Errors
var (
	ErrAESGCMInvalidKeySize   = errors.New("aesgcm: invalid key size, must be 16 bytes")
	ErrAESGCMInvalidNonceSize = errors.New("aesgcm: invalid nonce size, must be 12 bytes")
	ErrAESGCMInvalidTagSize   = errors.New("aesgcm: invalid tag size, must be 16 bytes")
	ErrAESGCMAuthFailed       = errors.New("aesgcm: message authentication failed")
)

// AESGCM is an AES-128-GCM cipher bound to a single pre-shared key.
// It is safe for concurrent use.
type AESGCM struct {
	aead cipher.AEAD
}

// NewAESGCM creates a new AES-128-GCM cipher.
// The key must be exactly 16 bytes (128 bits).
func NewAESGCM(key []byte) (*AESGCM, error) {
	if len(key) != AESGCMKeySize {
		return nil, ErrAESGCMInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &AESGCM{aead: aead}, nil
}

// NonceSize returns the required nonce size for this cipher.
func (c *AESGCM) NonceSize() int {
	return AESGCMNonceSize
}

// TagSize returns the authentication tag size for this cipher.
func (c *AESGCM) TagSize() int {
	return AESGCMTagSize
}

// Seal encrypts and authenticates plaintext with associated data.
//
// Parameters:
//   - nonce: 12-byte nonce (must never repeat under the same key)
//   - plaintext: data to encrypt
//   - aad: additional authenticated data (not encrypted, but authenticated)
//
// Returns the ciphertext (same length as plaintext) and the 16-byte tag separately,
// matching the nonce || ciphertext || tag layout used on the wire.
func (c *AESGCM) Seal(nonce, plaintext, aad []byte) (ciphertext, tag []byte, err error) {
	if len(nonce) != AESGCMNonceSize {
		return nil, nil, ErrAESGCMInvalidNonceSize
	}

	sealed := c.aead.Seal(nil, nonce, plaintext, aad)
	split := len(sealed) - AESGCMTagSize
	return sealed[:split], sealed[split:], nil
}

// Open verifies the tag and decrypts ciphertext.
//
// Decryption and authentication are atomic: if the tag does not verify against
// the exact (key, nonce, aad, ciphertext) tuple, Open returns ErrAESGCMAuthFailed
// and no plaintext, partial or otherwise.
func (c *AESGCM) Open(nonce, aad, ciphertext, tag []byte) ([]byte, error) {
	if len(nonce) != AESGCMNonceSize {
		return nil, ErrAESGCMInvalidNonceSize
	}
	if len(tag) != AESGCMTagSize {
		return nil, ErrAESGCMInvalidTagSize
	}

	// cipher.AEAD expects ciphertext || tag in one slice
	sealed := make([]byte, len(ciphertext)+AESGCMTagSize)
	copy(sealed, ciphertext)
	copy(sealed[len(ciphertext):], tag)

	plaintext, err := c.aead.Open(sealed[:0], nonce, sealed, aad)
	if err != nil {
		return nil, ErrAESGCMAuthFailed
	}
	return plaintext, nil
}

