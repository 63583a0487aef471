package message

import (
	"errors"

	"github.com/backkem/coldremote/pkg/crypto"
)

// Message layer errors.
var (
	// Assembled message errors
	ErrTooShort = errors.New("message: assembled message shorter than nonce + tag")

	// Security errors
	ErrDecryptionFailed = errors.New("message: decryption/authentication failed")
	ErrInvalidKey       = errors.New("message: invalid encryption key")
	ErrInvalidNonce     = errors.New("message: invalid nonce")

	// Counter errors
	ErrReplayDetected   = errors.New("message: replay detected (sequence not above high-water mark)")
	ErrCounterExhausted = errors.New("message: message counter exhausted")
)

// Assembled message layout constants.
const (
	// NonceSize is the sender-supplied nonce prefix length.
	NonceSize = crypto.AESGCMNonceSize

	// TagSize is the authentication tag suffix length.
	TagSize = crypto.AESGCMTagSize

	// MinMessageSize is the smallest valid assembled message: nonce and tag
	// with an empty ciphertext.
	MinMessageSize = NonceSize + TagSize

	// KeySize is the pre-shared key length.
	KeySize = crypto.AESGCMKeySize
)
