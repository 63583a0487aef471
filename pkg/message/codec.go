package message

import (
	"fmt"

	"github.com/backkem/coldremote/pkg/crypto"
)

// Codec opens and seals assembled messages under a fixed pre-shared key.
// The associated data binds the version byte and the message sequence number
// into every tag.
type Codec struct {
	aead    *crypto.AESGCM
	version uint8
}

// NewCodec creates a new codec with the given 16-byte pre-shared key.
// Messages are authenticated with crypto.AssociatedDataVersion.
func NewCodec(key []byte) (*Codec, error) {
	return NewCodecWithVersion(key, crypto.AssociatedDataVersion)
}

// NewCodecWithVersion creates a codec that binds a non-default version byte
// into the associated data.
func NewCodecWithVersion(key []byte, version uint8) (*Codec, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	aead, err := crypto.NewAESGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	return &Codec{
		aead:    aead,
		version: version,
	}, nil
}

// Open authenticates and decrypts an assembled message.
//
// Parameters:
//   - sequence: sequence number carried by the message's fragments
//   - data: nonce || ciphertext || tag
//
// Returns ErrTooShort without attempting decryption if data cannot hold a
// nonce and tag, and ErrDecryptionFailed if the tag does not verify.
// The nonce is used verbatim; reuse under the same key is not detected here.
func (c *Codec) Open(sequence uint32, data []byte) ([]byte, error) {
	env, err := Split(data)
	if err != nil {
		return nil, err
	}

	aad := crypto.BuildAssociatedData(c.version, sequence)

	plaintext, err := c.aead.Open(env.Nonce, aad, env.Ciphertext, env.Tag)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// Seal encrypts plaintext for the given sequence number.
// The caller supplies a 12-byte nonce that must never repeat under the key.
//
// Returns nonce || ciphertext || tag, ready to be fragmented.
func (c *Codec) Seal(sequence uint32, nonce, plaintext []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, ErrInvalidNonce
	}

	aad := crypto.BuildAssociatedData(c.version, sequence)

	ciphertext, tag, err := c.aead.Seal(nonce, plaintext, aad)
	if err != nil {
		return nil, err
	}

	env := &Envelope{
		Nonce:      nonce,
		Ciphertext: ciphertext,
		Tag:        tag,
	}
	return env.Encode(), nil
}
