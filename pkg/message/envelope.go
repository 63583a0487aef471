package message

// Envelope is an assembled message split into its wire parts.
//
// Layout: Nonce (12) || Ciphertext (N >= 0) || Tag (16)
//
// The slices alias the buffer passed to Split.
type Envelope struct {
	Nonce      []byte
	Ciphertext []byte
	Tag        []byte
}

// Split divides an assembled message into nonce, ciphertext and tag.
// Returns ErrTooShort if data cannot hold a nonce and a tag.
func Split(data []byte) (*Envelope, error) {
	if len(data) < MinMessageSize {
		return nil, ErrTooShort
	}

	tagStart := len(data) - TagSize
	return &Envelope{
		Nonce:      data[:NonceSize],
		Ciphertext: data[NonceSize:tagStart],
		Tag:        data[tagStart:],
	}, nil
}

// Encode returns nonce || ciphertext || tag in a freshly allocated buffer.
func (e *Envelope) Encode() []byte {
	buf := make([]byte, 0, len(e.Nonce)+len(e.Ciphertext)+len(e.Tag))
	buf = append(buf, e.Nonce...)
	buf = append(buf, e.Ciphertext...)
	buf = append(buf, e.Tag...)
	return buf
}

// Size returns the encoded length of the envelope.
func (e *Envelope) Size() int {
	return len(e.Nonce) + len(e.Ciphertext) + len(e.Tag)
}
