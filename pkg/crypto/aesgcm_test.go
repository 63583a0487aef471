package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

// GCM test vectors from "The Galois/Counter Mode of Operation (GCM)",
// McGrew & Viega, Appendix B (AES-128 cases with 96-bit IVs).
var gcmTestVectors = []struct {
	name       string
	key        string
	nonce      string
	aad        string
	plaintext  string
	ciphertext string
	tag        string
}{
	{
		name:       "TestCase1_Empty",
		key:        "00000000000000000000000000000000",
		nonce:      "000000000000000000000000",
		aad:        "",
		plaintext:  "",
		ciphertext: "",
		tag:        "58e2fccefa7e3061367f1d57a4e7455a",
	},
	{
		name:       "TestCase2_OneBlock",
		key:        "00000000000000000000000000000000",
		nonce:      "000000000000000000000000",
		aad:        "",
		plaintext:  "00000000000000000000000000000000",
		ciphertext: "0388dace60b6a392f328c2b971b2fe78",
		tag:        "ab6e47d42cec13bdf53a67b21257bddf",
	},
	{
		name:       "TestCase4_WithAAD",
		key:        "feffe9928665731c6d6a8f9467308308",
		nonce:      "cafebabefacedbaddecaf888",
		aad:        "feedfacedeadbeeffeedfacedeadbeefabaddad2",
		plaintext:  "d9313225f88406e5a55909c5aff5269a86a7a9531534f7da2e4c303d8a318a721c3c0c95956809532fcf0e2449a6b525b16aedf5aa0de657ba637b39",
		ciphertext: "42831ec2217774244b7221b784d0d49ce3aa212f2c02a4e035c17e2329aca12e21d514b25466931c7d8f6a5aac84aa051ba30b396a0aac973d58e091",
		tag:        "5bc94fbc3221a5db94fae95ae7121a47",
	},
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("invalid hex %q: %v", s, err)
	}
	return b
}

func TestAESGCMVectors(t *testing.T) {
	for _, tc := range gcmTestVectors {
		t.Run(tc.name, func(t *testing.T) {
			key := mustHex(t, tc.key)
			nonce := mustHex(t, tc.nonce)
			aad := mustHex(t, tc.aad)
			plaintext := mustHex(t, tc.plaintext)
			wantCT := mustHex(t, tc.ciphertext)
			wantTag := mustHex(t, tc.tag)

			c, err := NewAESGCM(key)
			if err != nil {
				t.Fatalf("NewAESGCM() error = %v", err)
			}

			ct, tag, err := c.Seal(nonce, plaintext, aad)
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}
			if !bytes.Equal(ct, wantCT) {
				t.Errorf("Seal() ciphertext = %x, want %x", ct, wantCT)
			}
			if !bytes.Equal(tag, wantTag) {
				t.Errorf("Seal() tag = %x, want %x", tag, wantTag)
			}

			got, err := c.Open(nonce, aad, wantCT, wantTag)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if !bytes.Equal(got, plaintext) {
				t.Errorf("Open() = %x, want %x", got, plaintext)
			}
		})
	}
}

func TestAESGCMOpenTampered(t *testing.T) {
	key := mustHex(t, "0102030405060708090a0b0c0d0e0f10")
	nonce := mustHex(t, "000102030405060708090a0b")
	aad := BuildAssociatedData(AssociatedDataVersion, 7)
	plaintext := []byte("cold chain reading, 24 b")

	c, err := NewAESGCM(key)
	if err != nil {
		t.Fatalf("NewAESGCM() error = %v", err)
	}
	ct, tag, err := c.Seal(nonce, plaintext, aad)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	flip := func(b []byte, i int) []byte {
		out := append([]byte(nil), b...)
		out[i/8] ^= 1 << (i % 8)
		return out
	}

	t.Run("ciphertext bit", func(t *testing.T) {
		for i := 0; i < len(ct)*8; i++ {
			pt, err := c.Open(nonce, aad, flip(ct, i), tag)
			if err != ErrAESGCMAuthFailed {
				t.Fatalf("bit %d: Open() error = %v, want %v", i, err, ErrAESGCMAuthFailed)
			}
			if pt != nil {
				t.Fatalf("bit %d: Open() returned plaintext on failure", i)
			}
		}
	})

	t.Run("tag bit", func(t *testing.T) {
		for i := 0; i < len(tag)*8; i++ {
			if _, err := c.Open(nonce, aad, ct, flip(tag, i)); err != ErrAESGCMAuthFailed {
				t.Fatalf("bit %d: Open() error = %v, want %v", i, err, ErrAESGCMAuthFailed)
			}
		}
	})

	t.Run("aad bit", func(t *testing.T) {
		for i := 0; i < len(aad)*8; i++ {
			if _, err := c.Open(nonce, flip(aad, i), ct, tag); err != ErrAESGCMAuthFailed {
				t.Fatalf("bit %d: Open() error = %v, want %v", i, err, ErrAESGCMAuthFailed)
			}
		}
	})

	t.Run("nonce bit", func(t *testing.T) {
		if _, err := c.Open(flip(nonce, 0), aad, ct, tag); err != ErrAESGCMAuthFailed {
			t.Fatalf("Open() error = %v, want %v", err, ErrAESGCMAuthFailed)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		other, _ := NewAESGCM(flip(key, 3))
		if _, err := other.Open(nonce, aad, ct, tag); err != ErrAESGCMAuthFailed {
			t.Fatalf("Open() error = %v, want %v", err, ErrAESGCMAuthFailed)
		}
	})
}

func TestAESGCMInvalidParams(t *testing.T) {
	if _, err := NewAESGCM(make([]byte, 32)); err != ErrAESGCMInvalidKeySize {
		t.Errorf("NewAESGCM(32 bytes) error = %v, want %v", err, ErrAESGCMInvalidKeySize)
	}

	c, err := NewAESGCM(make([]byte, AESGCMKeySize))
	if err != nil {
		t.Fatalf("NewAESGCM() error = %v", err)
	}
	if _, _, err := c.Seal(make([]byte, 13), nil, nil); err != ErrAESGCMInvalidNonceSize {
		t.Errorf("Seal(13-byte nonce) error = %v, want %v", err, ErrAESGCMInvalidNonceSize)
	}
	if _, err := c.Open(make([]byte, 12), nil, nil, make([]byte, 8)); err != ErrAESGCMInvalidTagSize {
		t.Errorf("Open(8-byte tag) error = %v, want %v", err, ErrAESGCMInvalidTagSize)
	}
}
