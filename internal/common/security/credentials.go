package security

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

var ErrSealedCorrupt = errors.New("sealed credential is corrupt or was sealed with another key")

// Sealer encrypts platform cookies and passwords at rest.
type Sealer struct {
	key [32]byte
}

// NewSealer takes a 64 character hex key. An empty key derives nothing and
// is rejected, so credentials are never stored in the clear by accident.
func NewSealer(hexKey string) (*Sealer, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("credentials key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("credentials key must be 32 bytes, got %d", len(raw))
	}
	s := &Sealer{}
	copy(s.key[:], raw)
	return s, nil
}

// Seal returns base64(nonce || box). Empty input seals to "".
func (s *Sealer) Seal(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], []byte(plain), &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (s *Sealer) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < 24+secretbox.Overhead {
		return "", ErrSealedCorrupt
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plain, ok := secretbox.Open(nil, raw[24:], &nonce, &s.key)
	if !ok {
		return "", ErrSealedCorrupt
	}
	return string(plain), nil
}
