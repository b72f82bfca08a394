// Package tracking issues and verifies the QR codes stuck on physical
// rolls. A token binds a roll id to a random reference and is sealed so
// a station scanner cannot be fed forged or tampered codes.
package tracking

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/nacl/secretbox"
)

var (
	// ErrInvalidToken indicates a malformed or tampered token.
	ErrInvalidToken = errors.New("tracking: invalid token")
	// ErrExpiredToken indicates the token aged out.
	ErrExpiredToken = errors.New("tracking: token expired")
	// ErrKeySize rejects sealer keys that are not 32 bytes.
	ErrKeySize = errors.New("tracking: key must be 32 bytes")
)

// RollClaim is the payload sealed into a QR token.
type RollClaim struct {
	RollID     int64     `json:"roll_id"`
	JobOrderID int64     `json:"job_order_id"`
	Ref        string    `json:"ref"`
	IssuedAt   time.Time `json:"issued_at"`
}

// Sealer seals and opens roll claims with an XSalsa20-Poly1305 secret
// box keyed from configuration.
type Sealer struct {
	key [32]byte
	ttl time.Duration
	now func() time.Time
}

// NewSealer builds a Sealer. ttl zero disables expiry.
func NewSealer(key []byte, ttl time.Duration) (*Sealer, error) {
	if len(key) != 32 {
		return nil, ErrKeySize
	}
	s := &Sealer{ttl: ttl, now: time.Now}
	copy(s.key[:], key)
	return s, nil
}

// WithNow overrides the sealer clock for testing.
func (s *Sealer) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// Issue seals a claim for the given roll and returns the token along
// with the random reference stored on the roll row.
func (s *Sealer) Issue(rollID, jobOrderID int64) (token string, ref string, err error) {
	ref = uuid.NewString()
	claim := RollClaim{
		RollID:     rollID,
		JobOrderID: jobOrderID,
		Ref:        ref,
		IssuedAt:   s.now().UTC(),
	}
	payload, err := json.Marshal(claim)
	if err != nil {
		return "", "", err
	}
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", "", err
	}
	sealed := secretbox.Seal(nonce[:], payload, &nonce, &s.key)
	return base64.RawURLEncoding.EncodeToString(sealed), ref, nil
}

// Open verifies a token and returns the claim inside it.
func (s *Sealer) Open(token string) (RollClaim, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) < 24+secretbox.Overhead {
		return RollClaim{}, ErrInvalidToken
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	payload, ok := secretbox.Open(nil, raw[24:], &nonce, &s.key)
	if !ok {
		return RollClaim{}, ErrInvalidToken
	}
	var claim RollClaim
	if err := json.Unmarshal(payload, &claim); err != nil {
		return RollClaim{}, ErrInvalidToken
	}
	if claim.RollID <= 0 || claim.Ref == "" {
		return RollClaim{}, ErrInvalidToken
	}
	if s.ttl > 0 && s.now().UTC().Sub(claim.IssuedAt) > s.ttl {
		return RollClaim{}, ErrExpiredToken
	}
	return claim, nil
}
