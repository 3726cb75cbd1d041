// Package custody models the short-lived confirmation code exchanged at
// the manufacturer/logistics handoff boundary.
package custody

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// Digits is the confirmation code length. The code is exactly this many
// ASCII digits, exchanged out-of-band between manufacturer and carrier.
const Digits = 6

// ErrMismatch is returned when a supplied confirmation code does not match
// the stored one. The batch state is left untouched, so the same actor can
// retry with a corrected code.
var ErrMismatch = errors.New("confirmation code mismatch")

// ConfirmationCode is a single-use numeric secret bound to one handoff.
// IssuedAt is recorded so an expiry or attempt-budget policy can be layered
// on later without touching batch logic.
type ConfirmationCode struct {
	Value    string    `json:"value"`
	IssuedAt time.Time `json:"issued_at"`
}

// Mint returns a fresh confirmation code.
func Mint() (ConfirmationCode, error) {
	buf := make([]byte, Digits)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return ConfirmationCode{}, fmt.Errorf("generating confirmation code: %w", err)
		}
		buf[i] = '0' + byte(n.Int64())
	}
	return ConfirmationCode{Value: string(buf), IssuedAt: time.Now()}, nil
}

// Matches compares candidate against the stored code byte for byte, in
// constant time.
func (c ConfirmationCode) Matches(candidate string) bool {
	if len(c.Value) != Digits || len(candidate) != Digits {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.Value), []byte(candidate)) == 1
}

// Valid reports whether s has the exact shape of a confirmation code.
func Valid(s string) bool {
	if len(s) != Digits {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
