// Package codes mints the opaque per-unit verification codes. The
// generator has no batch-state awareness: the store invokes it at the
// right lifecycle point, inside the admin-approval transaction.
package codes

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
)

// Length is the size of a unit code in characters.
const Length = 12

// charset deliberately omits 0/O/1/l/I so codes survive being read off a
// physical seal.
const charset = "23456789abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"

// maxAttempts bounds collision retries per code before giving up.
const maxAttempts = 10

// TakenFunc reports whether a candidate code already exists in storage.
type TakenFunc func(ctx context.Context, code string) (bool, error)

// New returns a single random unit code.
func New() (string, error) {
	buf := make([]byte, Length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", fmt.Errorf("generating code: %w", err)
		}
		buf[i] = charset[n.Int64()]
	}
	return string(buf), nil
}

// Mint produces count unique codes, checking each candidate against both
// the batch being minted and existing storage via taken, retrying on
// collision. The code space is ~57^12, so retries are vanishingly rare in
// practice; the check exists so uniqueness never rests on probability
// alone.
func Mint(ctx context.Context, count int, taken TakenFunc) ([]string, error) {
	if count <= 0 {
		return nil, fmt.Errorf("code count must be positive, got %d", count)
	}

	minted := make([]string, 0, count)
	seen := make(map[string]bool, count)

	for len(minted) < count {
		var code string
		ok := false
		for attempt := 0; attempt < maxAttempts; attempt++ {
			candidate, err := New()
			if err != nil {
				return nil, err
			}
			if seen[candidate] {
				continue
			}
			exists, err := taken(ctx, candidate)
			if err != nil {
				return nil, fmt.Errorf("checking code uniqueness: %w", err)
			}
			if exists {
				continue
			}
			code, ok = candidate, true
			break
		}
		if !ok {
			return nil, fmt.Errorf("could not mint a unique code after %d attempts", maxAttempts)
		}
		seen[code] = true
		minted = append(minted, code)
	}

	return minted, nil
}
