package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// CodeAlphabet is the symbol set for session codes. 36 symbols at length 5
// gives ~60M codes, plenty for the expected concurrent session count.
const CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	// DefaultCodeLength is the generated session code length.
	DefaultCodeLength = 5

	// MaxCodeAttempts bounds generation retries on uniqueness collisions.
	MaxCodeAttempts = 5
)

// NewSessionCode draws a random human-memorable session code. Uniqueness is
// enforced by the sessions.code constraint; callers retry on collision up to
// MaxCodeAttempts.
func NewSessionCode(length int) (string, error) {
	if length < 4 || length > 6 {
		return "", fmt.Errorf("session code length must be 4-6, got %d", length)
	}
	buf := make([]byte, length)
	max := big.NewInt(int64(len(CodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("draw code symbol: %w", err)
		}
		buf[i] = CodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
