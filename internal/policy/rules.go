// Package policy holds the product rules that sit above the game engine:
// what names are acceptable and how large a party may grow. Pure functions,
// evaluated before any write.
package policy

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/whodunit/platform/internal/domain"
)

const (
	// DisplayNameMaxLen bounds names so rosters render predictably.
	DisplayNameMaxLen = 32
	// MaxParticipants caps a session. Past this size a single hidden role
	// cannot realistically keep up, and the party stops being playable.
	MaxParticipants = 20
)

// ValidateDisplayName normalizes and checks a proposed display name,
// returning the trimmed form.
func ValidateDisplayName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", domain.ErrValidation("display_name is required")
	}
	if utf8.RuneCountInString(trimmed) > DisplayNameMaxLen {
		return "", domain.ErrValidation("display_name is too long")
	}
	for _, r := range trimmed {
		if !unicode.IsPrint(r) {
			return "", domain.ErrValidation("display_name contains unprintable characters")
		}
	}
	return trimmed, nil
}

// CheckCapacity rejects a join that would push the roster past the cap.
func CheckCapacity(currentSize int) error {
	if currentSize >= MaxParticipants {
		return domain.ErrConflict("session is full")
	}
	return nil
}
