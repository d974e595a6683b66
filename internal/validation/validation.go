// Package validation holds input rules for widget settings submitted through the admin API.
package validation

import (
	"errors"
	"strings"
	"unicode"
)

// Location length bounds in runes, applied by the admin API.
const (
	DefaultLocationMinLen = 1
	DefaultLocationMaxLen = 100
)

var (
	// ErrLocationEmpty is returned when location is empty or whitespace-only after trim.
	ErrLocationEmpty = errors.New("location is required")
	// ErrLocationTooShort is returned when location length is below the minimum.
	ErrLocationTooShort = errors.New("location too short")
	// ErrLocationTooLong is returned when location length exceeds the maximum.
	ErrLocationTooLong = errors.New("location too long")
	// ErrLocationInvalidChars is returned when location contains disallowed characters.
	ErrLocationInvalidChars = errors.New("location contains invalid characters")
)

// SanitizeText cleans a free-text settings field: control characters are dropped,
// runs of whitespace collapse to one space, and the result is trimmed.
func SanitizeText(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	pendingSpace := false
	for _, r := range input {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
		case unicode.IsControl(r):
		default:
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateLocation sanitizes the input, enforces length bounds (minLen, maxLen in runes),
// and restricts it to letters, digits, spaces and the punctuation seen in place names
// (comma, hyphen, period, apostrophe). Returns the sanitized location or an error
// suitable for 400 INVALID_LOCATION responses. Case is preserved; the cache key lowers it.
func ValidateLocation(input string, minLen, maxLen int) (string, error) {
	s := SanitizeText(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrLocationEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrLocationTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrLocationTooLong
	}
	for _, c := range r {
		if !isAllowedLocationRune(c) {
			return "", ErrLocationInvalidChars
		}
	}
	return s, nil
}

func isAllowedLocationRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.Is(unicode.Mn, r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}

// ClampCacheMinutes keeps a submitted cache duration at one minute or more.
func ClampCacheMinutes(minutes int) int {
	return max(1, minutes)
}
