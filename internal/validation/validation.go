package validation

import (
	"errors"
	"strings"
	"unicode"
)

// Default rune-length bounds for city names.
const (
	DefaultMinLen = 1
	DefaultMaxLen = 100
)

var (
	// ErrCityEmpty is returned when the city is empty or whitespace-only after trim.
	ErrCityEmpty        = errors.New("city name cannot be empty")
	ErrCityTooShort     = errors.New("city name too short")
	ErrCityTooLong      = errors.New("city name too long")
	ErrCityInvalidChars = errors.New("city name contains invalid characters")
)

// ValidateCity trims the input, enforces length bounds (minLen, maxLen in runes;
// zero disables a bound), and restricts characters to Unicode letters, digits,
// space, comma, hyphen, period and apostrophe ("St. John's", "Winston-Salem").
// Returns the trimmed string. Case is preserved; key normalization is left to callers.
func ValidateCity(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrCityEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrCityTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrCityInvalidChars
		}
	}
	return s, nil
}

// IsInvalidCity reports whether err came from ValidateCity.
func IsInvalidCity(err error) bool {
	return errors.Is(err, ErrCityEmpty) || errors.Is(err, ErrCityTooShort) ||
		errors.Is(err, ErrCityTooLong) || errors.Is(err, ErrCityInvalidChars)
}

func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}
