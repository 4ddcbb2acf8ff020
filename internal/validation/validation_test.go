package validation

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestValidateCity_EmptyAndWhitespace(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"spaces", "   "},
		{"tab", "\t"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateCity(tc.input, DefaultMinLen, DefaultMaxLen)
			if !errors.Is(err, ErrCityEmpty) {
				t.Errorf("error = %v, want ErrCityEmpty", err)
			}
		})
	}
}

func TestValidateCity_Bounds(t *testing.T) {
	if _, err := ValidateCity("x", 2, 100); !errors.Is(err, ErrCityTooShort) {
		t.Errorf("error = %v, want ErrCityTooShort", err)
	}
	if _, err := ValidateCity(strings.Repeat("a", 101), 1, 100); !errors.Is(err, ErrCityTooLong) {
		t.Errorf("error = %v, want ErrCityTooLong", err)
	}
	if _, err := ValidateCity(strings.Repeat("a", 500), 0, 0); err != nil {
		t.Errorf("zero bounds should disable length checks, got %v", err)
	}
}

func TestValidateCity_InvalidChars(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"slash", "lon/don"},
		{"backslash", "lon\\don"},
		{"question", "lon?don"},
		{"hash", "lon#don"},
		{"control", "lon\x00don"},
		{"percent", "lon%don"},
		{"ampersand", "lon&don"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateCity(tc.input, DefaultMinLen, DefaultMaxLen)
			if !errors.Is(err, ErrCityInvalidChars) {
				t.Errorf("error = %v, want ErrCityInvalidChars", err)
			}
		})
	}
}

func TestValidateCity_Valid(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"London", "London"},
		{"  New York  ", "New York"},
		{"São Paulo", "São Paulo"},
		{"St. John's", "St. John's"},
		{"Winston-Salem, US", "Winston-Salem, US"},
		{"東京", "東京"},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ValidateCity(tc.input, DefaultMinLen, DefaultMaxLen)
			if err != nil {
				t.Fatalf("ValidateCity(%q) error = %v", tc.input, err)
			}
			if got != tc.want {
				t.Errorf("ValidateCity(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestIsInvalidCity(t *testing.T) {
	if !IsInvalidCity(fmt.Errorf("wrap: %w", ErrCityTooLong)) {
		t.Error("IsInvalidCity() = false for wrapped ErrCityTooLong")
	}
	if IsInvalidCity(errors.New("other")) {
		t.Error("IsInvalidCity() = true for unrelated error")
	}
}
