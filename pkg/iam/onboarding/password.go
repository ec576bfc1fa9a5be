package onboarding

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const minPasswordLength = 8

// ValidatePassword enforces the password policy: at least eight characters
// drawing on at least two of upper case, lower case and digits.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return ErrWeakPassword().WithDetail("reason", "too_short")
	}

	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}

	classes := 0
	for _, ok := range []bool{upper, lower, digit} {
		if ok {
			classes++
		}
	}
	if classes < 2 {
		return ErrWeakPassword().WithDetail("reason", "too_simple")
	}
	return nil
}

// NormalizeName trims name and rejects blank input.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName()
	}
	return name, nil
}
