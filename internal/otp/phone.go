package otp

import (
	"errors"
	"strings"
)

var ErrInvalidPhone = errors.New("invalid phone number")

// NormalizePhone returns a Saudi mobile number as 9665XXXXXXXX. Arabic-Indic
// digits and the usual separators and country-code prefixes are accepted.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= '٠' && r <= '٩':
			b.WriteRune('0' + (r - '٠'))
		case r >= '۰' && r <= '۹':
			b.WriteRune('0' + (r - '۰'))
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", ErrInvalidPhone
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, "00966"):
		digits = digits[5:]
	case strings.HasPrefix(digits, "966"):
		digits = digits[3:]
	case strings.HasPrefix(digits, "05"):
		digits = digits[1:]
	}
	if len(digits) != 9 || digits[0] != '5' {
		return "", ErrInvalidPhone
	}
	return "966" + digits, nil
}
