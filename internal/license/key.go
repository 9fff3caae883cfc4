package license

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrKeyRequired      = errors.New("Please enter your license key")
	ErrInvalidKeyFormat = errors.New("Invalid license key format")
)

var keyPattern = regexp.MustCompile(`^SH-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

// NormalizeKey upper-cases input and drops anything outside [A-Z0-9-].
func NormalizeKey(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(raw) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateKey checks a normalized key.
func ValidateKey(key string) error {
	if key == "" {
		return ErrKeyRequired
	}
	if !keyPattern.MatchString(key) {
		return ErrInvalidKeyFormat
	}
	return nil
}

// MaskKey hides the two middle groups: SH-ABCD-****-****-WXYZ.
func MaskKey(key string) string {
	parts := strings.Split(key, "-")
	if len(parts) != 5 {
		return "****"
	}
	return strings.Join([]string{parts[0], parts[1], "****", "****", parts[4]}, "-")
}
