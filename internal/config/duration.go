package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDuration parses a Go duration string from a config field.
// Empty means zero (caller applies its own default).
func ParseDuration(field, s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0, got %q", field, s)
	}
	return d, nil
}

// DurationOr parses the field and substitutes def when the value is empty or zero.
func DurationOr(field, s string, def time.Duration) (time.Duration, error) {
	d, err := ParseDuration(field, s)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
