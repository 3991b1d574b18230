// Package timeutil parses the durations used in policy files.
package timeutil

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNegative is returned for durations below zero.
var ErrNegative = errors.New("duration must not be negative")

// Parse parses a policy duration. An empty value yields zero.
func Parse(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("%q: %w", value, ErrNegative)
	}
	return d, nil
}

// ParseDurationOrDefault returns def when value is empty, malformed or negative.
func ParseDurationOrDefault(value string, def time.Duration) time.Duration {
	if strings.TrimSpace(value) == "" {
		return def
	}
	d, err := Parse(value)
	if err != nil {
		return def
	}
	return d
}
