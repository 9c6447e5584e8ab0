package models

import (
	"errors"
	"fmt"
	"strings"
)

// Scheme names a partitioning scheme.
type Scheme string

const (
	SchemeRange      Scheme = "range"
	SchemeRoundRobin Scheme = "roundrobin"
)

var ErrInvalidScheme = errors.New("invalid partitioning scheme")

// IsValid checks if the scheme is known
func (s Scheme) IsValid() bool {
	switch s {
	case SchemeRange, SchemeRoundRobin:
		return true
	default:
		return false
	}
}

// ParseScheme normalizes a scheme name. "rrobin" and "round-robin" are accepted aliases.
func ParseScheme(s string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "range":
		return SchemeRange, nil
	case "roundrobin", "round-robin", "round_robin", "rrobin":
		return SchemeRoundRobin, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidScheme, s)
	}
}
