// Package ident generates public card identifiers.
//
// An identifier is "CARD" followed by the first 8 hex digits of a random
// v4 UUID, upper-cased. That leaves 32 bits of entropy, so uniqueness is
// enforced by the cards primary key and the caller retries on collision.
package ident

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const Prefix = "CARD"

var pattern = regexp.MustCompile(`^CARD[0-9A-F]{8}$`)

// Generator produces card identifiers. Swappable for tests.
type Generator func() string

// New returns a fresh identifier.
func New() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return Prefix + strings.ToUpper(hex[:8])
}

// Valid reports whether id has the CARD[0-9A-F]{8} shape.
func Valid(id string) bool {
	return pattern.MatchString(id)
}
