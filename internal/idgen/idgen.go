// Package idgen generates and checks session ids. An id is short, URL-safe
// and safe to embed as one token of a NATS subject.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// DefaultPrefix is prepended to every generated session id.
var DefaultPrefix = "vs-"

// Alphabet is the character set of the random part. It must stay a subset
// of what Valid accepts.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters after the prefix.
var Length = 12

// MaxLen bounds ids supplied by callers.
const MaxLen = 64

// Generate returns a new session id using the default prefix.
func Generate() (string, error) {
	return GenerateWithPrefix(DefaultPrefix)
}

// GenerateWithPrefix returns a new session id with the given prefix.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// Valid reports whether id may be used as a session id: 1 to MaxLen ASCII
// letters, digits, '-' or '_'. Anything else could split or wildcard a
// subject.
func Valid(id string) bool {
	if id == "" || len(id) > MaxLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
