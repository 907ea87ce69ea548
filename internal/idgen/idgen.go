// Package idgen provides short, URL-safe unique ID generation backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for the ID kinds minted by the pipeline.
const (
	EventPrefix   = "evt-"
	RequestPrefix = "req-"
	AccountPrefix = "acct-"
)

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 12

// NewEventID returns a new unique event id.
func NewEventID() (string, error) {
	return GenerateWithPrefix(EventPrefix)
}

// NewRequestID returns a new unique request (idempotency) id.
func NewRequestID() (string, error) {
	return GenerateWithPrefix(RequestPrefix)
}

// NewAccountID returns a new unique payment-account id.
func NewAccountID() (string, error) {
	return GenerateWithPrefix(AccountPrefix)
}

// GenerateWithPrefix returns a new unique ID with the given prefix.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
