// Package id generates the short prefixed identifiers used for live query
// subscriptions and facade intents. Notes and tags use store-assigned integers.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes name the kind of object an ID belongs to.
const (
	PrefixSubscription = "sub"
	PrefixIntent       = "intent"
)

// alphabet avoids '-' and '_' so the prefix separator is unambiguous.
const (
	alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	size     = 16
)

// Generate creates a prefixed unique ID, e.g. "intent-3k9x0c2m7q1b8z4w".
func Generate(prefix string) (string, error) {
	id, err := gonanoid.Generate(alphabet, size)
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if the system is out of entropy.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}
