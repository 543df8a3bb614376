package models

import (
	"fmt"
	"strings"
)

// KeyPrefix namespaces keys in a shared counter store.
type KeyPrefix string

const (
	KeyPrefixCounter KeyPrefix = "rl"
	KeyPrefixPenalty KeyPrefix = "rlp"
)

// NewCounterKey returns the store key for the window counter of
// (endpointType, client). Every segment is sanitized, so an identity
// containing delimiters cannot address another client's bucket.
func NewCounterKey(endpointType EndpointType, client ClientIdentity) string {
	return fmt.Sprintf("%s:%s:%s:%s",
		KeyPrefixCounter,
		sanitizeKeySegment(string(endpointType)),
		sanitizeKeySegment(string(client.Kind())),
		sanitizeKeySegment(client.Value()),
	)
}

// NewPenaltyKey returns the store key for a client's penalty record.
// Penalties are per client, shared across endpoint types.
func NewPenaltyKey(client ClientIdentity) string {
	return fmt.Sprintf("%s:%s:%s",
		KeyPrefixPenalty,
		sanitizeKeySegment(string(client.Kind())),
		sanitizeKeySegment(client.Value()),
	)
}

// sanitizeKeySegment escapes delimiter characters in key segments.
//
// Escape rules (order matters):
//  1. Escape '_' to '__' (escape the escape character first)
//  2. Escape ':' to '_c' (escape the delimiter)
//
// Examples:
//   - "abc:def"  → "abc_cdef"
//   - "abc_def"  → "abc__def"
//   - "abc_:def" → "abc___cdef"
func sanitizeKeySegment(s string) string {
	s = strings.ReplaceAll(s, "_", "__")
	s = strings.ReplaceAll(s, ":", "_c")
	return s
}
