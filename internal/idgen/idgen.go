// Package idgen creates random identifiers for domain records.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// Hex returns n random bytes hex-encoded. Panics if the system random
// source is unusable, which is not a recoverable condition.
func Hex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// WithPrefix returns prefix followed by 24 random hex characters,
// e.g. "lic_3f2a...". The prefix makes record types recognizable in
// logs and support tickets.
func WithPrefix(prefix string) string {
	return prefix + Hex(12)
}
