// Package idgen generates identifiers for ledger entries, orders and events.
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a random UUIDv4 string.
func New() string {
	return uuid.NewString()
}

// WithPrefix returns prefix followed by 32 hex chars of a random UUID
// (e.g. "cle_", "sle_", "ord_", "evt_").
func WithPrefix(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Valid reports whether s is a bare UUID as produced by New.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
