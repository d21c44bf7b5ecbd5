// Package util contains internal helpers (hashing, sharding, padding).
//
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import "github.com/cespare/xxhash/v2"

// Hash returns the 64-bit xxhash of a key fingerprint.
// Fingerprints are already canonical strings, so no per-type switch is needed.
func Hash(fp string) uint64 {
	return xxhash.Sum64String(fp)
}
