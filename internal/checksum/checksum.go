// Package checksum fingerprints document content so unchanged files can be
// recognised without keeping their bodies around.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// String returns the digest of s.
func String(s string) string {
	return Sum([]byte(s))
}

// Matches reports whether data has the digest sum. An empty sum never matches.
func Matches(sum string, data []byte) bool {
	return sum != "" && Sum(data) == sum
}
