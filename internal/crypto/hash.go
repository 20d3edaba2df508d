package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashAPIKey computes the SHA-256 hex digest stored for an API key. The
// digest is deterministic so it can be used as a lookup key.
func HashAPIKey(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}
