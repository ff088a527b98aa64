package store

import (
	"crypto/sha256"
	"encoding/hex"
)

// ChatID derives the deterministic chat identifier for a participant pair.
// The pair is sorted before hashing, so ChatID(a, b) == ChatID(b, a) and the
// same conversation maps to the same id regardless of who sent a message.
func ChatID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	sum := sha256.Sum256([]byte(a + "|" + b))
	return hex.EncodeToString(sum[:])
}
