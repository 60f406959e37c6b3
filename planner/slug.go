package planner

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// RandomSlug returns a generator of hex slugs carrying n random bytes.
func RandomSlug(n int) func() (string, error) {
	return func() (string, error) {
		b := make([]byte, n)
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("failed to read random bytes for slug: %w", err)
		}
		return hex.EncodeToString(b), nil
	}
}
