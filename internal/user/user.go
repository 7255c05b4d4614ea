// Package user provides guest identity generation and the session store
// that keeps a username stable across reconnects of the same client.
package user

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateGuestName returns a random guest username: twelve hex characters,
// unique enough for private-message targeting but not enforced unique.
func GenerateGuestName() string {
	b := make([]byte, 6)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func generateToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
