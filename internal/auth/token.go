package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const (
	// TokenPrefix is the prefix for all bridge tokens
	TokenPrefix = "ech_"
	// TokenLength is the length of the random part of the token
	TokenLength = 32
)

// GenerateToken generates a new bridge token.
func GenerateToken() (string, error) {
	bytes := make([]byte, TokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return TokenPrefix + hex.EncodeToString(bytes), nil
}

// HashToken hashes a token for display and comparison.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// TokenMatches compares two tokens in constant time.
func TokenMatches(got, want string) bool {
	g := sha256.Sum256([]byte(got))
	w := sha256.Sum256([]byte(want))
	return subtle.ConstantTimeCompare(g[:], w[:]) == 1
}
