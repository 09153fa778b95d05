// Package auth verifies the API keys that guard the watchdog HTTP API.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// KeyPrefix starts every watchdog API key.
const KeyPrefix = "wdk_"

// prefixLen is how much of a key is stored in clear for lookup, e.g. "wdk_abcd".
const prefixLen = 8

var (
	ErrMissingAPIKey   = errors.New("missing authorization header")
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrAuthUnavailable = errors.New("auth backend unavailable")
)

// Principal identifies the caller behind a verified key.
type Principal struct {
	KeyPrefix string
}

// BearerToken extracts the API key from an Authorization header value.
func BearerToken(header string) (string, error) {
	token := strings.TrimSpace(header)
	if token == "" {
		return "", ErrMissingAPIKey
	}
	// RFC 6750: the "Bearer" scheme is case-insensitive.
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if !strings.HasPrefix(token, KeyPrefix) || len(token) < prefixLen {
		return "", ErrInvalidAPIKey
	}
	return token, nil
}

// GenerateAPIKey creates a new wdk_ key with its bcrypt hash and prefix.
// Returns (fullKey, hash, prefix, error). The fullKey is shown to the user once.
func GenerateAPIKey() (string, string, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}
	fullKey := KeyPrefix + hex.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(fullKey), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}
	return fullKey, string(hash), fullKey[:prefixLen], nil
}
