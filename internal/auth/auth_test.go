package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr error
	}{
		{"Bearer wdk_abc12345", "wdk_abc12345", nil},
		{"bearer wdk_abc12345", "wdk_abc12345", nil},
		{"BEARER   wdk_abc12345  ", "wdk_abc12345", nil},
		{"wdk_abc12345", "wdk_abc12345", nil},
		{"", "", ErrMissingAPIKey},
		{"   ", "", ErrMissingAPIKey},
		{"Bearer tsk_abc12345", "", ErrInvalidAPIKey},
		{"Bearer wdk_", "", ErrInvalidAPIKey},
		{"Basic dXNlcjpwYXNz", "", ErrInvalidAPIKey},
	}
	for _, tt := range tests {
		got, err := BearerToken(tt.header)
		if err != tt.wantErr {
			t.Errorf("BearerToken(%q) error = %v, want %v", tt.header, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("BearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestGenerateAPIKey(t *testing.T) {
	key, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if !strings.HasPrefix(key, KeyPrefix) {
		t.Errorf("key %q missing %s prefix", key, KeyPrefix)
	}
	if len(key) != len(KeyPrefix)+64 {
		t.Errorf("expected %d chars, got %d", len(KeyPrefix)+64, len(key))
	}
	if prefix != key[:8] {
		t.Errorf("prefix = %q, want %q", prefix, key[:8])
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
		t.Errorf("hash does not match key: %v", err)
	}

	other, _, _, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if other == key {
		t.Error("two generated keys are identical")
	}
}
