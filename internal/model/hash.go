package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// SHA256JSON returns the hex SHA-256 of v's canonical JSON form. The value is
// round-tripped through encoding/json so object keys end up sorted and two
// logically equal payloads hash identically regardless of field order.
func SHA256JSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	var norm any
	if err := json.Unmarshal(b, &norm); err != nil {
		return "", fmt.Errorf("normalize payload: %w", err)
	}
	canon, err := json.Marshal(norm)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// HashEmail hashes a customer email (trimmed, lowercased) for storage.
func HashEmail(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}
