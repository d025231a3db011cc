package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// APIKeyPrefix marks keys issued for this service so they are easy to spot
// in config and secret scanners.
const APIKeyPrefix = "mq_"

const apiKeyBytes = 32

// GenerateAPIKey returns APIKeyPrefix followed by 32 random bytes,
// hex-encoded.
func GenerateAPIKey() (string, error) {
	b := make([]byte, apiKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate API key: %w", err)
	}
	return APIKeyPrefix + hex.EncodeToString(b), nil
}
