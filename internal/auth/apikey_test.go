package auth

import (
	"strings"
	"testing"
)

func TestGenerateAPIKey(t *testing.T) {
	key, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v", err)
	}
	if !strings.HasPrefix(key, APIKeyPrefix) {
		t.Errorf("GenerateAPIKey() = %q, missing prefix %q", key, APIKeyPrefix)
	}

	body := strings.TrimPrefix(key, APIKeyPrefix)
	if len(body) != 64 {
		t.Errorf("key body length = %d, want 64", len(body))
	}
	for _, c := range body {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Errorf("key contains non-hex character: %c", c)
			break
		}
	}
}

func TestGenerateAPIKey_Unique(t *testing.T) {
	key1, _ := GenerateAPIKey()
	key2, _ := GenerateAPIKey()

	if key1 == key2 {
		t.Error("GenerateAPIKey() produced duplicate keys")
	}
}
