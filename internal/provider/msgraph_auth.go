package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"
)

const (
	azureADTokenURLFmt = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
	graphScope         = "https://graph.microsoft.com/.default"
	tokenExpiryBuffer  = 5 * time.Minute
)

// TokenManager caches an Azure AD client credentials token and refreshes it
// shortly before expiry.
type TokenManager struct {
	mu           sync.RWMutex
	clientID     string
	clientSecret string
	tokenURL     string
	client       HTTPClient
	now          func() time.Time

	accessToken string
	expiresAt   time.Time
}

// NewTokenManager creates a token manager for tenantID.
func NewTokenManager(tenantID, clientID, clientSecret string, client HTTPClient) *TokenManager {
	return &TokenManager{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     fmt.Sprintf(azureADTokenURLFmt, url.PathEscape(tenantID)),
		client:       client,
		now:          time.Now,
	}
}

// GetToken returns a cached token or fetches a new one.
func (tm *TokenManager) GetToken(ctx context.Context) (string, error) {
	tm.mu.RLock()
	if tm.validLocked() {
		token := tm.accessToken
		tm.mu.RUnlock()
		return token, nil
	}
	tm.mu.RUnlock()

	return tm.refreshToken(ctx)
}

func (tm *TokenManager) validLocked() bool {
	return tm.accessToken != "" && tm.now().Before(tm.expiresAt.Add(-tokenExpiryBuffer))
}

func (tm *TokenManager) refreshToken(ctx context.Context) (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	// Another caller may have refreshed while we waited.
	if tm.validLocked() {
		return tm.accessToken, nil
	}

	form := url.Values{}
	form.Set("client_id", tm.clientID)
	form.Set("client_secret", tm.clientSecret)
	form.Set("scope", graphScope)
	form.Set("grant_type", "client_credentials")

	resp, err := tm.client.Do(ctx, &HTTPRequest{
		Method: "POST",
		URL:    tm.tokenURL,
		Headers: map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
		},
		Body: []byte(form.Encode()),
	})
	if err != nil {
		return "", fmt.Errorf("msgraph auth: token request: %w", err)
	}
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("msgraph auth: token request returned status %d: %s", resp.StatusCode, string(resp.Body))
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(resp.Body, &tokenResp); err != nil {
		return "", fmt.Errorf("msgraph auth: parse token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("msgraph auth: empty access token in response")
	}

	tm.accessToken = tokenResp.AccessToken
	tm.expiresAt = tm.now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	return tm.accessToken, nil
}

// InvalidateToken forces the next GetToken to fetch a new token.
func (tm *TokenManager) InvalidateToken() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.accessToken = ""
	tm.expiresAt = time.Time{}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}
