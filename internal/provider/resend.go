package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/resend/resend-go/v3"
)

// Resend implements the Provider interface with the Resend SDK.
type Resend struct {
	apiKey string
	client *resend.Client
}

// NewResend creates a Resend provider. A non-empty Endpoint replaces the API
// base URL.
func NewResend(cfg ProviderConfig) *Resend {
	client := resend.NewCustomClient(&http.Client{Timeout: cfg.Timeout}, cfg.APIKey)
	if cfg.Endpoint != "" {
		if u, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/") + "/"); err == nil {
			client.BaseURL = u
		}
	}
	return &Resend{apiKey: cfg.APIKey, client: client}
}

func (r *Resend) GetName() string { return "resend" }

// Send delivers a message via the Resend emails API.
func (r *Resend) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	if err := ValidateMessage(r.GetName(), msg); err != nil {
		return nil, err
	}

	resp, err := r.client.Emails.SendWithContext(ctx, r.buildRequest(msg))
	if err != nil {
		return nil, classifyResendError(err)
	}

	return &DeliveryResult{
		ProviderMessageID: resp.Id,
		Status:            StatusSent,
		Timestamp:         time.Now(),
	}, nil
}

// HealthCheck only checks configuration. Sending-only API keys are rejected
// by every read endpoint, so there is no safe remote check.
func (r *Resend) HealthCheck(_ context.Context) error {
	if r.apiKey == "" {
		return fmt.Errorf("resend: api key not configured")
	}
	return nil
}

func (r *Resend) buildRequest(msg *Message) *resend.SendEmailRequest {
	req := &resend.SendEmailRequest{
		From:    formatAddress(msg.FromName, msg.From),
		To:      []string{formatAddress(msg.ToName, msg.To)},
		Subject: msg.Subject,
		Html:    msg.HTMLBody,
		Text:    msg.TextBody,
		Headers: msg.Headers,
	}

	names := make([]string, 0, len(msg.Tags))
	for name := range msg.Tags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		req.Tags = append(req.Tags, resend.Tag{Name: name, Value: resendTagValue(msg.Tags[name])})
	}
	return req
}

// resendTagValue keeps only the characters Resend accepts in tag values.
func resendTagValue(v string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, v)
}

// classifyResendError maps SDK errors onto ProviderError. The SDK reports API
// failures as plain errors, so classification is by message.
func classifyResendError(err error) *ProviderError {
	text := err.Error()
	lower := strings.ToLower(text)
	permanent := containsPermanentIndicator(text) || containsPermanentServerIndicator(text) ||
		strings.Contains(lower, "api key is invalid") || strings.Contains(lower, "validation_error") || strings.Contains(lower, "domain is not verified")
	if strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests") {
		permanent = false
	}
	return &ProviderError{
		Provider:  "resend",
		Message:   text,
		Permanent: permanent,
	}
}
