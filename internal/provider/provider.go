package provider

import (
	"context"
	"time"
)

// Provider defines the interface for sending email through an ESP.
type Provider interface {
	// Send delivers a message through the ESP and returns a delivery result.
	Send(ctx context.Context, msg *Message) (*DeliveryResult, error)
	// GetName returns the provider's identifier (e.g., "sendgrid", "resend").
	GetName() string
	// HealthCheck verifies the provider is reachable and functional.
	HealthCheck(ctx context.Context) error
}

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error)
}

// HTTPRequest represents an outgoing HTTP request.
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// HTTPResponse represents an HTTP response from a provider API.
type HTTPResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Message is a single-recipient transactional email built from a queue
// entry's content snapshot.
type Message struct {
	ID       string
	From     string
	FromName string
	To       string
	ToName   string
	Subject  string
	HTMLBody string
	TextBody string
	// Tags label the message for ESP analytics (template type, priority).
	Tags     map[string]string
	Metadata map[string]string
	Headers  map[string]string
}

// DeliveryResult contains the outcome of a delivery attempt.
type DeliveryResult struct {
	ProviderMessageID string
	Status            DeliveryStatus
	Timestamp         time.Time
	Metadata          map[string]string
}

// DeliveryStatus represents the outcome of an ESP delivery.
type DeliveryStatus string

const (
	StatusSent   DeliveryStatus = "sent"
	StatusFailed DeliveryStatus = "failed"
)
