package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	graphDefaultEndpoint = "https://graph.microsoft.com"
	graphSendMailPathFmt = "/v1.0/users/%s/sendMail"
	graphUserPathFmt     = "/v1.0/users/%s"
)

// MSGraph implements the Provider interface for the Microsoft Graph Mail
// API. It authenticates with the client credentials flow and retries once
// with a fresh token on 401.
type MSGraph struct {
	userID       string
	endpoint     string
	client       HTTPClient
	tokenManager *TokenManager
}

// NewMSGraph creates a Microsoft Graph provider that sends as cfg.UserID.
func NewMSGraph(cfg ProviderConfig, client HTTPClient) *MSGraph {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = graphDefaultEndpoint
	}
	return &MSGraph{
		userID:       cfg.UserID,
		endpoint:     endpoint,
		client:       client,
		tokenManager: NewTokenManager(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, client),
	}
}

func (m *MSGraph) GetName() string { return "msgraph" }

// Send delivers a message via sendMail. Graph returns no message ID, so the
// queue message ID is reported instead.
func (m *MSGraph) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	if err := ValidateMessage(m.GetName(), msg); err != nil {
		return nil, err
	}

	result, err := m.sendWithToken(ctx, msg)
	if err == nil {
		return result, nil
	}

	var pe *ProviderError
	if errors.As(err, &pe) && pe.StatusCode == 401 {
		m.tokenManager.InvalidateToken()
		return m.sendWithToken(ctx, msg)
	}
	return nil, err
}

func (m *MSGraph) sendWithToken(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	token, err := m.tokenManager.GetToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("msgraph: acquire token: %w", err)
	}

	body, err := json.Marshal(m.buildPayload(msg))
	if err != nil {
		return nil, fmt.Errorf("msgraph: marshal request: %w", err)
	}

	resp, err := m.client.Do(ctx, &HTTPRequest{
		Method: "POST",
		URL:    m.endpoint + fmt.Sprintf(graphSendMailPathFmt, url.PathEscape(m.userID)),
		Headers: map[string]string{
			"Authorization": "Bearer " + token,
			"Content-Type":  "application/json",
		},
		Body: body,
	})
	if err != nil {
		return nil, fmt.Errorf("msgraph: send request: %w", err)
	}

	// sendMail answers 202 Accepted.
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &DeliveryResult{
			ProviderMessageID: msg.ID,
			Status:            StatusSent,
			Timestamp:         time.Now(),
			Metadata: map[string]string{
				"status_code": fmt.Sprintf("%d", resp.StatusCode),
			},
		}, nil
	}

	return nil, ClassifyHTTPError(m.GetName(), resp.StatusCode, string(resp.Body))
}

// HealthCheck acquires a token and reads the sending user.
func (m *MSGraph) HealthCheck(ctx context.Context) error {
	token, err := m.tokenManager.GetToken(ctx)
	if err != nil {
		return fmt.Errorf("msgraph: health check token: %w", err)
	}

	resp, err := m.client.Do(ctx, &HTTPRequest{
		Method: "GET",
		URL:    m.endpoint + fmt.Sprintf(graphUserPathFmt, url.PathEscape(m.userID)),
		Headers: map[string]string{
			"Authorization": "Bearer " + token,
		},
	})
	if err != nil {
		return fmt.Errorf("msgraph: health check request: %w", err)
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("msgraph: health check returned status %d", resp.StatusCode)
	}
	return nil
}

type graphSendMailPayload struct {
	Message         graphMessage `json:"message"`
	SaveToSentItems bool         `json:"saveToSentItems"`
}

type graphMessage struct {
	Subject                string           `json:"subject"`
	Body                   graphBody        `json:"body"`
	ToRecipients           []graphRecipient `json:"toRecipients"`
	From                   *graphRecipient  `json:"from,omitempty"`
	Categories             []string         `json:"categories,omitempty"`
	InternetMessageHeaders []graphHeader    `json:"internetMessageHeaders,omitempty"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphRecipient struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
}

type graphEmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

type graphHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (m *MSGraph) buildPayload(msg *Message) graphSendMailPayload {
	body := graphBody{ContentType: "Text", Content: msg.TextBody}
	if msg.HTMLBody != "" {
		body = graphBody{ContentType: "HTML", Content: msg.HTMLBody}
	}

	// Graph only accepts custom headers prefixed with X-.
	var headers []graphHeader
	for _, k := range sortedKeys(msg.Headers) {
		if strings.HasPrefix(strings.ToLower(k), "x-") {
			headers = append(headers, graphHeader{Name: k, Value: msg.Headers[k]})
		}
	}

	return graphSendMailPayload{
		Message: graphMessage{
			Subject: msg.Subject,
			Body:    body,
			ToRecipients: []graphRecipient{
				{EmailAddress: graphEmailAddress{Address: msg.To, Name: msg.ToName}},
			},
			From: &graphRecipient{
				EmailAddress: graphEmailAddress{Address: msg.From, Name: msg.FromName},
			},
			Categories:             sortedValues(msg.Tags),
			InternetMessageHeaders: headers,
		},
	}
}
