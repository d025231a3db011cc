package provider

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// graphClient answers token requests and replays sendStatus for sendMail
// calls in order.
type graphClient struct {
	tokens     int
	sendStatus []int
	requests   []*HTTPRequest
}

func (g *graphClient) Do(_ context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	g.requests = append(g.requests, req)
	if strings.Contains(req.URL, "/oauth2/v2.0/token") {
		g.tokens++
		body := `{"access_token":"token-` + string(rune('0'+g.tokens)) + `","token_type":"Bearer","expires_in":3600}`
		return &HTTPResponse{StatusCode: 200, Body: []byte(body)}, nil
	}
	status := 202
	if len(g.sendStatus) > 0 {
		status, g.sendStatus = g.sendStatus[0], g.sendStatus[1:]
	}
	return &HTTPResponse{StatusCode: status, Body: []byte("graph response")}, nil
}

func (g *graphClient) sends() []*HTTPRequest {
	var out []*HTTPRequest
	for _, r := range g.requests {
		if strings.HasSuffix(r.URL, "/sendMail") {
			out = append(out, r)
		}
	}
	return out
}

func testGraphConfig() ProviderConfig {
	return ProviderConfig{TenantID: "tenant", ClientID: "client", ClientSecret: "secret", UserID: "mailer@example.com"}
}

func TestMSGraph_buildPayload(t *testing.T) {
	m := &MSGraph{}
	msg := testMessage()
	msg.Headers = map[string]string{"X-Entity-Ref": "r1", "List-Unsubscribe": "<mailto:u@example.com>"}

	payload := m.buildPayload(msg)

	if payload.Message.Body.ContentType != "HTML" || payload.Message.Body.Content != "<p>Hello Ada</p>" {
		t.Errorf("body = %+v", payload.Message.Body)
	}
	to := payload.Message.ToRecipients
	if len(to) != 1 || to[0].EmailAddress.Address != "ada@example.com" || to[0].EmailAddress.Name != "Ada Lovelace" {
		t.Errorf("toRecipients = %+v", to)
	}
	if h := payload.Message.InternetMessageHeaders; len(h) != 1 || h[0].Name != "X-Entity-Ref" {
		t.Errorf("only X- headers are allowed, got %+v", h)
	}
}

func TestMSGraph_buildPayload_TextOnly(t *testing.T) {
	m := &MSGraph{}
	msg := testMessage()
	msg.HTMLBody = ""

	body := m.buildPayload(msg).Message.Body
	if body.ContentType != "Text" || body.Content != "Hello Ada" {
		t.Errorf("body = %+v", body)
	}
}

func TestMSGraph_Send_Success(t *testing.T) {
	client := &graphClient{}
	m := NewMSGraph(testGraphConfig(), client)

	result, err := m.Send(context.Background(), testMessage())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if result.ProviderMessageID != testMessage().ID {
		t.Errorf("ProviderMessageID = %q, want the message ID", result.ProviderMessageID)
	}

	sends := client.sends()
	if len(sends) != 1 {
		t.Fatalf("sendMail calls = %d, want 1", len(sends))
	}
	if sends[0].URL != "https://graph.microsoft.com/v1.0/users/mailer@example.com/sendMail" {
		t.Errorf("URL = %q", sends[0].URL)
	}
	if sends[0].Headers["Authorization"] != "Bearer token-1" {
		t.Errorf("Authorization = %q", sends[0].Headers["Authorization"])
	}
	var body map[string]any
	if err := json.Unmarshal(sends[0].Body, &body); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}

	// The cached token is reused.
	if _, err := m.Send(context.Background(), testMessage()); err != nil {
		t.Fatal(err)
	}
	if client.tokens != 1 {
		t.Errorf("token requests = %d, want 1", client.tokens)
	}
}

func TestMSGraph_Send_RefreshesTokenOn401(t *testing.T) {
	client := &graphClient{sendStatus: []int{401, 202}}
	m := NewMSGraph(testGraphConfig(), client)

	if _, err := m.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if client.tokens != 2 {
		t.Errorf("token requests = %d, want 2", client.tokens)
	}
	sends := client.sends()
	if len(sends) != 2 || sends[1].Headers["Authorization"] != "Bearer token-2" {
		t.Errorf("retry did not use the fresh token: %d sends", len(sends))
	}
}

func TestMSGraph_Send_ClassifiesFailure(t *testing.T) {
	client := &graphClient{sendStatus: []int{503}}
	m := NewMSGraph(testGraphConfig(), client)

	_, err := m.Send(context.Background(), testMessage())
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsTransient(err) {
		t.Errorf("503 should be transient: %v", err)
	}
}

func TestTokenManager_RefreshesNearExpiry(t *testing.T) {
	client := &graphClient{}
	tm := NewTokenManager("tenant", "client", "secret", client)
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	tm.now = func() time.Time { return now }

	first, err := tm.GetToken(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if client.requests[0].URL != "https://login.microsoftonline.com/tenant/oauth2/v2.0/token" {
		t.Errorf("token URL = %q", client.requests[0].URL)
	}

	now = now.Add(50 * time.Minute)
	if tok, _ := tm.GetToken(context.Background()); tok != first {
		t.Errorf("token refreshed before expiry buffer: %q", tok)
	}
	now = now.Add(6 * time.Minute)
	if tok, _ := tm.GetToken(context.Background()); tok == first {
		t.Error("token not refreshed inside expiry buffer")
	}
}

func TestTokenManager_Error(t *testing.T) {
	tm := NewTokenManager("tenant", "client", "secret", &mockHTTPClient{resp: &HTTPResponse{StatusCode: 401, Body: []byte("bad secret")}})
	if _, err := tm.GetToken(context.Background()); err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("GetToken() error = %v, want status 401", err)
	}
}
