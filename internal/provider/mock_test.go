package provider

import "context"

// mockHTTPClient records the last request and returns a canned response.
type mockHTTPClient struct {
	resp     *HTTPResponse
	err      error
	requests []*HTTPRequest
}

func (m *mockHTTPClient) Do(_ context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func (m *mockHTTPClient) last() *HTTPRequest {
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// mockProvider implements Provider for registry and health tests.
type mockProvider struct {
	name string
	err  error
}

func (m *mockProvider) Send(_ context.Context, _ *Message) (*DeliveryResult, error) {
	return nil, nil
}

func (m *mockProvider) GetName() string { return m.name }

func (m *mockProvider) HealthCheck(_ context.Context) error { return m.err }

func testMessage() *Message {
	return &Message{
		ID:       "1b4e28ba-2fa1-11d2-883f-0016d3cca427",
		From:     "no-reply@example.com",
		FromName: "Directory",
		To:       "ada@example.com",
		ToName:   "Ada Lovelace",
		Subject:  "Welcome",
		HTMLBody: "<p>Hello Ada</p>",
		TextBody: "Hello Ada",
		Tags:     map[string]string{"template": "welcome", "priority": "normal"},
		Metadata: map[string]string{"queue_id": "1b4e28ba"},
	}
}
