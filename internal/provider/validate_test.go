package provider

import (
	"context"
	"testing"
)

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Message)
		wantErr bool
	}{
		{"valid", func(*Message) {}, false},
		{"localhost recipient", func(m *Message) { m.To = "dev@localhost" }, false},
		{"empty recipient", func(m *Message) { m.To = "" }, true},
		{"no at sign", func(m *Message) { m.To = "not-an-email" }, true},
		{"display name in address", func(m *Message) { m.To = "Ada <ada@example.com>" }, true},
		{"dotless domain", func(m *Message) { m.To = "ada@example" }, true},
		{"bad sender", func(m *Message) { m.From = "@example.com" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := testMessage()
			tt.mutate(msg)
			err := ValidateMessage("test", msg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !IsPermanent(err) {
				t.Errorf("validation error should be permanent: %v", err)
			}
		})
	}
}

func TestProviders_RejectInvalidAddressBeforeNetwork(t *testing.T) {
	client := &mockHTTPClient{resp: &HTTPResponse{StatusCode: 202}}
	providers := []Provider{
		NewSendGrid(ProviderConfig{APIKey: "k"}, client),
		NewMailgun(ProviderConfig{APIKey: "k", Domain: "mg.example.com"}, client),
		NewResend(ProviderConfig{APIKey: "k", Endpoint: "http://127.0.0.1:1"}),
		NewSMTP(ProviderConfig{SMTPHost: "127.0.0.1", SMTPPort: 1}),
		NewStdout(ProviderConfig{}),
		NewFile(ProviderConfig{Endpoint: t.TempDir()}),
	}

	for _, p := range providers {
		t.Run(p.GetName(), func(t *testing.T) {
			msg := testMessage()
			msg.To = "broken"
			_, err := p.Send(context.Background(), msg)
			if err == nil || !IsPermanent(err) {
				t.Errorf("Send() error = %v, want permanent validation error", err)
			}
		})
	}

	if len(client.requests) != 0 {
		t.Errorf("expected no HTTP requests, got %d", len(client.requests))
	}
}
