package provider

import (
	"errors"
	"time"
)

// ProviderConfig holds configuration for an ESP provider.
type ProviderConfig struct {
	// Type identifies the provider: "sendgrid", "mailgun", "resend", "ses",
	// "msgraph", "smtp", "stdout", "file".
	Type string

	// APIKey is the authentication credential for HTTP providers.
	APIKey string

	// Endpoint overrides the default API URL (useful for testing). For the
	// file provider it is the output directory.
	Endpoint string

	// Timeout is the maximum duration for API calls.
	Timeout time.Duration

	// Domain is the Mailgun sending domain.
	Domain string

	// AWS SES settings. Without AccessKeyID the default AWS credential
	// chain is used.
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// Microsoft Graph client credentials and the mailbox to send as.
	TenantID     string
	ClientID     string
	ClientSecret string
	UserID       string

	// SMTP relay settings.
	SMTPHost string
	SMTPPort int
	Username string
	Password string
}

const defaultTimeout = 30 * time.Second

// Validate checks that required fields are set based on provider type.
func (c *ProviderConfig) Validate() error {
	if c.Type == "" {
		return errors.New("provider type is required")
	}

	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}

	switch c.Type {
	case "sendgrid":
		if c.APIKey == "" {
			return errors.New("sendgrid: api_key is required")
		}
	case "mailgun":
		if c.APIKey == "" {
			return errors.New("mailgun: api_key is required")
		}
		if c.Domain == "" {
			return errors.New("mailgun: domain is required")
		}
	case "resend":
		if c.APIKey == "" {
			return errors.New("resend: api_key is required")
		}
	case "ses":
		if c.Region == "" {
			return errors.New("ses: region is required")
		}
		if c.AccessKeyID != "" && c.SecretAccessKey == "" {
			return errors.New("ses: secret_access_key is required with access_key_id")
		}
	case "msgraph":
		if c.TenantID == "" || c.ClientID == "" || c.ClientSecret == "" {
			return errors.New("msgraph: tenant_id, client_id and client_secret are required")
		}
		if c.UserID == "" {
			return errors.New("msgraph: user_id is required")
		}
	case "smtp":
		if c.SMTPHost == "" {
			return errors.New("smtp: smtp_host is required")
		}
		if c.SMTPPort == 0 {
			c.SMTPPort = 587
		}
		if (c.Username == "") != (c.Password == "") {
			return errors.New("smtp: username and password must be set together")
		}
	case "stdout":
		// No configuration required.
	case "file":
		// Endpoint is used as output directory; optional (defaults to ./mail_output).
	default:
		return errors.New("unknown provider type: " + c.Type)
	}

	return nil
}
