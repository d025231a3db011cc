package provider

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

const (
	sesDefaultEndpointFmt = "https://email.%s.amazonaws.com"
	sesSendPath           = "/v2/email/outbound-emails"
	sesAccountPath        = "/v2/email/account"
	sesSigningName        = "ses"
)

// SES implements the Provider interface for the AWS SES v2 API. Requests go
// through an HTTPClient; NewProvider wraps it in a SigV4 signer.
type SES struct {
	region   string
	endpoint string
	client   HTTPClient
}

// NewSES creates an AWS SES provider. client must sign requests; see
// NewSigV4Client.
func NewSES(cfg ProviderConfig, client HTTPClient) *SES {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf(sesDefaultEndpointFmt, cfg.Region)
	}
	return &SES{
		region:   cfg.Region,
		endpoint: endpoint,
		client:   client,
	}
}

func (s *SES) GetName() string { return "ses" }

// Send delivers a message via the SES v2 SendEmail API.
func (s *SES) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	if err := ValidateMessage(s.GetName(), msg); err != nil {
		return nil, err
	}

	body, err := json.Marshal(s.buildPayload(msg))
	if err != nil {
		return nil, fmt.Errorf("ses: marshal request: %w", err)
	}

	resp, err := s.client.Do(ctx, &HTTPRequest{
		Method: "POST",
		URL:    s.endpoint + sesSendPath,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: body,
	})
	if err != nil {
		return nil, fmt.Errorf("ses: send request: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var sesResp sesResponse
		messageID := ""
		if err := json.Unmarshal(resp.Body, &sesResp); err == nil {
			messageID = sesResp.MessageID
		}
		return &DeliveryResult{
			ProviderMessageID: messageID,
			Status:            StatusSent,
			Timestamp:         time.Now(),
			Metadata: map[string]string{
				"region":      s.region,
				"status_code": fmt.Sprintf("%d", resp.StatusCode),
			},
		}, nil
	}

	return nil, ClassifyHTTPError(s.GetName(), resp.StatusCode, string(resp.Body))
}

// HealthCheck verifies SES connectivity and credentials with GetAccount.
func (s *SES) HealthCheck(ctx context.Context) error {
	resp, err := s.client.Do(ctx, &HTTPRequest{
		Method: "GET",
		URL:    s.endpoint + sesAccountPath,
	})
	if err != nil {
		return fmt.Errorf("ses: health check request: %w", err)
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("ses: health check returned status %d", resp.StatusCode)
	}
	return nil
}

type sesPayload struct {
	FromEmailAddress string         `json:"FromEmailAddress"`
	Destination      sesDestination `json:"Destination"`
	Content          sesContent     `json:"Content"`
	EmailTags        []sesTag       `json:"EmailTags,omitempty"`
}

type sesDestination struct {
	ToAddresses []string `json:"ToAddresses"`
}

type sesContent struct {
	Simple sesSimpleContent `json:"Simple"`
}

type sesSimpleContent struct {
	Subject sesBodyPart `json:"Subject"`
	Body    sesBody     `json:"Body"`
	Headers []sesTag    `json:"Headers,omitempty"`
}

type sesBody struct {
	Text *sesBodyPart `json:"Text,omitempty"`
	HTML *sesBodyPart `json:"Html,omitempty"`
}

type sesBodyPart struct {
	Data    string `json:"Data"`
	Charset string `json:"Charset"`
}

// sesTag is a name/value pair; SES uses the same shape for tags and headers.
type sesTag struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

type sesResponse struct {
	MessageID string `json:"MessageId"`
}

func (s *SES) buildPayload(msg *Message) sesPayload {
	var body sesBody
	if msg.TextBody != "" {
		body.Text = &sesBodyPart{Data: msg.TextBody, Charset: "UTF-8"}
	}
	if msg.HTMLBody != "" {
		body.HTML = &sesBodyPart{Data: msg.HTMLBody, Charset: "UTF-8"}
	}

	return sesPayload{
		FromEmailAddress: formatAddress(msg.FromName, msg.From),
		Destination: sesDestination{
			ToAddresses: []string{formatAddress(msg.ToName, msg.To)},
		},
		Content: sesContent{
			Simple: sesSimpleContent{
				Subject: sesBodyPart{Data: msg.Subject, Charset: "UTF-8"},
				Body:    body,
				Headers: sesPairs(msg.Headers),
			},
		},
		EmailTags: sesPairs(msg.Tags),
	}
}

func sesPairs(m map[string]string) []sesTag {
	if len(m) == 0 {
		return nil
	}
	out := make([]sesTag, 0, len(m))
	for _, k := range sortedKeys(m) {
		out = append(out, sesTag{Name: k, Value: m[k]})
	}
	return out
}

// SigV4Client signs every request with AWS Signature Version 4 before
// handing it to the wrapped HTTPClient.
type SigV4Client struct {
	next    HTTPClient
	creds   aws.CredentialsProvider
	signer  *v4.Signer
	service string
	region  string
	now     func() time.Time
}

// NewSigV4Client wraps next so requests are signed for service in region.
func NewSigV4Client(next HTTPClient, creds aws.CredentialsProvider, service, region string) *SigV4Client {
	return &SigV4Client{
		next:    next,
		creds:   creds,
		signer:  v4.NewSigner(),
		service: service,
		region:  region,
		now:     time.Now,
	}
}

// Do forwards a signed copy of req.
func (c *SigV4Client) Do(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	creds, err := c.creds.Retrieve(ctx)
	if err != nil {
		return nil, fmt.Errorf("retrieve aws credentials: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("build signing request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	sum := sha256.Sum256(req.Body)
	if err := c.signer.SignHTTP(ctx, creds, httpReq, hex.EncodeToString(sum[:]), c.service, c.region, c.now()); err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	headers := make(map[string]string, len(httpReq.Header))
	for k := range httpReq.Header {
		headers[k] = httpReq.Header.Get(k)
	}
	signed := *req
	signed.Headers = headers
	return c.next.Do(ctx, &signed)
}

// sesCredentials returns static credentials when an access key is
// configured and otherwise the default AWS chain (environment, shared
// config, instance role).
func sesCredentials(ctx context.Context, cfg ProviderConfig) (aws.CredentialsProvider, error) {
	if cfg.AccessKeyID != "" {
		return credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken), nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg.Credentials, nil
}
