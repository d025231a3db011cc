package provider

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/textproto"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// SMTP implements the Provider interface by relaying through an SMTP server.
// Port 465 uses implicit TLS, 587 requires STARTTLS, any other port speaks
// plain SMTP and upgrades when the server offers STARTTLS.
type SMTP struct {
	host     string
	port     int
	username string
	password string
	timeout  time.Duration
	tls      *tls.Config
}

// NewSMTP creates an SMTP relay provider.
func NewSMTP(cfg ProviderConfig) *SMTP {
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &SMTP{
		host:     cfg.SMTPHost,
		port:     port,
		username: cfg.Username,
		password: cfg.Password,
		timeout:  timeout,
		tls:      &tls.Config{ServerName: cfg.SMTPHost, MinVersion: tls.VersionTLS12},
	}
}

func (s *SMTP) GetName() string { return "smtp" }

func (s *SMTP) addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// Send relays the message and returns the generated Message-ID.
func (s *SMTP) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	if err := ValidateMessage(s.GetName(), msg); err != nil {
		return nil, err
	}

	messageID := newMessageID(msg.From)
	raw, err := buildMIME(msg, messageID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("smtp: build message: %w", err)
	}

	c, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if err := s.auth(c); err != nil {
		return nil, err
	}
	if err := c.SendMail(msg.From, []string{msg.To}, bytes.NewReader(raw)); err != nil {
		return nil, classifySMTPError(err)
	}
	_ = c.Quit()

	return &DeliveryResult{
		ProviderMessageID: messageID,
		Status:            StatusSent,
		Timestamp:         time.Now(),
		Metadata:          map[string]string{"relay": s.addr()},
	}, nil
}

// HealthCheck connects, authenticates and issues NOOP.
func (s *SMTP) HealthCheck(ctx context.Context) error {
	c, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := s.auth(c); err != nil {
		return err
	}
	if err := c.Noop(); err != nil {
		return fmt.Errorf("smtp: noop: %w", err)
	}
	return c.Quit()
}

func (s *SMTP) dial(ctx context.Context) (*smtp.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	dialer := &net.Dialer{}
	var (
		conn net.Conn
		err  error
	)
	if s.port == 465 {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: s.tls}).DialContext(ctx, "tcp", s.addr())
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", s.addr())
	}
	if err != nil {
		return nil, &ProviderError{Provider: s.GetName(), Message: "dial " + s.addr() + ": " + err.Error()}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline.Add(s.timeout))
	}

	if s.port == 587 {
		c, err := smtp.NewClientStartTLS(conn, s.tls)
		if err != nil {
			conn.Close()
			return nil, &ProviderError{Provider: s.GetName(), Message: "starttls: " + err.Error()}
		}
		return c, nil
	}

	c := smtp.NewClient(conn)
	if s.port != 465 {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(s.tls); err != nil {
				c.Close()
				return nil, &ProviderError{Provider: s.GetName(), Message: "starttls: " + err.Error()}
			}
		}
	}
	return c, nil
}

func (s *SMTP) auth(c *smtp.Client) error {
	if s.username == "" {
		return nil
	}
	if err := c.Auth(sasl.NewPlainClient("", s.username, s.password)); err != nil {
		pe := classifySMTPError(err)
		pe.Message = "auth: " + pe.Message
		return pe
	}
	return nil
}

func classifySMTPError(err error) *ProviderError {
	var se *smtp.SMTPError
	if errors.As(err, &se) {
		return ClassifySMTPCode("smtp", se.Code, se.Message)
	}
	return &ProviderError{Provider: "smtp", Message: err.Error()}
}

func newMessageID(from string) string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	domain := "localhost"
	if i := strings.LastIndex(from, "@"); i >= 0 {
		domain = from[i+1:]
	}
	return "<" + hex.EncodeToString(b) + "@" + domain + ">"
}

// buildMIME renders a multipart/alternative message with quoted-printable
// text and HTML parts.
func buildMIME(msg *Message, messageID string, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := textproto.MIMEHeader{}
	header.Set("From", formatAddress(msg.FromName, msg.From))
	header.Set("To", formatAddress(msg.ToName, msg.To))
	header.Set("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header.Set("Date", now.Format(time.RFC1123Z))
	header.Set("Message-ID", messageID)
	header.Set("MIME-Version", "1.0")
	header.Set("Content-Type", "multipart/alternative; boundary="+mw.Boundary())
	for k, v := range msg.Headers {
		header.Set(k, v)
	}

	keys := make([]string, 0, len(header))
	for k := range header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out bytes.Buffer
	for _, k := range keys {
		for _, v := range header[k] {
			fmt.Fprintf(&out, "%s: %s\r\n", k, v)
		}
	}
	out.WriteString("\r\n")

	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain; charset=utf-8", msg.TextBody},
		{"text/html; charset=utf-8", msg.HTMLBody},
	}
	for _, p := range parts {
		if p.body == "" {
			continue
		}
		pw, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {p.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, err
		}
		qp := quotedprintable.NewWriter(pw)
		if _, err := qp.Write([]byte(p.body)); err != nil {
			return nil, err
		}
		if err := qp.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	out.Write(buf.Bytes())
	return out.Bytes(), nil
}
