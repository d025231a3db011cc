package provider

import (
	"fmt"
	"net/mail"
	"strings"
)

// ValidateMessage checks sender and recipient syntax before any network I/O.
// A failure is a permanent ProviderError: retrying cannot fix an address.
func ValidateMessage(providerName string, msg *Message) error {
	if msg == nil {
		return &ProviderError{Provider: providerName, Message: "nil message", Permanent: true}
	}
	if err := ValidateAddress(msg.To); err != nil {
		return &ProviderError{Provider: providerName, Message: fmt.Sprintf("invalid recipient %q: %v", msg.To, err), Permanent: true}
	}
	if err := ValidateAddress(msg.From); err != nil {
		return &ProviderError{Provider: providerName, Message: fmt.Sprintf("invalid sender %q: %v", msg.From, err), Permanent: true}
	}
	return nil
}

// ValidateAddress accepts a bare addr-spec only; display names travel in
// FromName/ToName.
func ValidateAddress(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return fmt.Errorf("empty address")
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return err
	}
	if parsed.Address != addr {
		return fmt.Errorf("expected bare address")
	}
	if !strings.Contains(addr[strings.LastIndex(addr, "@")+1:], ".") && !strings.HasSuffix(addr, "@localhost") {
		return fmt.Errorf("domain has no dot")
	}
	return nil
}

// formatAddress renders name <addr> when a display name is present.
func formatAddress(name, addr string) string {
	if name == "" {
		return addr
	}
	return (&mail.Address{Name: name, Address: addr}).String()
}
