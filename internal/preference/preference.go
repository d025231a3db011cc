// Package preference models recipient notification preferences and the
// quiet-hours window used to defer non-urgent mail.
package preference

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Preferences are a recipient's email settings.
type Preferences struct {
	Email string `json:"email"`
	// Types maps template types to enabled. A type set to false is opted out;
	// types not present are allowed.
	Types      map[string]bool `json:"types,omitempty"`
	QuietHours *QuietHours     `json:"quiet_hours,omitempty"`
}

// Allows reports whether templateType may be sent. Only an explicit false
// disables a type.
func (p *Preferences) Allows(templateType string) bool {
	if p == nil || p.Types == nil {
		return true
	}
	enabled, ok := p.Types[templateType]
	return !ok || enabled
}

// Lookup fetches preferences by recipient email. It returns nil preferences
// and a nil error when the recipient has none stored.
type Lookup interface {
	Get(ctx context.Context, email string) (*Preferences, error)
}

// NormalizeEmail is the key form used by every Lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MemoryLookup keeps preferences in memory.
type MemoryLookup struct {
	mu    sync.RWMutex
	prefs map[string]Preferences
	err   error
}

// NewMemoryLookup creates an empty in-memory lookup.
func NewMemoryLookup() *MemoryLookup {
	return &MemoryLookup{prefs: make(map[string]Preferences)}
}

// Set stores p under its email.
func (m *MemoryLookup) Set(p Preferences) {
	m.mu.Lock()
	m.prefs[NormalizeEmail(p.Email)] = p
	m.mu.Unlock()
}

// FailWith makes every Get return err. Pass nil to clear.
func (m *MemoryLookup) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Get returns a copy of the stored preferences for email, or nil.
func (m *MemoryLookup) Get(_ context.Context, email string) (*Preferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, fmt.Errorf("lookup preferences: %w", m.err)
	}
	p, ok := m.prefs[NormalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	return &p, nil
}
