package template

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemorySource keeps definitions in memory. Used for built-in defaults and
// tests.
type MemorySource struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewMemorySource creates a source holding defs.
func NewMemorySource(defs ...Definition) *MemorySource {
	s := &MemorySource{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		s.Put(d)
	}
	return s
}

// Put stores or replaces the definition for d.Type.
func (s *MemorySource) Put(d Definition) {
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now()
	}
	s.mu.Lock()
	s.defs[d.Type] = d
	s.mu.Unlock()
}

// Get returns a copy of the active definition for templateType.
func (s *MemorySource) Get(_ context.Context, templateType string) (*Definition, error) {
	s.mu.RLock()
	d, ok := s.defs[templateType]
	s.mu.RUnlock()
	if !ok || !d.Active {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, templateType)
	}
	return &d, nil
}

// Definitions returns every stored definition ordered by type.
func (s *MemorySource) Definitions() []Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Definition, 0, len(s.defs))
	for _, d := range s.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
