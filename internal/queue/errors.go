package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates no entry exists with the given ID.
	ErrNotFound = errors.New("queue entry not found")

	// ErrNotClaimed indicates a post-claim write found the entry outside
	// the processing state.
	ErrNotClaimed = errors.New("queue entry not in processing state")

	// ErrInvalidRecipient indicates a missing or malformed recipient address.
	ErrInvalidRecipient = errors.New("invalid recipient email")

	// ErrInvalidPriority indicates an unknown priority value.
	ErrInvalidPriority = errors.New("invalid priority")
)

// EnqueueError is returned synchronously by Enqueue. Nothing was persisted.
// It wraps template.ErrTemplateNotFound, template.ErrTemplateCompile,
// ErrInvalidRecipient, ErrInvalidPriority or a store error.
type EnqueueError struct {
	TemplateType string
	Err          error
}

func (e *EnqueueError) Error() string {
	return fmt.Sprintf("enqueue %s: %v", e.TemplateType, e.Err)
}

func (e *EnqueueError) Unwrap() error { return e.Err }
