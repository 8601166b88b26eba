// Package session owns the per-session placeholder mappings and
// conversation history. Supports in-memory storage for single-instance
// deployments and Redis for multi-instance deployments.
package session

import (
	"context"
	"errors"
	"time"

	"piiguard/internal/anonymizer"
	"piiguard/internal/core"
)

// ErrNotFound is returned when a session id has no stored state.
var ErrNotFound = errors.New("session not found")

// Session is the unit of mapping ownership. One session covers one
// conversation; its mapping grows monotonically across turns.
type Session struct {
	ID        string                         `json:"id"`
	Mapping   *anonymizer.PlaceholderMapping `json:"mapping"`
	History   []core.Message                 `json:"history"`
	CreatedAt time.Time                      `json:"created_at"`
	UpdatedAt time.Time                      `json:"updated_at"`
}

// NewSession creates an empty session.
func NewSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		Mapping:   anonymizer.NewMapping(),
		History:   nil,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy safe to extend without touching stored state.
func (s *Session) Clone() *Session {
	c := *s
	c.Mapping = s.Mapping.Clone()
	c.History = make([]core.Message, len(s.History))
	copy(c.History, s.History)
	return &c
}

// Store defines session persistence.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get retrieves a session. Returns ErrNotFound when absent.
	Get(ctx context.Context, id string) (*Session, error)

	// Put stores or replaces a session.
	Put(ctx context.Context, session *Session) error

	// Delete removes a session. Deleting an absent session is not an error.
	Delete(ctx context.Context, id string) error

	// Close releases any resources held by the store.
	Close() error
}
