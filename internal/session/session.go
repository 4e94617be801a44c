// Package session stores chat sessions behind an injected Store.
package session

//go:generate go run ../../cmd/musgen

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("session not found")
	ErrInvalidRole = errors.New("invalid message role")
	ErrStoreClosed = errors.New("session store closed")
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn in a session.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a titled, ordered conversation, optionally scoped to one document.
type Session struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Messages   []Message `json:"messages"`
	DocumentID string    `json:"document_id,omitempty"`
}

// Store persists sessions. Implementations are safe for concurrent use and
// return copies, so callers may modify what they get back.
type Store interface {
	Create(ctx context.Context, documentID string) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	// List returns all sessions, most recently updated first.
	List(ctx context.Context) ([]*Session, error)
	AppendMessage(ctx context.Context, id string, msg Message) (*Session, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Option configures a store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// newSession builds a fresh session titled with its creation time.
func newSession(now time.Time, documentID string) *Session {
	return &Session{
		ID:         uuid.New().String(),
		Title:      "Chat Session " + now.Format("2006-01-02 15:04"),
		CreatedAt:  now,
		UpdatedAt:  now,
		Messages:   []Message{},
		DocumentID: documentID,
	}
}

func validateMessage(msg Message) error {
	if msg.Role != RoleUser && msg.Role != RoleAssistant {
		return ErrInvalidRole
	}
	return nil
}

// clone deep-copies a session.
func clone(s *Session) *Session {
	c := *s
	c.Messages = slices.Clone(s.Messages)
	if c.Messages == nil {
		c.Messages = []Message{}
	}
	return &c
}

// sortByRecent orders sessions by UpdatedAt descending, then ID for ties.
func sortByRecent(sessions []*Session) {
	slices.SortFunc(sessions, func(a, b *Session) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
