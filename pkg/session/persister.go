package session

import (
	"context"
	"errors"
	"time"

	"filings-rag-be/pkg/memory"
)

var (
	ErrSessionNotFound = errors.New("session: not found")
	ErrInvalidID       = errors.New("session: invalid session id")
)

// Record is the durable form of a session.
type Record struct {
	SessionID  string          `json:"session_id"`
	UserID     string          `json:"user_id"`
	CreatedAt  time.Time       `json:"created_at"`
	LastActive time.Time       `json:"last_active"`
	Snapshot   memory.Snapshot `json:"snapshot"`
}

// Info describes a session without its memory contents.
type Info struct {
	SessionID          string    `json:"session_id"`
	UserID             string    `json:"user_id"`
	CreatedAt          time.Time `json:"created_at"`
	LastActive         time.Time `json:"last_active"`
	ConversationLength int       `json:"conversation_length"`
	Active             bool      `json:"active"`
}

func (r Record) Info() Info {
	return Info{
		SessionID:          r.SessionID,
		UserID:             r.UserID,
		CreatedAt:          r.CreatedAt,
		LastActive:         r.LastActive,
		ConversationLength: len(r.Snapshot.History),
	}
}

// Persister stores session records. Load and Delete return
// ErrSessionNotFound for unknown ids. List filters by user when userID is
// not empty.
type Persister interface {
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context, sessionID string) (Record, error)
	List(ctx context.Context, userID string) ([]Info, error)
	Delete(ctx context.Context, sessionID string) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// NopPersister keeps nothing.
type NopPersister struct{}

func (NopPersister) Save(context.Context, Record) error { return nil }

func (NopPersister) Load(context.Context, string) (Record, error) {
	return Record{}, ErrSessionNotFound
}

func (NopPersister) List(context.Context, string) ([]Info, error) { return nil, nil }

func (NopPersister) Delete(context.Context, string) error { return ErrSessionNotFound }

func (NopPersister) DeleteOlderThan(context.Context, time.Time) (int, error) { return 0, nil }
