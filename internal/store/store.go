// Package store persists finalized study sessions.
//
// The monitoring core never reads the store; it is a write-mostly sink fed
// by the session recorder, plus a query surface for the CLI and HTTP API.
// Two backends exist: "sqlite" for durable history and "memory" for
// ephemeral runs and tests.
package store

import (
	"context"
	"fmt"
	"sync"

	"focusd/internal/session"
)

// Store persists finished sessions, most recent first on listing.
type Store interface {
	SaveSession(s session.StudySession) error
	ListSessions(limit int) ([]session.StudySession, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open creates a store of the given type. An empty type means "memory".
func Open(storeType, path string) (Store, error) {
	switch storeType {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("store: unknown type %q", storeType)
	}
}

// Memory is an in-process store.
type Memory struct {
	mu       sync.Mutex
	sessions []session.StudySession
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// SaveSession prepends the session.
func (m *Memory) SaveSession(s session.StudySession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append([]session.StudySession{s}, m.sessions...)
	return nil
}

// ListSessions returns up to limit sessions, most recent first. A limit of
// zero or less means all.
func (m *Memory) ListSessions(limit int) ([]session.StudySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.sessions)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]session.StudySession, n)
	copy(out, m.sessions[:n])
	return out, nil
}

// Ping always succeeds for the memory store.
func (m *Memory) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the memory store.
func (m *Memory) Close() error {
	return nil
}
