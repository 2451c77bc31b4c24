// Package session tracks authenticated analysis sessions. A session binds
// validated credentials to the wired pipeline components; documents and
// analyses always run inside one.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/counselai/counsel/internal/ingest"
	"github.com/counselai/counsel/internal/llm"
	"github.com/counselai/counsel/internal/retrieval"
	"github.com/counselai/counsel/internal/team"
	"github.com/counselai/counsel/internal/vectorstore"
)

// ErrNotFound is returned for unknown or closed session IDs.
var ErrNotFound = errors.New("session not found")

// Credentials are the per-session secrets supplied at creation.
type Credentials struct {
	OpenAIKey string
	QdrantURL string
	QdrantKey string
}

// Components is the session's wired pipeline. The builder validates the
// credentials before returning it.
type Components struct {
	LLM       *llm.Client
	Store     vectorstore.Store
	Pipeline  *ingest.Pipeline
	Retriever *retrieval.Retriever
	Team      *team.Coordinator
}

// Builder constructs and validates components from credentials. It must fail
// fast on bad credentials so no document work starts against them.
type Builder func(ctx context.Context, creds Credentials) (*Components, error)

// Session is one live analysis session.
type Session struct {
	ID         string
	CreatedAt  time.Time
	KeyPrefix  string // redacted credential hint for display, never the key
	Components *Components
}

// Manager owns the session table. Safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	build    Builder
	logger   *slog.Logger
}

// NewManager creates a Manager around the given component builder.
func NewManager(build Builder, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		build:    build,
		logger:   logger,
	}
}

// Create validates the credentials through the builder and registers a new
// session. The full key is never logged, only its redacted prefix.
func (m *Manager) Create(ctx context.Context, creds Credentials) (*Session, error) {
	components, err := m.build(ctx, creds)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:         uuid.New().String(),
		CreatedAt:  time.Now().UTC(),
		KeyPrefix:  Redact(creds.OpenAIKey),
		Components: components,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Info("session created", "session_id", s.ID, "key", s.KeyPrefix)
	return s, nil
}

// Get returns the session or ErrNotFound.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Close removes the session. Closing an unknown session is ErrNotFound.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	m.logger.Info("session closed", "session_id", id)
	return nil
}

// List returns the live sessions in unspecified order.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Redact returns a short non-reversible prefix of a secret for display.
func Redact(secret string) string {
	if secret == "" {
		return ""
	}
	const keep = 7
	if len(secret) <= keep {
		return secret[:1] + "..."
	}
	return secret[:keep] + "..."
}
