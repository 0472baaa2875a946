package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/drishiq/ddsa/pkg/persistence"
)

// Manager hands out per-thread stores and serializes access to each one.
// Operations on the same thread run to completion before the next begins;
// operations on different threads proceed in parallel.
type Manager struct {
	repo   persistence.ConversationRepository
	logger *slog.Logger

	mu      sync.Mutex
	handles map[string]*handle
}

type handle struct {
	mu    sync.Mutex
	store *Store
}

// NewManager creates a session manager backed by the given repository.
func NewManager(repo persistence.ConversationRepository, logger *slog.Logger) *Manager {
	return &Manager{
		repo:    repo,
		logger:  logger,
		handles: make(map[string]*handle),
	}
}

func (m *Manager) handleFor(threadID string) *handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.handles[threadID]
	if !ok {
		h = &handle{store: newStore(m.repo, m.logger, threadID)}
		m.handles[threadID] = h
	}

	return h
}

// WithThread runs fn with exclusive access to the thread's store. The store
// is not initialized automatically; fn calls Init as needed.
func (m *Manager) WithThread(ctx context.Context, threadID string, fn func(*Store) error) error {
	h := m.handleFor(threadID)

	h.mu.Lock()
	defer h.mu.Unlock()

	return fn(h.store)
}
