package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/cinebot/internal/observability"
)

// ErrNotFound is returned for an unknown session ID.
var ErrNotFound = errors.New("session not found")

// Manager tracks open sessions and ends idle ones.
type Manager struct {
	factory     *Factory
	idleTimeout time.Duration
	logger      *slog.Logger
	metrics     *observability.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager. A non-positive idleTimeout defaults to
// two hours.
func NewManager(factory *Factory, idleTimeout time.Duration) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = 2 * time.Hour
	}
	logger := factory.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		factory:     factory,
		idleTimeout: idleTimeout,
		logger:      logger,
		metrics:     factory.Metrics,
		sessions:    make(map[string]*Session),
	}
}

// Create opens a new session.
func (m *Manager) Create() (*Session, error) {
	s, err := m.factory.New(uuid.NewString())
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.metrics.SessionOpened()
	m.logger.Info("session created", "session", s.ID, "persona", s.Persona().Name)
	return s, nil
}

// Get returns the open session with the given ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// End closes the session with the given ID.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	m.close(s, "ended")
	return nil
}

// ActiveCount returns the number of open sessions.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll ends every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		m.close(s, "shutdown")
	}
}

// StartJanitor ends sessions idle longer than the idle timeout, checking
// every interval until ctx is done.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireIdle()
			}
		}
	}()
}

func (m *Manager) expireIdle() {
	now := time.Now()
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.LastActive()) < m.idleTimeout {
			continue
		}
		delete(m.sessions, id)
		expired = append(expired, s)
	}
	m.mu.Unlock()

	for _, s := range expired {
		m.close(s, "expired")
	}
}

func (m *Manager) close(s *Session, reason string) {
	if err := s.Close(); err != nil {
		m.logger.Warn("session close failed", "session", s.ID, "error", err)
	}
	m.metrics.SessionClosed()
	m.logger.Info("session "+reason, "session", s.ID, "age", time.Since(s.CreatedAt).Round(time.Second))
}
