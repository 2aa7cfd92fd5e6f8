// Package session tracks authenticated registrar connections. The manager is
// the sole owner of session state; handlers only reach it through Validate.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one authenticated login. A closed session is terminal; its
// token never revalidates.
type Session struct {
	ID           string
	Registrar    string
	LoginTime    time.Time
	LastActivity time.Time
	Active       bool
}

// Manager holds live sessions behind a mutex and garbage-collects dead ones
// on a sweep interval, so memory stays bounded even with low traffic.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	idleTimeout   time.Duration
	sweepInterval time.Duration
	logger        *slog.Logger
	now           func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock overrides wall-clock reads, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(idleTimeout, sweepInterval time.Duration, opts ...Option) *Manager {
	m := &Manager{
		sessions:      make(map[string]*Session),
		idleTimeout:   idleTimeout,
		sweepInterval: sweepInterval,
		logger:        slog.Default(),
		now:           time.Now,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create registers a session for an already-authenticated registrar and
// returns its opaque token.
func (m *Manager) Create(registrar string) string {
	token := uuid.NewString()
	now := m.now()

	m.mu.Lock()
	m.sessions[token] = &Session{
		ID:           token,
		Registrar:    registrar,
		LoginTime:    now,
		LastActivity: now,
		Active:       true,
	}
	m.mu.Unlock()

	return token
}

// Validate returns the session for token, refreshing its activity timestamp
// (sliding expiration). Unknown, closed, and idle-expired tokens all report
// absent; an idle-expired session is closed on the spot.
func (m *Manager) Validate(token string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok || !s.Active {
		return Session{}, false
	}

	now := m.now()
	if now.Sub(s.LastActivity) > m.idleTimeout {
		s.Active = false
		m.logger.Info("session idle-expired", "session_id", s.ID, "registrar", s.Registrar)
		return Session{}, false
	}

	s.LastActivity = now
	return *s, true
}

// Close marks the session inactive. Idempotent; the sweep removes it later.
func (m *Manager) Close(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[token]; ok && s.Active {
		s.Active = false
		m.logger.Info("session closed", "session_id", s.ID, "registrar", s.Registrar)
	}
}

// Len reports the number of tracked sessions, including closed ones not yet
// swept.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Start launches the background sweep. Stop terminates it.
func (m *Manager) Start() {
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sweep()
			case <-m.stop:
				return
			}
		}
	}()
}

func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

func (m *Manager) sweep() {
	now := m.now()
	cleaned := 0

	m.mu.Lock()
	for token, s := range m.sessions {
		if !s.Active || now.Sub(s.LastActivity) > m.idleTimeout {
			delete(m.sessions, token)
			cleaned++
		}
	}
	m.mu.Unlock()

	if cleaned > 0 {
		m.logger.Info("swept expired sessions", "count", cleaned)
	}
}
