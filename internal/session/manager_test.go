package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testIdleTimeout   = 30 * time.Minute
	testSweepInterval = 5 * time.Minute
)

// fakeClock lets tests move wall time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(clock *fakeClock) *Manager {
	return NewManager(testIdleTimeout, testSweepInterval, WithClock(clock.Now))
}

func TestCreateAndValidate(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(clock)

	token := m.Create("test1")
	require.NotEmpty(t, token)
	require.Equal(t, 1, m.Len())

	s, ok := m.Validate(token)
	require.True(t, ok)
	require.Equal(t, "test1", s.Registrar)
	require.Equal(t, token, s.ID)
}

func TestValidateUnknownToken(t *testing.T) {
	m := newTestManager(newFakeClock())

	_, ok := m.Validate("no-such-token")
	require.False(t, ok)
}

func TestValidateRefreshesActivity(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(clock)
	token := m.Create("test1")

	// Keep touching the session just inside the idle window; the sliding
	// expiration must keep it alive well past one timeout from login.
	for range 4 {
		clock.Advance(testIdleTimeout - time.Minute)
		_, ok := m.Validate(token)
		require.True(t, ok)
	}
}

func TestIdleTimeoutClosesSession(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(clock)
	token := m.Create("test1")

	clock.Advance(testIdleTimeout + time.Second)

	_, ok := m.Validate(token)
	require.False(t, ok)

	// Terminal: the token must not revalidate even within a fresh window.
	_, ok = m.Validate(token)
	require.False(t, ok)
}

func TestCloseIsIdempotentAndTerminal(t *testing.T) {
	m := newTestManager(newFakeClock())
	token := m.Create("test1")

	m.Close(token)
	m.Close(token)

	_, ok := m.Validate(token)
	require.False(t, ok)
}

func TestSweepRemovesDeadSessions(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(clock)

	closed := m.Create("test1")
	m.Close(closed)
	m.Create("test2")

	clock.Advance(testIdleTimeout + time.Second)
	m.sweep()

	// Both the closed and the idle-expired session are gone.
	require.Equal(t, 0, m.Len())
}

func TestSweepKeepsLiveSessions(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(clock)

	m.Create("test1")
	clock.Advance(time.Minute)
	m.sweep()

	require.Equal(t, 1, m.Len())
}

func TestStartStop(t *testing.T) {
	m := NewManager(testIdleTimeout, 10*time.Millisecond)
	m.Start()
	m.Stop()
}

func TestConcurrentCreateValidate(t *testing.T) {
	m := newTestManager(newFakeClock())

	var wg sync.WaitGroup
	validated := make([]bool, 50)
	for i := range validated {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token := m.Create("test1")
			_, validated[i] = m.Validate(token)
		}()
	}
	wg.Wait()

	require.Equal(t, 50, m.Len())
	for _, ok := range validated {
		require.True(t, ok)
	}
}
