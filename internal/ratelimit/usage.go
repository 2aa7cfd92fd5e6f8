package ratelimit

import (
	"log/slog"
	"sync"
	"time"
)

// UsageResult is the outcome of one throttle check. When Allowed is true
// with a nonzero Delay and CreditCost, the caller must apply both penalties:
// the registrar is soft-banned, not cut off.
type UsageResult struct {
	Allowed    bool
	Delay      time.Duration
	CreditCost int
}

// UsageConfig holds the per-registrar quota caps and the penalty ladder.
type UsageConfig struct {
	RequestsPerMinute int
	RequestsPerHour   int
	PenaltyThreshold  int
	PenaltyDelay      time.Duration
	PenaltyCredits    int
}

// UsageStats is the mutable per-registrar window state.
type UsageStats struct {
	MinuteCount     int
	HourCount       int
	LastMinuteReset time.Time
	LastHourReset   time.Time
	PenaltyCount    int
}

// UsageThrottle enforces per-registrar quotas over two concurrent windows.
// Persistent offenders cross the penalty threshold and are admitted with a
// delay and a credit deduction instead of being denied outright.
type UsageThrottle struct {
	mu     sync.Mutex
	usage  map[string]*UsageStats
	config UsageConfig
	logger *slog.Logger
	now    func() time.Time
}

type UsageOption func(*UsageThrottle)

func WithUsageLogger(logger *slog.Logger) UsageOption {
	return func(t *UsageThrottle) {
		t.logger = logger
	}
}

// WithUsageClock overrides wall-clock reads, for tests.
func WithUsageClock(now func() time.Time) UsageOption {
	return func(t *UsageThrottle) {
		t.now = now
	}
}

func NewUsageThrottle(config UsageConfig, opts ...UsageOption) *UsageThrottle {
	t := &UsageThrottle{
		usage:  make(map[string]*UsageStats),
		config: config,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Check records one request for the registrar against both windows and
// decides admission. Below the penalty threshold an over-cap request is
// denied with no side effects beyond the counters; at or above it, the
// request is admitted carrying the penalty.
func (t *UsageThrottle) Check(registrar string) UsageResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := t.getOrCreateLocked(registrar)
	t.resetWindowsLocked(stats)

	stats.MinuteCount++
	stats.HourCount++

	overMinute := stats.MinuteCount > t.config.RequestsPerMinute
	overHour := stats.HourCount > t.config.RequestsPerHour
	if !overMinute && !overHour {
		return UsageResult{Allowed: true}
	}

	stats.PenaltyCount++
	if stats.PenaltyCount >= t.config.PenaltyThreshold {
		t.logger.Warn("usage soft ban applied",
			"registrar", registrar,
			"penalties", stats.PenaltyCount,
			"delay", t.config.PenaltyDelay,
			"credits", t.config.PenaltyCredits,
		)
		return UsageResult{
			Allowed:    true,
			Delay:      t.config.PenaltyDelay,
			CreditCost: t.config.PenaltyCredits,
		}
	}

	t.logger.Debug("usage limit exceeded", "registrar", registrar, "penalties", stats.PenaltyCount)
	return UsageResult{Allowed: false}
}

// Stats returns a copy of the registrar's current usage state, or false if
// it has never been throttle-checked.
func (t *UsageThrottle) Stats(registrar string) (UsageStats, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats, ok := t.usage[registrar]
	if !ok {
		return UsageStats{}, false
	}
	return *stats, true
}

func (t *UsageThrottle) getOrCreateLocked(registrar string) *UsageStats {
	if stats, ok := t.usage[registrar]; ok {
		return stats
	}
	now := t.now()
	stats := &UsageStats{LastMinuteReset: now, LastHourReset: now}
	t.usage[registrar] = stats
	return stats
}

// resetWindowsLocked starts fresh windows when their age is up. The hourly
// reset also clears accumulated penalties.
func (t *UsageThrottle) resetWindowsLocked(stats *UsageStats) {
	now := t.now()
	if now.Sub(stats.LastMinuteReset) >= time.Minute {
		stats.MinuteCount = 0
		stats.LastMinuteReset = now
	}
	if now.Sub(stats.LastHourReset) >= time.Hour {
		stats.HourCount = 0
		stats.LastHourReset = now
		stats.PenaltyCount = 0
	}
}
