package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testUsageConfig() UsageConfig {
	return UsageConfig{
		RequestsPerMinute: 5,
		RequestsPerHour:   50,
		PenaltyThreshold:  3,
		PenaltyDelay:      2 * time.Second,
		PenaltyCredits:    5,
	}
}

func TestUsageWithinCaps(t *testing.T) {
	throttle := NewUsageThrottle(testUsageConfig(), WithUsageClock(newTestClock().Now))

	for range 5 {
		res := throttle.Check("test1")
		require.True(t, res.Allowed)
		require.Zero(t, res.Delay)
		require.Zero(t, res.CreditCost)
	}
}

func TestUsageOverCapDeniedBelowThreshold(t *testing.T) {
	throttle := NewUsageThrottle(testUsageConfig(), WithUsageClock(newTestClock().Now))

	for range 5 {
		throttle.Check("test1")
	}

	// Penalties 1 and 2: outright denial with no penalty side effects.
	for range 2 {
		res := throttle.Check("test1")
		require.False(t, res.Allowed)
		require.Zero(t, res.Delay)
		require.Zero(t, res.CreditCost)
	}

	stats, ok := throttle.Stats("test1")
	require.True(t, ok)
	require.Equal(t, 2, stats.PenaltyCount)
}

func TestUsageSoftBanAtThreshold(t *testing.T) {
	throttle := NewUsageThrottle(testUsageConfig(), WithUsageClock(newTestClock().Now))

	for range 7 {
		throttle.Check("test1")
	}

	// Third strike: admitted, but carrying delay and credit cost.
	res := throttle.Check("test1")
	require.True(t, res.Allowed)
	require.Equal(t, 2*time.Second, res.Delay)
	require.Equal(t, 5, res.CreditCost)
}

func TestUsageMinuteWindowResets(t *testing.T) {
	clock := newTestClock()
	throttle := NewUsageThrottle(testUsageConfig(), WithUsageClock(clock.Now))

	for range 6 {
		throttle.Check("test1")
	}

	clock.Advance(time.Minute)

	res := throttle.Check("test1")
	require.True(t, res.Allowed)
	require.Zero(t, res.Delay)

	stats, ok := throttle.Stats("test1")
	require.True(t, ok)
	require.Equal(t, 1, stats.MinuteCount)
	// Minute reset does not forgive penalties.
	require.Equal(t, 1, stats.PenaltyCount)
}

func TestUsageHourlyResetClearsPenalties(t *testing.T) {
	clock := newTestClock()
	throttle := NewUsageThrottle(testUsageConfig(), WithUsageClock(clock.Now))

	for range 8 {
		throttle.Check("test1")
	}
	stats, _ := throttle.Stats("test1")
	require.Equal(t, 3, stats.PenaltyCount)

	clock.Advance(time.Hour)

	res := throttle.Check("test1")
	require.True(t, res.Allowed)

	stats, _ = throttle.Stats("test1")
	require.Zero(t, stats.PenaltyCount)
	require.Equal(t, 1, stats.HourCount)
}

func TestUsageHourCapCountsAcrossMinutes(t *testing.T) {
	clock := newTestClock()
	cfg := testUsageConfig()
	cfg.RequestsPerMinute = 100
	cfg.RequestsPerHour = 10
	throttle := NewUsageThrottle(cfg, WithUsageClock(clock.Now))

	for i := range 10 {
		res := throttle.Check("test1")
		require.True(t, res.Allowed, "request %d within hour cap", i+1)
		clock.Advance(time.Second)
	}

	res := throttle.Check("test1")
	require.False(t, res.Allowed)
}

func TestUsageRegistrarsIndependent(t *testing.T) {
	throttle := NewUsageThrottle(testUsageConfig(), WithUsageClock(newTestClock().Now))

	for range 6 {
		throttle.Check("test1")
	}

	res := throttle.Check("test2")
	require.True(t, res.Allowed)
}
