// Package expiry releases the day's expiring domains back into the pool.
// Release instants are drawn uniformly from a bounded session window with
// cryptographic randomness, so a client cannot script a single well-timed
// burst at a known expiry timestamp.
package expiry

import (
	"context"
	crand "crypto/rand"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"tshreg/internal/domain"
	"tshreg/internal/platform/metrics"
	"tshreg/internal/registry/store"
)

// release is one scheduled domain drop.
type release struct {
	name string
	at   time.Time
}

// Runner performs one expiry session per Run call.
type Runner struct {
	store  store.Store
	window time.Duration

	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	jitter  func(max time.Duration) time.Duration
}

type Option func(*Runner)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithClock overrides wall-clock reads, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// WithSleep overrides the wait between releases, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) {
		r.sleep = sleep
	}
}

// WithJitter overrides the release-time randomness, for tests.
func WithJitter(jitter func(max time.Duration) time.Duration) Option {
	return func(r *Runner) {
		r.jitter = jitter
	}
}

func NewRunner(st store.Store, window time.Duration, opts ...Option) *Runner {
	r := &Runner{
		store:  st,
		window: window,
		logger: slog.Default(),
		now:    time.Now,
		sleep:  sleepContext,
		jitter: cryptoJitter,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cryptoJitter draws uniformly from [0, max). The randomness source is
// cryptographic because predictable release times are exactly what
// drop-catchers need.
func cryptoJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	n, err := crand.Int(crand.Reader, big.NewInt(int64(max)))
	if err != nil {
		// crypto/rand failing is unrecoverable for the scheduler's purpose.
		panic("expiry: crypto randomness unavailable: " + err.Error())
	}
	return time.Duration(n.Int64())
}

// Run executes one expiry session: every active domain expiring today is
// assigned a random release instant inside the session window and
// transitioned to inactive in release order. A persistence failure for one
// domain is logged and skipped; it does not abort the batch.
func (r *Runner) Run(ctx context.Context) error {
	start := r.now()
	r.logger.Info("expiry session started",
		"start", start,
		"window", r.window,
		"expected_end", start.Add(r.window),
	)

	candidates, err := r.store.ListExpiringOn(ctx, start)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		r.logger.Info("expiry session ended", "domains", 0)
		return nil
	}

	releases := make([]release, 0, len(candidates))
	for _, c := range candidates {
		releases = append(releases, release{
			name: c.Name,
			at:   start.Add(r.jitter(r.window)),
		})
	}
	sort.Slice(releases, func(i, j int) bool {
		return releases[i].at.Before(releases[j].at)
	})

	r.logger.Info("releasing expiring domains", "count", len(releases))

	released := 0
	for _, rel := range releases {
		if wait := rel.at.Sub(r.now()); wait > 0 {
			if err := r.sleep(ctx, wait); err != nil {
				r.logger.Info("expiry session interrupted", "released", released, "remaining", len(releases)-released)
				return err
			}
		}

		if err := r.store.SetStatus(ctx, rel.name, domain.StatusInactive); err != nil {
			r.logger.Error("domain release failed", "domain", rel.name, "error", err)
			continue
		}
		released++
		if r.metrics != nil {
			r.metrics.DomainsReleased.Inc()
		}
		r.logger.Info("domain released", "domain", rel.name, "release_time", rel.at)
	}

	r.logger.Info("expiry session ended",
		"start", start,
		"end", r.now(),
		"domains", len(releases),
		"released", released,
	)
	return nil
}

// Schedule runs expiry sessions on a fixed interval until ctx is cancelled.
// The first run happens after one full interval.
func (r *Runner) Schedule(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Run(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("expiry run failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
