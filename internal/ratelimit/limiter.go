// Package ratelimit implements the two admission layers in front of the
// dispatcher: a per-source fixed-window rate limiter and a per-registrar
// usage throttle with an escalating penalty ladder.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"tshreg/pkg/derrors"
)

// SourceStore counts requests per key inside a fixed window and reports the
// count after the current request is included.
type SourceStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (int, error)
}

// SourceLimiter rejects requests from a source address once its window count
// exceeds the cap. The counter itself is the only state it mutates.
type SourceLimiter struct {
	store  SourceStore
	cap    int
	window time.Duration
	logger *slog.Logger
}

type SourceLimiterOption func(*SourceLimiter)

func WithSourceLogger(logger *slog.Logger) SourceLimiterOption {
	return func(l *SourceLimiter) {
		l.logger = logger
	}
}

func NewSourceLimiter(store SourceStore, cap int, window time.Duration, opts ...SourceLimiterOption) *SourceLimiter {
	l := &SourceLimiter{
		store:  store,
		cap:    cap,
		window: window,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow admits the request when the post-increment window count is within
// the cap.
func (l *SourceLimiter) Allow(ctx context.Context, source string) (bool, error) {
	count, err := l.store.Incr(ctx, source, l.window)
	if err != nil {
		return false, derrors.Wrap(err, derrors.CodeInternal, "rate limit check")
	}
	if count > l.cap {
		l.logger.Debug("rate limit exceeded", "source", source, "count", count, "cap", l.cap)
		return false, nil
	}
	return true, nil
}
