package epp

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"tshreg/internal/domain"
	"tshreg/internal/platform/metrics"
	"tshreg/internal/ratelimit"
	"tshreg/internal/registry/store"
	"tshreg/internal/session"
)

// Policy holds the namespace rules the dispatcher enforces.
type Policy struct {
	Suffix             string
	RegistrationPeriod time.Duration
	ServerID           string
}

// Dispatcher is the per-request protocol state machine. Every failure mode
// is converted to a protocol response here; nothing escapes to crash a
// connection handler.
type Dispatcher struct {
	store    store.Store
	sessions *session.Manager
	limiter  *ratelimit.SourceLimiter
	usage    *ratelimit.UsageThrottle
	policy   Policy

	logger  *slog.Logger
	metrics *metrics.Metrics
	sleep   func(ctx context.Context, d time.Duration)
}

type DispatcherOption func(*Dispatcher)

func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithSleep overrides the penalty delay sleep, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration)) DispatcherOption {
	return func(d *Dispatcher) {
		d.sleep = sleep
	}
}

func NewDispatcher(
	st store.Store,
	sessions *session.Manager,
	limiter *ratelimit.SourceLimiter,
	usage *ratelimit.UsageThrottle,
	policy Policy,
	opts ...DispatcherOption,
) *Dispatcher {
	d := &Dispatcher{
		store:    st,
		sessions: sessions,
		limiter:  limiter,
		usage:    usage,
		policy:   policy,
		logger:   slog.Default(),
		sleep:    sleepWithContext,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Handle processes one wire message from source and returns the response to
// write back. Admission runs before parsing; session validation and the
// usage throttle run before any non-login command reaches the repository.
func (d *Dispatcher) Handle(ctx context.Context, payload []byte, source string) Response {
	allowed, err := d.limiter.Allow(ctx, source)
	if err != nil {
		d.logger.Error("rate limit check failed", "source", source, "error", err)
		return d.record("", SystemError())
	}
	if !allowed {
		if d.metrics != nil {
			d.metrics.RateLimited.Inc()
		}
		return d.record("", RateLimited())
	}

	cmd, err := ParseCommand(payload)
	if err != nil {
		if errors.Is(err, ErrMalformedCommand) {
			return d.record("", MalformedCmd())
		}
		return d.record("", UnknownCmd())
	}

	resp := d.dispatch(ctx, cmd)
	return d.record(cmd.Name(), resp)
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd Command) Response {
	switch c := cmd.(type) {
	case HelloCommand:
		return Greeting(d.policy.ServerID)
	case LoginCommand:
		return d.handleLogin(ctx, c)
	case CheckCommand:
		return d.authenticated(ctx, c.SessionID, func(sess session.Session) Response {
			return d.handleCheck(ctx, c)
		})
	case CreateCommand:
		return d.authenticated(ctx, c.SessionID, func(sess session.Session) Response {
			return d.handleCreate(ctx, c)
		})
	case InfoCommand:
		return d.authenticated(ctx, c.SessionID, func(sess session.Session) Response {
			return d.handleInfo(ctx, c)
		})
	default:
		return UnknownCmd()
	}
}

// authenticated enforces the session precondition and the usage throttle,
// applying soft-ban penalties before running the handler.
func (d *Dispatcher) authenticated(ctx context.Context, token string, handler func(session.Session) Response) Response {
	if token == "" {
		return AuthError()
	}
	sess, ok := d.sessions.Validate(token)
	if !ok {
		return AuthError()
	}

	usage := d.usage.Check(sess.Registrar)
	if !usage.Allowed {
		return UsageLimited()
	}

	if usage.Delay > 0 {
		d.sleep(ctx, usage.Delay)
	}
	if usage.CreditCost > 0 {
		if d.metrics != nil {
			d.metrics.UsagePenalties.Inc()
		}
		if err := d.store.AdjustCredits(ctx, sess.Registrar, -usage.CreditCost); err != nil {
			d.logger.Error("penalty credit deduction failed", "registrar", sess.Registrar, "error", err)
		}
	}

	return handler(sess)
}

func (d *Dispatcher) handleLogin(ctx context.Context, cmd LoginCommand) Response {
	ok, err := d.store.Authenticate(ctx, cmd.ID, cmd.Password)
	if err != nil {
		d.logger.Error("registrar authentication failed", "registrar", cmd.ID, "error", err)
		return SystemError()
	}
	if !ok {
		return AuthError()
	}

	token := d.sessions.Create(cmd.ID)
	if d.metrics != nil {
		d.metrics.ActiveSessions.Set(float64(d.sessions.Len()))
	}
	d.logger.Info("registrar logged in", "registrar", cmd.ID)
	return LoginSuccess(token)
}

func (d *Dispatcher) handleCheck(ctx context.Context, cmd CheckCommand) Response {
	name := strings.ToLower(cmd.Domain)
	avail, err := d.store.IsAvailable(ctx, name)
	if err != nil {
		d.logger.Error("availability check failed", "domain", name, "error", err)
		return SystemError()
	}
	return CheckResponse(name, avail.Available, cmd.SessionID)
}

func (d *Dispatcher) handleCreate(ctx context.Context, cmd CreateCommand) Response {
	name := strings.ToLower(cmd.Domain)
	if !domain.ValidName(name, d.policy.Suffix) {
		return InvalidDomain()
	}

	expiry := domain.ExpiryFrom(time.Now(), d.policy.RegistrationPeriod)
	created, err := d.store.Claim(ctx, name, cmd.Registrar, expiry, domain.GenerateScore())
	if err != nil {
		if errors.Is(err, store.ErrNotAvailable) {
			return Unavailable()
		}
		d.logger.Error("domain claim failed", "domain", name, "registrar", cmd.Registrar, "error", err)
		return SystemError()
	}

	d.logger.Info("domain claimed", "domain", name, "registrar", cmd.Registrar)
	return CreateSuccess(created, cmd.SessionID)
}

func (d *Dispatcher) handleInfo(ctx context.Context, cmd InfoCommand) Response {
	name := strings.ToLower(cmd.Domain)
	rec, err := d.store.FindDomain(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFound()
		}
		d.logger.Error("domain lookup failed", "domain", name, "error", err)
		return SystemError()
	}
	return InfoResponse(rec, cmd.SessionID)
}

func (d *Dispatcher) record(command string, resp Response) Response {
	if d.metrics != nil && command != "" {
		d.metrics.RecordCommand(command, strconv.Itoa(int(resp.Code)))
	}
	return resp
}
