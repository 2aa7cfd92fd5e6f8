// Command server runs the full registry: the EPP listener, the WHOIS
// listener, the operational HTTP endpoints, the session sweeper, and the
// periodic expiry scheduler.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"tshreg/internal/epp"
	"tshreg/internal/expiry"
	"tshreg/internal/platform/config"
	"tshreg/internal/platform/httpserver"
	"tshreg/internal/platform/logger"
	"tshreg/internal/platform/metrics"
	"tshreg/internal/platform/postgres"
	"tshreg/internal/platform/redis"
	"tshreg/internal/ratelimit"
	"tshreg/internal/registry/store"
	"tshreg/internal/session"
	httpapi "tshreg/internal/transport/http"
	"tshreg/internal/whois"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	st, cleanup, err := buildStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	sourceStore, sourcesLen, err := buildSourceStore(ctx, cfg, log)
	if err != nil {
		return err
	}

	sessions := session.NewManager(cfg.Session.IdleTimeout, cfg.Session.SweepInterval,
		session.WithLogger(log),
	)
	sessions.Start()
	defer sessions.Stop()

	limiter := ratelimit.NewSourceLimiter(sourceStore, cfg.Limits.RateCap, cfg.Limits.RateWindow,
		ratelimit.WithSourceLogger(log),
	)
	usage := ratelimit.NewUsageThrottle(ratelimit.UsageConfig{
		RequestsPerMinute: cfg.Limits.RequestsPerMinute,
		RequestsPerHour:   cfg.Limits.RequestsPerHour,
		PenaltyThreshold:  cfg.Limits.PenaltyThreshold,
		PenaltyDelay:      cfg.Limits.PenaltyDelay,
		PenaltyCredits:    cfg.Limits.PenaltyCredits,
	}, ratelimit.WithUsageLogger(log))

	dispatcher := epp.NewDispatcher(st, sessions, limiter, usage, epp.Policy{
		Suffix:             cfg.Registry.Suffix,
		RegistrationPeriod: cfg.Registry.RegistrationPeriod,
		ServerID:           cfg.Registry.ServerID,
	}, epp.WithLogger(log), epp.WithMetrics(m))

	eppServer := epp.NewServer(cfg.EPP.Addr, dispatcher, epp.WithServerLogger(log))
	whoisServer := whois.NewServer(cfg.Whois.Addr, st,
		whois.WithLogger(log),
		whois.WithMetrics(m),
	)

	apiHandler := httpapi.NewHandler(func() httpapi.Stats {
		return httpapi.Stats{
			ActiveSessions: sessions.Len(),
			TrackedSources: sourcesLen(),
		}
	}, log)
	apiServer := httpserver.New(cfg.HTTP.Addr, httpapi.NewRouter(apiHandler))

	expiryRunner := expiry.NewRunner(st, cfg.Expiry.SessionWindow,
		expiry.WithLogger(log),
		expiry.WithMetrics(m),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eppServer.Serve(ctx)
	})
	g.Go(func() error {
		return whoisServer.Serve(ctx)
	})
	g.Go(func() error {
		log.Info("http server listening", "addr", cfg.HTTP.Addr)
		return httpserver.Run(ctx, apiServer, cfg.HTTP.ShutdownTimeout)
	})
	g.Go(func() error {
		err := expiryRunner.Schedule(ctx, cfg.Expiry.RunInterval)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	log.Info("registry started",
		"epp_addr", cfg.EPP.Addr,
		"whois_addr", cfg.Whois.Addr,
		"http_addr", cfg.HTTP.Addr,
	)

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	log.Info("registry stopped")
	return nil
}

// buildStore selects the PostgreSQL store when a DSN is configured and the
// in-memory store otherwise. Both get the demo registrars seeded.
func buildStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (store.Store, func(), error) {
	if cfg.Database.DSN == "" {
		log.Info("using in-memory store")
		st := store.NewMemory()
		if err := store.SeedRegistrars(ctx, st); err != nil {
			return nil, nil, fmt.Errorf("seed registrars: %w", err)
		}
		return st, func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	st := store.NewPostgres(pool)
	if err := store.SeedRegistrars(ctx, st); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("seed registrars: %w", err)
	}
	log.Info("using postgres store")
	return st, pool.Close, nil
}

// buildSourceStore selects Redis-backed rate limit counters when Redis is
// configured, falling back to per-process in-memory counters.
func buildSourceStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (ratelimit.SourceStore, func() int, error) {
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	if client == nil {
		log.Info("using in-memory rate limit store")
		mem := ratelimit.NewMemorySourceStore()
		return mem, mem.Len, nil
	}
	log.Info("using redis rate limit store")
	return ratelimit.NewRedisSourceStore(client), func() int { return 0 }, nil
}
