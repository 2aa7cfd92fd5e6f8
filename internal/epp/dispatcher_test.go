package epp

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tshreg/internal/domain"
	"tshreg/internal/ratelimit"
	"tshreg/internal/registry/store"
	"tshreg/internal/session"
)

type testEnv struct {
	dispatcher *Dispatcher
	store      *store.Memory
	sessions   *session.Manager
	slept      *[]time.Duration
}

func testPolicy() Policy {
	return Policy{
		Suffix:             ".tsh",
		RegistrationPeriod: 240 * time.Hour,
		ServerID:           "registry.tsh.test",
	}
}

func newTestEnv(t *testing.T, rateCap int, usageCfg ratelimit.UsageConfig) *testEnv {
	t.Helper()

	st := store.NewMemory()
	require.NoError(t, store.SeedRegistrars(context.Background(), st))

	sessions := session.NewManager(30*time.Minute, 5*time.Minute)
	limiter := ratelimit.NewSourceLimiter(ratelimit.NewMemorySourceStore(), rateCap, time.Minute)
	usage := ratelimit.NewUsageThrottle(usageCfg)

	slept := &[]time.Duration{}
	d := NewDispatcher(st, sessions, limiter, usage, testPolicy(),
		WithSleep(func(_ context.Context, dur time.Duration) {
			*slept = append(*slept, dur)
		}),
	)
	return &testEnv{dispatcher: d, store: st, sessions: sessions, slept: slept}
}

func relaxedUsage() ratelimit.UsageConfig {
	return ratelimit.UsageConfig{
		RequestsPerMinute: 1000,
		RequestsPerHour:   10000,
		PenaltyThreshold:  3,
		PenaltyDelay:      2 * time.Second,
		PenaltyCredits:    5,
	}
}

func loginPayload(id, pw string) []byte {
	return fmt.Appendf(nil, `<epp><command><login><clID>%s</clID><pw>%s</pw></login></command></epp>`, id, pw)
}

func checkPayload(name, token string) []byte {
	return fmt.Appendf(nil, `<epp><command><check><domain:check><domain:name>%s</domain:name></domain:check></check></command><clTRID>%s</clTRID></epp>`, name, token)
}

func createPayload(name, registrar, token string) []byte {
	return fmt.Appendf(nil, `<epp><command><create><domain:create><domain:name>%s</domain:name></domain:create></create><clID>%s</clID></command><clTRID>%s</clTRID></epp>`, name, registrar, token)
}

func infoPayload(name, token string) []byte {
	return fmt.Appendf(nil, `<epp><command><info><domain:info><domain:name>%s</domain:name></domain:info></info></command><clTRID>%s</clTRID></epp>`, name, token)
}

// login runs a login command and returns the issued session token.
func (e *testEnv) login(t *testing.T, id, pw string) string {
	t.Helper()
	resp := e.dispatcher.Handle(context.Background(), loginPayload(id, pw), "10.0.0.1")
	require.Equal(t, CodeSuccess, resp.Code)
	m := clTRIDRe.FindStringSubmatch(resp.Body)
	require.NotNil(t, m, "login response must carry the session token")
	return m[1]
}

func TestLoginSuccessOpensSession(t *testing.T) {
	env := newTestEnv(t, 1000, relaxedUsage())

	token := env.login(t, "test1", "test1")
	require.NotEmpty(t, token)
	require.Equal(t, 1, env.sessions.Len())

	sess, ok := env.sessions.Validate(token)
	require.True(t, ok)
	require.Equal(t, "test1", sess.Registrar)
}

func TestLoginBadSecret(t *testing.T) {
	env := newTestEnv(t, 1000, relaxedUsage())

	resp := env.dispatcher.Handle(context.Background(), loginPayload("test1", "wrong"), "10.0.0.1")
	require.Equal(t, CodeAuthError, resp.Code)
	require.Equal(t, 0, env.sessions.Len())
}

func TestLoginUnknownRegistrar(t *testing.T) {
	env := newTestEnv(t, 1000, relaxedUsage())

	resp := env.dispatcher.Handle(context.Background(), loginPayload("nobody", "x"), "10.0.0.1")
	require.Equal(t, CodeAuthError, resp.Code)
}

func TestCommandsRequireSession(t *testing.T) {
	env := newTestEnv(t, 1000, relaxedUsage())
	ctx := context.Background()

	for name, payload := range map[string][]byte{
		"check no token":   checkPayload("shiny.tsh", ""),
		"check bad token":  checkPayload("shiny.tsh", "not-a-session"),
		"create bad token": createPayload("shiny.tsh", "test1", "not-a-session"),
		"info bad token":   infoPayload("shiny.tsh", "not-a-session"),
	} {
		t.Run(name, func(t *testing.T) {
			resp := env.dispatcher.Handle(ctx, payload, "10.0.0.1")
			require.Equal(t, CodeAuthError, resp.Code)
		})
	}
}

func TestCheckIsIdempotent(t *testing.T) {
	env := newTestEnv(t, 1000, relaxedUsage())
	ctx := context.Background()
	token := env.login(t, "test1", "test1")

	for range 3 {
		resp := env.dispatcher.Handle(ctx, checkPayload("shiny.tsh", token), "10.0.0.1")
		require.Equal(t, CodeSuccess, resp.Code)
		require.Contains(t, resp.Body, `avail="1"`)
	}

	_, err := env.store.FindDomain(ctx, "shiny.tsh")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateThenCheckUnavailable(t *testing.T) {
	env := newTestEnv(t, 1000, relaxedUsage())
	ctx := context.Background()
	token := env.login(t, "test1", "test1")

	resp := env.dispatcher.Handle(ctx, createPayload("shiny.tsh", "test1", token), "10.0.0.1")
	require.Equal(t, CodeSuccess, resp.Code)
	require.Contains(t, resp.Body, "<domain:crDate>")
	require.Contains(t, resp.Body, "<domain:exDate>")

	resp = env.dispatcher.Handle(ctx, checkPayload("SHINY.tsh", token), "10.0.0.1")
	require.Equal(t, CodeSuccess, resp.Code)
	require.Contains(t, resp.Body, `avail="0"`)
	require.Contains(t, resp.Body, "In use")
}

func TestCreateConflictOnActiveDomain(t *testing.T) {
	env := newTestEnv(t, 1000, relaxedUsage())
	ctx := context.Background()
	token1 := env.login(t, "test1", "test1")
	token2 := env.login(t, "test2", "test2")

	resp := env.dispatcher.Handle(ctx, createPayload("shiny.tsh", "test1", token1), "10.0.0.1")
	require.Equal(t, CodeSuccess, resp.Code)

	resp = env.dispatcher.Handle(ctx, createPayload("shiny.tsh", "test2", token2), "10.0.0.2")
	require.Equal(t, CodeObjectExists, resp.Code)

	d, err := env.store.FindDomain(ctx, "shiny.tsh")
	require.NoError(t, err)
	require.Equal(t, "test1", d.Registrar)
}

func TestCreateTransfersInactiveDomain(t *testing.T) {
	env := newTestEnv(t, 1000, relaxedUsage())
	ctx := context.Background()
	token1 := env.login(t, "test1", "test1")
	token2 := env.login(t, "test2", "test2")

	resp := env.dispatcher.Handle(ctx, createPayload("shiny.tsh", "test1", token1), "10.0.0.1")
	require.Equal(t, CodeSuccess, resp.Code)
	require.NoError(t, env.store.SetStatus(ctx, "shiny.tsh", domain.StatusInactive))

	resp = env.dispatcher.Handle(ctx, createPayload("shiny.tsh", "test2", token2), "10.0.0.2")
	require.Equal(t, CodeSuccess, resp.Code)

	d, err := env.store.FindDomain(ctx, "shiny.tsh")
	require.NoError(t, err)
	require.Equal(t, "test2", d.Registrar)
	require.Equal(t, domain.StatusActive, d.Status)
	require.NotNil(t, d.ExpiryDate)
	require.True(t, d.ExpiryDate.After(time.Now()))
}

func TestCreateInvalidName(t *testing.T) {
	env := newTestEnv(t, 1000, relaxedUsage())
	ctx := context.Background()
	token := env.login(t, "test1", "test1")

	for _, name := range []string{"shiny.com", "-bad.tsh", "a.tsh", "dou--ble.tsh"} {
		resp := env.dispatcher.Handle(ctx, createPayload(name, "test1", token), "10.0.0.1")
		require.Equal(t, CodeInvalidDomain, resp.Code, "name %q", name)
	}
}

func TestInfo(t *testing.T) {
	env := newTestEnv(t, 1000, relaxedUsage())
	ctx := context.Background()
	token := env.login(t, "test1", "test1")

	resp := env.dispatcher.Handle(ctx, infoPayload("ghost.tsh", token), "10.0.0.1")
	require.Equal(t, CodeNotFound, resp.Code)

	env.dispatcher.Handle(ctx, createPayload("shiny.tsh", "test1", token), "10.0.0.1")
	resp = env.dispatcher.Handle(ctx, infoPayload("shiny.tsh", token), "10.0.0.1")
	require.Equal(t, CodeSuccess, resp.Code)
	require.Contains(t, resp.Body, "<domain:registrant>test1</domain:registrant>")
	require.Contains(t, resp.Body, `<domain:status s="active"/>`)
}

func TestHelloNeedsNoSession(t *testing.T) {
	env := newTestEnv(t, 1000, relaxedUsage())

	resp := env.dispatcher.Handle(context.Background(), []byte(`<epp><hello/></epp>`), "10.0.0.1")
	require.Equal(t, CodeSuccess, resp.Code)
	require.Contains(t, resp.Body, "<svID>registry.tsh.test</svID>")
}

func TestUnknownAndMalformedCommands(t *testing.T) {
	env := newTestEnv(t, 1000, relaxedUsage())
	ctx := context.Background()

	resp := env.dispatcher.Handle(ctx, []byte(`<epp><command><renew/></command></epp>`), "10.0.0.1")
	require.Equal(t, CodeUnknownCommand, resp.Code)

	resp = env.dispatcher.Handle(ctx, []byte(`<epp><command><login><clID>test1</clID></login></command></epp>`), "10.0.0.1")
	require.Equal(t, CodeCommandSyntax, resp.Code)
}

func TestSourceRateLimit(t *testing.T) {
	env := newTestEnv(t, 5, relaxedUsage())
	ctx := context.Background()

	for i := range 5 {
		resp := env.dispatcher.Handle(ctx, []byte(`<epp><hello/></epp>`), "10.0.0.1")
		require.Equal(t, CodeSuccess, resp.Code, "request %d", i+1)
	}

	resp := env.dispatcher.Handle(ctx, []byte(`<epp><hello/></epp>`), "10.0.0.1")
	require.Equal(t, CodeLimitExceeded, resp.Code)

	// Another source is not affected.
	resp = env.dispatcher.Handle(ctx, []byte(`<epp><hello/></epp>`), "10.0.0.2")
	require.Equal(t, CodeSuccess, resp.Code)
}

func TestUsagePenaltyEscalation(t *testing.T) {
	cfg := ratelimit.UsageConfig{
		RequestsPerMinute: 2,
		RequestsPerHour:   10000,
		PenaltyThreshold:  2,
		PenaltyDelay:      2 * time.Second,
		PenaltyCredits:    5,
	}
	env := newTestEnv(t, 1000, cfg)
	ctx := context.Background()
	token := env.login(t, "test1", "test1")

	// Two requests fit the minute cap.
	for range 2 {
		resp := env.dispatcher.Handle(ctx, checkPayload("shiny.tsh", token), "10.0.0.1")
		require.Equal(t, CodeSuccess, resp.Code)
	}

	// Third is over cap; below the penalty threshold it is denied outright.
	resp := env.dispatcher.Handle(ctx, checkPayload("shiny.tsh", token), "10.0.0.1")
	require.Equal(t, CodeLimitExceeded, resp.Code)
	require.Empty(t, *env.slept)

	// At the threshold the request goes through, but slowed and billed.
	resp = env.dispatcher.Handle(ctx, checkPayload("shiny.tsh", token), "10.0.0.1")
	require.Equal(t, CodeSuccess, resp.Code)
	require.Equal(t, []time.Duration{2 * time.Second}, *env.slept)

	r, err := env.store.FindRegistrar(ctx, "test1")
	require.NoError(t, err)
	require.Equal(t, 995, r.Credits)
}
