package whois

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"tshreg/internal/platform/metrics"
	"tshreg/internal/registry/store"
)

const (
	readTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
)

// Server answers WHOIS queries. Each connection carries exactly one query
// line and is closed after the answer.
type Server struct {
	addr  string
	store store.Store

	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

func NewServer(addr string, st store.Store, opts ...Option) *Server {
	s := &Server{
		addr:   addr,
		store:  st,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve accepts connections until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.logger.Info("whois server listening", "addr", s.addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("whois accept failed", "error", err)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		return
	}

	answer := s.Answer(ctx, line)
	if s.metrics != nil {
		s.metrics.WhoisQueriesTotal.Inc()
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := conn.Write([]byte(answer)); err != nil {
		s.logger.Error("whois write failed", "error", err)
	}
}

// Answer resolves one raw query line into the response text.
func (s *Server) Answer(ctx context.Context, query string) string {
	query = strings.TrimSpace(query)
	s.logger.Info("whois query", "query", query)

	switch {
	case query == "" || query == "?" || strings.EqualFold(query, "help"):
		return FormatHelp()

	case len(strings.Fields(query)) == 2 && strings.EqualFold(strings.Fields(query)[0], "registrar"):
		id := strings.Fields(query)[1]
		return s.answerRegistrar(ctx, id)

	default:
		return s.answerDomain(ctx, query)
	}
}

func (s *Server) answerDomain(ctx context.Context, name string) string {
	d, err := s.store.FindDomain(ctx, strings.ToLower(name))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("whois domain lookup failed", "domain", name, "error", err)
		}
		return FormatNoMatch(name)
	}
	return FormatDomain(d, s.now())
}

func (s *Server) answerRegistrar(ctx context.Context, id string) string {
	r, err := s.store.FindRegistrar(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("whois registrar lookup failed", "registrar", id, "error", err)
		}
		return FormatNoMatch(id)
	}

	domains, err := s.store.ListByRegistrar(ctx, id)
	if err != nil {
		s.logger.Error("whois portfolio lookup failed", "registrar", id, "error", err)
		domains = nil
	}
	return FormatRegistrar(r, domains)
}
