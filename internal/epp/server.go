package epp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"
)

// Server accepts registrar connections and runs one goroutine per
// connection: greeting on connect, then a read loop of one message per
// exchange until error or peer close.
type Server struct {
	addr       string
	dispatcher *Dispatcher
	logger     *slog.Logger
}

type ServerOption func(*Server)

func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(addr string, dispatcher *Dispatcher, opts ...ServerOption) *Server {
	s := &Server{
		addr:       addr,
		dispatcher: dispatcher,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve listens until ctx is cancelled. Connection goroutines exit on their
// own read errors; cancellation closes the listener, which also unblocks
// Accept.
func (s *Server) Serve(ctx context.Context) error {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("epp server listening", "addr", s.addr)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

const maxMessageSize = 64 << 10

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	source := remoteHost(conn)
	s.writeResponse(conn, Greeting(s.dispatcher.policy.ServerID))

	buf := make([]byte, maxMessageSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				s.logger.Debug("connection read failed", "source", source, "error", err)
			}
			return
		}

		resp := s.dispatcher.Handle(ctx, buf[:n], source)
		if !s.writeResponse(conn, resp) {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *Server) writeResponse(conn net.Conn, resp Response) bool {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if _, err := conn.Write([]byte(resp.Body)); err != nil {
		s.logger.Debug("connection write failed", "error", err)
		return false
	}
	return true
}

func remoteHost(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}
