package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mailroute/mxrouter/internal/service"
	"github.com/mailroute/mxrouter/pkg/logger"
)

// Config holds TCP server configuration.
type Config struct {
	Listen        string
	ClientTimeout time.Duration // 0 disables the idle deadline
	RateLimit     *RateLimiter  // nil disables rate limiting
}

// Server accepts transport-map lookup connections and answers one
// line-oriented request at a time. Connections are reusable: a client
// may send any number of sequential requests before closing.
type Server struct {
	config Config
	router *service.Router
	logger *logger.Logger

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	activeConnections int64
}

// New creates a server answering lookups through the given router.
func New(config Config, router *service.Router, log *logger.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config: config,
		router: router,
		logger: log.ServerLogger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start binds the listen address and begins accepting connections in the
// background. It returns an error only if the listener cannot be bound.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}
	s.listener = listener

	s.logger.WithField("address", listener.Addr().String()).Info("Transport map server listening")

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ActiveConnections returns the number of currently open client
// connections.
func (s *Server) ActiveConnections() int64 {
	return atomic.LoadInt64(&s.activeConnections)
}

// Stop closes the listener, waits for in-flight connections to finish
// and returns. Waiting is bounded by the context deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Transport map server stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out with %d connections still open", s.ActiveConnections())
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			s.logger.WithError(err).Error("Failed to accept connection")
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection runs the per-connection request loop: read one line,
// dispatch, write one response, repeat until the peer closes, the idle
// deadline fires or the server shuts down.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	atomic.AddInt64(&s.activeConnections, 1)
	defer atomic.AddInt64(&s.activeConnections, -1)

	remote := conn.RemoteAddr().String()
	log := s.logger.ConnectionLogger(remote)
	log.Debug("Connection accepted")

	reader := bufio.NewReader(conn)
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		if s.config.ClientTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.config.ClientTimeout))
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				log.Debug("Connection closed by client")
			case os.IsTimeout(err):
				log.Debug("Connection timed out")
			default:
				log.WithError(err).Debug("Connection read failed")
			}
			return
		}

		if !s.dispatch(conn, log, line) {
			return
		}
	}
}

// dispatch answers one request line. It returns false when the
// connection can no longer be used.
func (s *Server) dispatch(conn net.Conn, log *logger.Logger, line string) bool {
	key, err := ParseRequest(line)
	if err != nil {
		// Protocol errors are reported on the connection, which stays
		// open for the next request.
		log.WithError(err).Debug("Protocol error")
		return s.respond(conn, log, StatusError, err.Error())
	}

	if s.config.RateLimit != nil && !s.config.RateLimit.Allow(conn.RemoteAddr().String()) {
		log.Warn("Rate limit exceeded")
		return s.respond(conn, log, StatusError, "rate limit exceeded")
	}

	address, err := s.router.Lookup(s.ctx, key)
	if err != nil {
		if errors.Is(err, service.ErrNoResult) {
			return s.respond(conn, log, StatusNoResult, noResultMessage)
		}
		log.WithError(err).Error("Lookup failed")
		return s.respond(conn, log, StatusError, "lookup failed")
	}

	return s.respond(conn, log, StatusOK, address)
}

func (s *Server) respond(conn net.Conn, log *logger.Logger, status int, message string) bool {
	if s.config.ClientTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.config.ClientTimeout))
	}

	if _, err := io.WriteString(conn, EncodeResponse(status, message)); err != nil {
		log.WithError(err).Debug("Connection write failed")
		return false
	}
	return true
}
