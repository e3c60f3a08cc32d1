// Package server implements the framed-message TCP listener: one
// goroutine per connection, a handler registry populated at startup,
// and the JSON-output wrapping contract shared by every handler.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"shardindex/internal/logging"
	"shardindex/internal/protocol"
)

// Handler processes one decoded frame and returns a value for the
// JSON-output contract. A non-nil error means an internal failure
// (HandlerException): the connection is closed with no reply guarantee.
// Validation failures are not errors — return a value such as
// map[string]any{"error": "Invalid search_input"} instead.
type Handler func(ctx context.Context, frame *protocol.Frame) (any, error)

// Config holds the tunables for a Server.
type Config struct {
	ChunkReadTimeout time.Duration
	WriteTimeout     time.Duration

	// ConnectionsPerSecond and ConnectionBurst bound the rate of newly
	// accepted connections. A ConnectionsPerSecond of zero disables the
	// limiter.
	ConnectionsPerSecond float64
	ConnectionBurst      int
}

// DefaultConfig uses a 10-second per-chunk read timeout.
func DefaultConfig() Config {
	return Config{
		ChunkReadTimeout:     10 * time.Second,
		WriteTimeout:         10 * time.Second,
		ConnectionsPerSecond: 1000,
		ConnectionBurst:      100,
	}
}

// Server accepts connections and dispatches framed requests to
// registered handlers.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	limiter  *rate.Limiter
	handlers map[string]Handler
	wg       sync.WaitGroup
}

// New constructs a Server. Handlers must be registered with Register
// before Serve is called.
func New(cfg Config, logger *slog.Logger) *Server {
	logger = logging.Default(logger)
	var limiter *rate.Limiter
	if cfg.ConnectionsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.ConnectionsPerSecond), cfg.ConnectionBurst)
	}
	return &Server{
		cfg:      cfg,
		logger:   logger.With("component", "server"),
		limiter:  limiter,
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for the given message class. Must be called
// before Serve.
func (s *Server) Register(class string, h Handler) {
	s.handlers[class] = h
}

// Serve accepts connections on listener until ctx is canceled, handling
// each one in its own goroutine. It returns after every in-flight
// connection has finished.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	reader := protocol.NewReader(s.cfg.ChunkReadTimeout)

	s.logger.Info("listening", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.wg.Wait()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				conn.Close()
				continue
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn, reader)
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn, reader *protocol.Reader) {
	defer conn.Close()

	connID := uuid.NewString()
	logger := s.logger.With("conn_id", connID, "remote", conn.RemoteAddr().String())

	raw, err := reader.ReadFrame(conn)
	if err != nil {
		switch {
		case errors.Is(err, protocol.ErrReadTimeout):
			logger.Warn("read timeout, closing connection")
		case errors.Is(err, io.EOF):
			// peer closed before sending anything; nothing to log.
		default:
			logger.Warn("malformed frame, closing connection", "error", err)
		}
		return
	}

	frame, err := protocol.ParseFrame(raw)
	if err != nil {
		logger.Warn("failed to parse frame, closing connection", "error", err)
		return
	}

	handler, ok := s.handlers[frame.Class]
	if !ok {
		logger.Warn("unknown message class, closing connection", "class", frame.Class)
		return
	}

	result, err := handler(ctx, frame)
	if err != nil {
		logger.Error("handler exception, closing connection", "class", frame.Class, "error", err)
		return
	}

	replyJSON, err := wrapJSONOutput(result)
	if err != nil {
		logger.Error("failed to encode reply", "class", frame.Class, "error", err)
		return
	}

	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		logger.Warn("failed to set write deadline", "error", err)
		return
	}
	if _, err := conn.Write(protocol.EncodeReply(frame.Class, replyJSON)); err != nil {
		logger.Warn("failed to write reply", "error", err)
		return
	}

	logger.Info("request served", "class", frame.Class)
}

// wrapJSONOutput implements the JSON-output contract: a bare string
// result is wrapped as {"response": result}; anything else (a map, a
// slice) is marshaled as-is.
func wrapJSONOutput(result any) ([]byte, error) {
	if s, ok := result.(string); ok {
		return json.Marshal(map[string]any{"response": s})
	}
	return json.Marshal(result)
}
