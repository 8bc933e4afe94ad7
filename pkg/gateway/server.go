package gateway

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/a2fsdk/inference-gateway/pkg/wsproto"
)

// Server owns the listen socket, the session pool, and every in-flight
// connection goroutine (§4.6).
type Server struct {
	cfg     Config
	pool    *Pool
	schemas *messageSchemas
	logger  Logger

	ln net.Listener
	wg sync.WaitGroup
}

// NewServer constructs a Pool of cfg.MaxSessions slots via factory and
// resolves the control-message JSON Schemas once, failing startup on either
// error (§4.4 Init, §DOMAIN STACK jsonschema-go).
func NewServer(cfg Config, factory ExecutorFactory, logger Logger) (*Server, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	opts := ExecutorOptions{
		CUDADevice:             cfg.CUDADevice,
		Diffusion:              cfg.Diffusion,
		DiffusionIdentity:      cfg.DiffusionIdentity,
		DiffusionConstantNoise: cfg.DiffusionConstantNoise,
		ExecutionOption:        cfg.ExecutionOption,
		UseGPUSolver:           cfg.UseGPUSolver,
		FrameRate:              cfg.FrameRate(),
	}
	pool, err := NewPool(cfg.MaxSessions, factory, opts, logger)
	if err != nil {
		return nil, err
	}
	schemas, err := newMessageSchemas()
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &Server{cfg: cfg, pool: pool, schemas: schemas, logger: logger}, nil
}

// Listen binds the server's configured host:port. It must be called before
// Serve.
func (s *Server) Listen() error {
	ln, err := wsproto.Listen(s.cfg.Host, s.cfg.Port)
	if err != nil {
		return err
	}
	s.ln = ln
	return nil
}

// Addr returns the bound listener's address; valid after a successful
// Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve runs the accept loop until ctx is cancelled or the listener is
// closed, spawning one goroutine per accepted connection. A single accept
// error never stops the loop (§4.6); only a closed listener or cancelled
// context does. Serve blocks until every in-flight connection goroutine
// has returned.
func (s *Server) Serve(ctx context.Context) error {
	defer s.wg.Wait()

	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.WarnPrintf("accept: %v", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			c := NewConnection(conn, s.pool, s.cfg, s.schemas, s.logger)
			c.Serve()
		}()
	}
}

// Close closes the listener, interrupting Accept. Used by callers that
// manage their own shutdown sequencing instead of a context passed to
// Serve.
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}
