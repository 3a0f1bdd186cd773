package httpx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sagerenn/lexis/internal/config"
	"github.com/sagerenn/lexis/internal/observability"
)

// Server is the bridge bound to a loopback address.
type Server struct {
	srv *http.Server
	ln  net.Listener
	log *observability.Logger
}

// Listen binds addr, which must be a loopback host:port. Port 0 picks a free
// port; Addr reports the one chosen.
func Listen(addr string, h http.Handler, readTimeout, writeTimeout time.Duration, log *observability.Logger) (*Server, error) {
	if !config.IsLoopbackAddr(addr) {
		return nil, fmt.Errorf("listen %s: bridge only binds loopback addresses", addr)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	if log == nil {
		log = observability.Nop()
	}
	return &Server{
		srv: &http.Server{
			Handler:      h,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
		ln:  ln,
		log: log,
	}, nil
}

func (s *Server) Addr() string { return s.ln.Addr().String() }

// URL is the base URL of the bridge.
func (s *Server) URL() string { return "http://" + s.Addr() }

// Serve blocks until Shutdown. A clean shutdown returns nil.
func (s *Server) Serve() error {
	s.log.Info("server listening", "addr", s.Addr())
	if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	s.log.Info("server stopped")
	return err
}
