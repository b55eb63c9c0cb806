package webserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stellaria-pact/governance/src/actions/core"
)

var _ core.Module = (*Server)(nil)

// Server runs the router as a lifecycle module.
type Server struct {
	addr string
	srv  *http.Server
}

func NewServer(addr string, cfg Config, d Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           New(cfg, d),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       timeout,
			WriteTimeout:      timeout,
		},
	}
}

func (s *Server) Name() string { return "webserver" }

// Start binds the listener synchronously so address errors fail startup.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("webserver: listen %s: %w", s.addr, err)
	}
	go func() {
		log.Printf("webserver: listening on %s", ln.Addr())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("webserver: serve: %v", err)
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("webserver: shutdown: %v", err)
	}
}
