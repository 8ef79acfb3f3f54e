package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	wire "github.com/jeroenrinzema/psql-wire"

	"github.com/sentimetry/pipeline/internal/store"
)

type Server struct {
	log      *slog.Logger
	cfg      Config
	store    *store.Store
	wireSrv  *wire.Server
	listener net.Listener
}

func New(cfg Config) (*Server, error) {
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	s := &Server{
		log:      cfg.Logger,
		cfg:      cfg,
		store:    cfg.Store,
		listener: cfg.Listener,
	}

	if len(cfg.Accounts) > 0 {
		s.log.Info("gateway: postgres authentication enabled", "account_count", len(cfg.Accounts))
	} else {
		s.log.Info("gateway: postgres authentication disabled (no accounts configured)")
	}

	wireSrv, err := wire.NewServer(
		s.queryHandler,
		wire.Logger(s.log),
		wire.SessionAuthStrategy(createAuthStrategy(s.log, cfg.Accounts)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create wire server: %w", err)
	}
	s.wireSrv = wireSrv

	return s, nil
}

// Run serves the wire protocol until ctx is cancelled, then shuts down
// gracefully within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	serveErrCh := make(chan error, 1)
	go func() {
		if err := s.wireSrv.Serve(s.listener); err != nil {
			serveErrCh <- fmt.Errorf("failed to serve postgres wire protocol: %w", err)
		}
	}()
	s.log.Info("gateway: postgres wire protocol listening", "address", s.listener.Addr())

	select {
	case <-ctx.Done():
		s.log.Info("gateway: stopping", "reason", ctx.Err())
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := s.wireSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown wire server: %w", err)
		}
		s.log.Info("gateway: shutdown complete")
		return nil
	case err := <-serveErrCh:
		s.log.Error("gateway: server error causing shutdown", "error", err)
		return err
	}
}
