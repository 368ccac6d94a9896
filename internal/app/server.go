package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/samvad-hq/samvad-relay/internal/api"
	"github.com/samvad-hq/samvad-relay/internal/config"
	"github.com/samvad-hq/samvad-relay/internal/logger"
	"github.com/samvad-hq/samvad-relay/internal/relay"
	"github.com/samvad-hq/samvad-relay/pkg/httpclient"
	"github.com/samvad-hq/samvad-relay/pkg/publishers"
	"github.com/samvad-hq/samvad-relay/pkg/upstreams"
)

// Server represents the relay runtime. It owns the HTTP server and the
// publisher fan-out, and releases both on shutdown.
type Server struct {
	cfg     *config.Config
	http    *http.Server
	handler *api.Handler
	fanout  *publishers.Fanout
	log     logger.Logger
}

// NewServer builds the relay runtime from config.
func NewServer(ctx context.Context, cfg *config.Config, log logger.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)
	if ctx == nil {
		ctx = context.Background()
	}

	upstreamReg, err := upstreams.LoadRegistry(cfg.UpstreamsFile)
	if err != nil {
		return nil, fmt.Errorf("load upstreams registry: %w", err)
	}
	upstreamList := upstreamReg.All()
	routes := make([]string, 0, len(upstreamList))
	for _, u := range upstreamList {
		routes = append(routes, u.Path)
	}
	log.InfoObj("upstreams registry loaded", "upstreams_meta", map[string]any{
		"count":  len(routes),
		"routes": routes,
	})

	fanout, err := buildFanout(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	if cfg.UpstreamInsecureSkipVerify {
		log.WarnObj("TLS certificate verification is disabled for relay calls", "upstream_insecure_skip_verify", true)
	}
	client := httpclient.NewRestyClient(httpclient.Options{
		Timeout:            cfg.UpstreamTimeout,
		InsecureSkipVerify: cfg.UpstreamInsecureSkipVerify,
	})
	relaySvc := relay.NewService(client, log.Named("relay"))

	// a nil *Fanout must not reach the handler as a non-nil interface
	var events api.EventPublisher
	if fanout != nil {
		events = fanout
	}
	handler := api.NewHandler(relaySvc, upstreamList, events, log.Named("api"))
	handler.SetPublishTimeout(cfg.PublishTimeout)
	router := api.NewRouter(handler, log.Named("http"))

	return &Server{
		cfg:     cfg,
		handler: handler,
		fanout:  fanout,
		log:     log,
		http: &http.Server{
			Addr:              cfg.ServerAddr,
			Handler:           router,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
	}, nil
}

// buildFanout returns nil when no publishers file is configured.
func buildFanout(ctx context.Context, cfg *config.Config, log logger.Logger) (*publishers.Fanout, error) {
	if cfg.PublishersFile == "" {
		log.DebugObj("no publishers file configured; relay events disabled", "", nil)
		return nil, nil
	}

	publisherReg, err := publishers.LoadRegistry(cfg.PublishersFile)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}

	enabledPublishers := publisherReg.Enabled()
	if len(enabledPublishers) == 0 {
		log.WarnObj("publishers file has no enabled publishers", "publishers_file", cfg.PublishersFile)
		return nil, nil
	}

	fanout, err := publishers.DefaultBuilders().BuildFanout(ctx, enabledPublishers, log.Named("publishers"))
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}

	publisherSummaries := make([]map[string]string, 0, len(enabledPublishers))
	for _, pubCfg := range enabledPublishers {
		publisherSummaries = append(publisherSummaries, map[string]string{
			"id":   pubCfg.ID,
			"type": pubCfg.Type,
		})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(publisherSummaries),
		"publishers": publisherSummaries,
	})
	return fanout, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln and shuts down gracefully once ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s == nil || s.http == nil {
		return fmt.Errorf("server is not initialized")
	}
	defer s.drainEvents()

	s.log.InfoObj("relay server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.log.InfoObj("relay server shutting down", "", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// drainEvents waits for background event deliveries, then closes the publishers.
func (s *Server) drainEvents() {
	s.handler.Wait()
	if err := s.fanout.Close(); err != nil {
		s.log.WarnObj("failed to close publishers", "error", err.Error())
	}
}
