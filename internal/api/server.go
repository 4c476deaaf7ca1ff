package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/facility-core/internal/auth"
	"github.com/nerrad567/facility-core/internal/hierarchy"
	"github.com/nerrad567/facility-core/internal/infrastructure/config"
	"github.com/nerrad567/facility-core/internal/infrastructure/logging"
	"github.com/nerrad567/facility-core/internal/ingest"
	"github.com/nerrad567/facility-core/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by every infrastructure component.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Webhook   config.WebhookConfig
	Logger    *logging.Logger
	Hierarchy *hierarchy.Service
	Events    *telemetry.Events
	Ingester  ingest.Ingester
	Auth      *auth.Service
	// Checks are reported by GET /health, keyed by component name.
	Checks  map[string]HealthChecker
	Version string
}

// Server is the HTTP API server.
//
// The hub is created with the server so it can be registered as an
// ingestion sink before Start.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	webhook   config.WebhookConfig
	logger    *logging.Logger
	hierarchy *hierarchy.Service
	events    *telemetry.Events
	ingester  ingest.Ingester
	auth      *auth.Service
	checks    map[string]HealthChecker
	version   string
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Hierarchy == nil {
		return nil, fmt.Errorf("hierarchy service is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	if deps.Events == nil || deps.Ingester == nil {
		return nil, fmt.Errorf("telemetry events and ingester are required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		webhook:   deps.Webhook,
		logger:    deps.Logger,
		hierarchy: deps.Hierarchy,
		events:    deps.Events,
		ingester:  deps.Ingester,
		auth:      deps.Auth,
		checks:    deps.Checks,
		version:   deps.Version,
		hub:       NewHub(deps.Logger),
	}, nil
}

// Hub returns the live event hub. It implements telemetry.Sink.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the router without starting a listener.
func (s *Server) Handler() http.Handler { return s.buildRouter() }

// Start begins listening for HTTP connections in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", s.server.Addr, "cert", s.cfg.TLS.CertFile)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
