// Package api provides the HTTP REST API for Fleet Core.
//
// It exposes device registry operations, reconciliation, webhook management
// and template application to the surrounding business product, plus the
// unauthenticated ingestion endpoint devices deliver events to.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/accessgrid/fleet-core/internal/adapter"
	"github.com/accessgrid/fleet-core/internal/device"
	"github.com/accessgrid/fleet-core/internal/infrastructure/config"
	"github.com/accessgrid/fleet-core/internal/infrastructure/logging"
	"github.com/accessgrid/fleet-core/internal/infrastructure/mqtt"
	"github.com/accessgrid/fleet-core/internal/reconcile"
	"github.com/accessgrid/fleet-core/internal/secrets"
	"github.com/accessgrid/fleet-core/internal/webhook"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	Security     config.SecurityConfig
	Logger       *logging.Logger
	Registry     *device.Registry
	Executor     *adapter.Executor
	Engine       *reconcile.Engine
	Webhooks     *webhook.Manager
	Processor    *webhook.Processor
	Templates    *device.Templates
	TemplateRepo device.TemplateRepository
	Events       webhook.EventRepository
	Box          *secrets.Box
	Keys         KeyStore // if nil, built from Security.APIKeys
	MQTT         *mqtt.Client
	DB           *sql.DB

	// OrganizationID is the installation's default organization, used when
	// requests do not name one.
	OrganizationID string
	Version        string
}

// Server is the HTTP API server for Fleet Core.
//
// It manages the HTTP listener, routes and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	secCfg       config.SecurityConfig
	logger       *logging.Logger
	registry     *device.Registry
	executor     *adapter.Executor
	engine       *reconcile.Engine
	webhooks     *webhook.Manager
	processor    *webhook.Processor
	templates    *device.Templates
	templateRepo device.TemplateRepository
	events       webhook.EventRepository
	box          *secrets.Box
	keys         KeyStore
	mqtt         *mqtt.Client
	db           *sql.DB
	orgID        string
	version      string
	startTime    time.Time
	server       *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Executor == nil {
		return nil, fmt.Errorf("command executor is required")
	}
	if deps.Processor == nil {
		return nil, fmt.Errorf("webhook processor is required")
	}

	keys := deps.Keys
	if keys == nil {
		keys = NewStaticKeyStore(deps.Security.APIKeys.Keys, deps.Security.APIKeys.Enabled)
	}

	return &Server{
		cfg:          deps.Config,
		secCfg:       deps.Security,
		logger:       deps.Logger,
		registry:     deps.Registry,
		executor:     deps.Executor,
		engine:       deps.Engine,
		webhooks:     deps.Webhooks,
		processor:    deps.Processor,
		templates:    deps.Templates,
		templateRepo: deps.TemplateRepo,
		events:       deps.Events,
		box:          deps.Box,
		keys:         keys,
		mqtt:         deps.MQTT,
		db:           deps.DB,
		orgID:        deps.OrganizationID,
		version:      deps.Version,
		startTime:    time.Now(),
	}, nil
}

// Start begins listening for HTTP connections.
//
// The listener runs in a background goroutine; the server is stopped with
// Close().
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
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

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, then
// forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
