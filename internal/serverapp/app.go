// Package serverapp wires configuration, observability, the data refresh
// manager and the HTTP server into one application lifecycle.
package serverapp

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/eurisko-info-lab/json-graphql-server/internal/config"
	"github.com/eurisko-info-lab/json-graphql-server/internal/logging"
	"github.com/eurisko-info-lab/json-graphql-server/internal/observability"
	"github.com/eurisko-info-lab/json-graphql-server/internal/schemarefresh"
)

// App owns runtime resources for the json-graphql-server lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider

	// storeLock serializes mutations against every other GraphQL request.
	storeLock sync.RWMutex

	manager *schemarefresh.Manager
	handler http.Handler

	serverAddr string
	srv        *http.Server

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &App{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Handler returns the fully wrapped HTTP handler. It is nil before Init.
func (a *App) Handler() http.Handler {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handler
}
