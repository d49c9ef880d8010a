package serverapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/eurisko-info-lab/json-graphql-server/internal/observability"
	"github.com/eurisko-info-lab/json-graphql-server/internal/schemarefresh"
)

// Reasons WaitForStop returns.
const (
	stopSignal      = "signal"
	stopServerError = "server_error"
)

// assembly collects what Init acquires. It is published on the App only
// when every step succeeded.
type assembly struct {
	cleanup cleanupStack

	meterProvider   *observability.MeterProvider
	graphqlMetrics  *observability.GraphQLMetrics
	dataMetrics     *observability.DataMetrics
	securityMetrics *observability.SecurityMetrics
	tracerProvider  *observability.TracerProvider

	manager *schemarefresh.Manager

	handler    http.Handler
	serverAddr string
	srv        *http.Server
}

// initStep acquires one group of resources and pushes their release onto
// the assembly's cleanup stack.
type initStep struct {
	name string
	run  func(ctx context.Context, as *assembly) error
}

// initSteps are run in order. Telemetry comes first so the data load is
// traced and measured.
func (a *App) initSteps() []initStep {
	return []initStep{
		{name: "metrics", run: a.initMetricsStep},
		{name: "tracing", run: a.initTracingStep},
		{name: "data", run: a.initDataStep},
		{name: "http", run: a.initHTTPStep},
	}
}

// Init loads the data, builds the schema and assembles the HTTP stack. It
// is idempotent. On failure everything acquired so far is released.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	done := a.initialized
	loggerProvider := a.loggerProvider
	a.stateMu.Unlock()
	if done {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	as := &assembly{}
	if loggerProvider != nil {
		as.cleanup.push("logger provider", func(shutdownCtx context.Context) error {
			return loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	for _, step := range a.initSteps() {
		start := time.Now()
		if err := step.run(ctx, as); err != nil {
			_ = as.cleanup.run(context.Background(), a.logger)
			return err
		}
		a.logger.Debug("init step done", slog.String("step", step.name), slog.Duration("duration", time.Since(start)))
	}

	a.stateMu.Lock()
	a.manager = as.manager
	a.handler = as.handler
	a.serverAddr = as.serverAddr
	a.srv = as.srv
	a.cleanup = as.cleanup
	a.initialized = true
	a.stateMu.Unlock()
	return nil
}

func (a *App) initMetricsStep(_ context.Context, as *assembly) error {
	meterProvider, graphqlMetrics, dataMetrics, securityMetrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		as.cleanup.push("meter provider", func(shutdownCtx context.Context) error {
			return meterProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}
	as.meterProvider = meterProvider
	as.graphqlMetrics = graphqlMetrics
	as.dataMetrics = dataMetrics
	as.securityMetrics = securityMetrics
	return nil
}

func (a *App) initTracingStep(_ context.Context, as *assembly) error {
	tracerProvider, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		as.cleanup.push("tracer provider", func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}
	as.tracerProvider = tracerProvider
	return nil
}

// initDataStep loads the data document and starts the reload loops. The
// collection gauge reads the live store from then on.
func (a *App) initDataStep(ctx context.Context, as *assembly) error {
	manager, dataCancel, err := startDataManager(ctx, a.cfg, a.logger, as.dataMetrics)
	if err != nil {
		return fmt.Errorf("failed to load data: %w", err)
	}
	as.cleanup.push("data manager", func(shutdownCtx context.Context) error {
		dataCancel()
		return manager.Wait(shutdownCtx)
	})
	as.dataMetrics.ObserveCollections(collectionCounter(manager, &a.storeLock))
	as.manager = manager

	if snapshot := manager.CurrentSnapshot(); snapshot != nil {
		a.logger.Info("data loaded",
			slog.String("data_fingerprint", snapshot.Fingerprint),
			slog.Any("collections", snapshot.Store.Keys()),
			slog.Bool("reloadable", manager.Reloadable()),
		)
	}
	return nil
}

// initHTTPStep builds the GraphQL, admin and health routes, the outer
// middleware and the server that serves them.
func (a *App) initHTTPStep(_ context.Context, as *assembly) error {
	graphqlHandler := buildGraphQLHandler(a.cfg, a.logger, as.manager, &a.storeLock, as.graphqlMetrics)

	adminHandler, err := buildAdminHandler(a.cfg, a.logger, as.manager, as.securityMetrics)
	if err != nil {
		return fmt.Errorf("failed to initialize admin handler: %w", err)
	}

	mux := buildRouter(a.cfg, a.logger, newHealthHandler(as.manager, &a.storeLock), graphqlHandler, adminHandler, as.meterProvider)
	as.handler = wrapHTTPHandler(a.cfg, a.logger, as.securityMetrics, mux)

	as.serverAddr = fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv := buildServer(a.cfg, as.handler, as.serverAddr)
	as.cleanup.push("HTTP server", func(shutdownCtx context.Context) error {
		return srv.Shutdown(shutdownCtx)
	})
	as.srv = srv
	return nil
}

// Start launches the HTTP server goroutine. It requires Init to have completed.
func (a *App) Start() (<-chan error, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	if !a.initialized {
		return nil, fmt.Errorf("app is not initialized")
	}
	if !a.started {
		a.serverErrors = startServer(a.cfg, a.logger, a.srv, a.serverAddr)
		a.started = true
	}
	return a.serverErrors, nil
}

// WaitForStop blocks until stop delivers a signal or the server fails, and
// reports which. A nil serverErrors falls back to the channel from Start.
func (a *App) WaitForStop(stop <-chan os.Signal, serverErrors <-chan error) (reason string, err error) {
	if serverErrors == nil {
		a.stateMu.Lock()
		if a.serverErrors != nil {
			serverErrors = a.serverErrors
		}
		a.stateMu.Unlock()
	}
	if stop == nil && serverErrors == nil {
		return "", errors.New("both stop and serverErrors channels are nil")
	}

	// A nil channel never delivers, so only the configured sources compete.
	select {
	case err := <-serverErrors:
		if err == nil {
			err = errors.New("server stopped unexpectedly")
		} else {
			err = fmt.Errorf("server failed: %w", err)
		}
		return stopServerError, err
	case sig := <-stop:
		if a.logger != nil {
			attrs := []any{slog.String("signal", sig.String())}
			if a.manager != nil {
				attrs = append(attrs, slog.String("data_fingerprint", a.manager.CurrentFingerprint()))
			}
			a.logger.Info("received shutdown signal", attrs...)
		}
		return stopSignal, nil
	}
}
