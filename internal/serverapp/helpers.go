package serverapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/eurisko-info-lab/json-graphql-server/internal/config"
	"github.com/eurisko-info-lab/json-graphql-server/internal/datastore"
	"github.com/eurisko-info-lab/json-graphql-server/internal/logging"
	"github.com/eurisko-info-lab/json-graphql-server/internal/middleware"
	"github.com/eurisko-info-lab/json-graphql-server/internal/observability"
	"github.com/eurisko-info-lab/json-graphql-server/internal/requesthandler"
	"github.com/eurisko-info-lab/json-graphql-server/internal/schemarefresh"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	healthPath     = "/health"
	metricsPath    = "/metrics"
	reloadDataPath = "/admin/reload-data"

	reloadTimeout = 15 * time.Second
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// InitLogger builds the process logger and, when log export is enabled, the
// OTLP logger provider that the logger bridges records into.
func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.GetLogsConfig()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(observabilityConfig(cfg, logsConfig))
	if err != nil {
		return nil, nil, err
	}

	logger.Info("OpenTelemetry logging initialized successfully")

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	return logger, loggerProvider, nil
}

func observabilityConfig(cfg *config.Config, otlp config.OTLPConfig) observability.Config {
	return observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig: observability.OTLPExporterConfig{
			Endpoint:          otlp.Endpoint,
			Protocol:          otlp.Protocol,
			Insecure:          otlp.Insecure,
			TLSCertFile:       otlp.TLSCertFile,
			TLSClientCertFile: otlp.TLSClientCertFile,
			TLSClientKeyFile:  otlp.TLSClientKeyFile,
			Headers:           otlp.Headers,
			Timeout:           otlp.Timeout,
			Compression:       otlp.Compression,
			RetryEnabled:      otlp.RetryEnabled,
			RetryMaxAttempts:  otlp.RetryMaxAttempts,
		},
	}
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, *observability.GraphQLMetrics, *observability.DataMetrics, *observability.SecurityMetrics, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, nil, nil, nil, nil
	}

	logger.Info("initializing OpenTelemetry metrics",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
	)

	meterProvider, err := observability.InitMeterProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
	})
	if err != nil {
		return nil, nil, nil, nil, err
	}

	logger.Info("OpenTelemetry metrics initialized successfully")

	graphqlMetrics, err := observability.InitMetrics(logger.Logger)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	dataMetrics, err := observability.InitDataMetrics(logger.Logger)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	securityMetrics, err := observability.InitSecurityMetrics()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	logger.Info("security metrics initialized")

	return meterProvider, graphqlMetrics, dataMetrics, securityMetrics, nil
}

func initTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	tracesConfig := cfg.Observability.GetTracesConfig()
	logger.Info("initializing OpenTelemetry tracing",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
		slog.Bool("insecure", tracesConfig.Insecure),
	)

	tracerProvider, err := observability.InitTracerProvider(observabilityConfig(cfg, tracesConfig))
	if err != nil {
		return nil, err
	}

	logger.Info("OpenTelemetry tracing initialized successfully")

	return tracerProvider, nil
}

// startDataManager loads the data document, builds the first snapshot and
// starts the background reload loops. The loops outlive ctx's cancellation
// and stop through the returned cancel func.
func startDataManager(ctx context.Context, cfg *config.Config, logger *logging.Logger, metrics *observability.DataMetrics) (*schemarefresh.Manager, context.CancelFunc, error) {
	format, err := datastore.ParseFormat(cfg.Data.Format)
	if err != nil {
		return nil, nil, err
	}

	manager, err := schemarefresh.NewManager(schemarefresh.Config{
		Source:      cfg.Data.File,
		Format:      format,
		Naming:      cfg.Naming,
		HTTP:        httpConfig(cfg),
		Logger:      logger,
		Metrics:     metrics,
		MinInterval: cfg.Data.ReloadMinInterval,
		MaxInterval: cfg.Data.ReloadMaxInterval,
		Watch:       cfg.Data.Watch,
	})
	if err != nil {
		return nil, nil, err
	}

	dataCtx, dataCancel := context.WithCancel(context.WithoutCancel(ctx))
	manager.Start(dataCtx)

	return manager, dataCancel, nil
}

func httpConfig(cfg *config.Config) requesthandler.HTTPConfig {
	return requesthandler.HTTPConfig{
		GraphiQL:     cfg.Server.GraphiQLEnabled,
		Playground:   cfg.Server.PlaygroundEnabled,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}
}

// collectionCounter reports record counts of the live store for the
// collection gauge. The store is read under the request lock.
func collectionCounter(manager *schemarefresh.Manager, lock *sync.RWMutex) func() map[string]int {
	return func() map[string]int {
		snapshot := manager.CurrentSnapshot()
		if snapshot == nil || snapshot.Store == nil {
			return nil
		}
		lock.RLock()
		defer lock.RUnlock()
		return snapshot.Store.Counts()
	}
}

// buildGraphQLHandler wraps the snapshot handler in the GraphQL middleware.
// The chain is:
//
//	request analysis -> tracing -> metrics -> write lock -> snapshot handler
func buildGraphQLHandler(cfg *config.Config, logger *logging.Logger, manager *schemarefresh.Manager, lock *sync.RWMutex, graphqlMetrics *observability.GraphQLMetrics) http.Handler {
	handler := middleware.GraphQLWriteLockMiddleware(lock)(manager.Handler())

	if cfg.Observability.MetricsEnabled && graphqlMetrics != nil {
		handler = middleware.GraphQLMetricsMiddleware(graphqlMetrics)(handler)
		logger.Info("GraphQL metrics middleware enabled")
	}

	handler = middleware.GraphQLTracingMiddleware()(handler)
	return middleware.GraphQLRequestAnalysisMiddleware(manager)(handler)
}

// dataReloader is the part of the refresh manager the admin endpoint uses.
type dataReloader interface {
	RefreshNowContext(ctx context.Context) error
}

func buildAdminHandler(cfg *config.Config, logger *logging.Logger, reloader dataReloader, securityMetrics *observability.SecurityMetrics) (http.Handler, error) {
	if !cfg.Server.Admin.ReloadEnabled {
		return nil, nil
	}

	authMiddleware, err := middleware.AdminTokenAuthMiddleware(middleware.AdminTokenAuthConfig{
		Token:   cfg.Server.Admin.AuthToken,
		Metrics: securityMetrics,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("admin endpoints require X-Admin-Token authentication")

	return authMiddleware(dataReloadHandler(reloader, securityMetrics)), nil
}

func buildRouter(cfg *config.Config, logger *logging.Logger, health http.Handler, graphqlHandler http.Handler, adminHandler http.Handler, meterProvider *observability.MeterProvider) *http.ServeMux {
	mux := http.NewServeMux()

	graphqlPath := cfg.Server.GraphQLPath
	if graphqlPath == "" {
		graphqlPath = "/"
	}
	mux.Handle(graphqlPath, graphqlHandler)
	if graphqlPath != "/" {
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/" {
				http.Redirect(w, r, graphqlPath, http.StatusFound)
				return
			}
			http.NotFound(w, r)
		})
	}

	mux.Handle(healthPath, health)

	if adminHandler != nil {
		mux.Handle(reloadDataPath, adminHandler)
		logger.Info("admin endpoint enabled", slog.String("path", reloadDataPath))
	}

	if cfg.Observability.MetricsEnabled && meterProvider != nil {
		mux.Handle(metricsPath, promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", metricsPath))
	}

	return mux
}

// wrapHTTPHandler applies the outer middleware. Requests pass through
// otelhttp, logging, CORS and the rate limiter, in that order.
func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, securityMetrics *observability.SecurityMetrics, handler http.Handler) http.Handler {
	if cfg.Server.RateLimitEnabled {
		handler = middleware.RateLimitMiddleware(middleware.RateLimitConfig{
			Enabled: cfg.Server.RateLimitEnabled,
			RPS:     cfg.Server.RateLimitRPS,
			Burst:   cfg.Server.RateLimitBurst,
			Metrics: securityMetrics,
			Route: func(r *http.Request) string {
				return normalizeHTTPSpanRoute(r.URL.Path, cfg.Server.GraphQLPath)
			},
		})(handler)
	}

	if cfg.Server.CORSEnabled {
		handler = middleware.CORSMiddleware(middleware.CORSConfig{
			Enabled:          cfg.Server.CORSEnabled,
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   cfg.Server.CORSAllowedMethods,
			AllowedHeaders:   cfg.Server.CORSAllowedHeaders,
			ExposeHeaders:    cfg.Server.CORSExposeHeaders,
			AllowCredentials: cfg.Server.CORSAllowCredentials,
			MaxAge:           cfg.Server.CORSMaxAge,
		})(handler)
	}

	handler = middleware.LoggingMiddleware(logger)(handler)

	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		graphqlPath := cfg.Server.GraphQLPath
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r, graphqlPath)
			}),
			otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
		)
		logger.Info("HTTP instrumentation enabled")
	}

	return handler
}

func httpRootSpanName(r *http.Request, graphqlPath string) string {
	if r == nil {
		return "HTTP /*"
	}

	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}

	return method + " " + normalizeHTTPSpanRoute(r.URL.Path, graphqlPath)
}

// normalizeHTTPSpanRoute maps a path to a low-cardinality route for span
// names and rate limit labels.
func normalizeHTTPSpanRoute(rawPath string, graphqlPath string) string {
	switch rawPath {
	case "/", healthPath, metricsPath, reloadDataPath:
		return rawPath
	}
	if graphqlPath != "" && rawPath == graphqlPath {
		return rawPath
	}
	return "/*"
}

func buildServer(cfg *config.Config, handler http.Handler, serverAddr string) *http.Server {
	return &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server, serverAddr string) chan error {
	serverErrors := make(chan error, 1)
	go func() {
		logAttrs := []any{
			slog.String("address", serverAddr),
			slog.String("data_file", cfg.Data.File),
			slog.String("graphql_endpoint", cfg.Server.GraphQLPath),
			slog.String("health_endpoint", healthPath),
			slog.Bool("graphiql_enabled", cfg.Server.GraphiQLEnabled),
			slog.Bool("playground_enabled", cfg.Server.PlaygroundEnabled),
			slog.String("log_level", cfg.Observability.Logging.Level),
			slog.String("log_format", cfg.Observability.Logging.Format),
		}

		if cfg.Observability.MetricsEnabled {
			logAttrs = append(logAttrs, slog.String("metrics_endpoint", metricsPath))
		}

		if cfg.Server.RateLimitEnabled {
			logAttrs = append(logAttrs,
				slog.Float64("rate_limit_rps", cfg.Server.RateLimitRPS),
				slog.Int("rate_limit_burst", cfg.Server.RateLimitBurst),
			)
		}

		logger.Info("server starting", logAttrs...)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()
	return serverErrors
}

type healthStatus struct {
	Status      string         `json:"status"`
	Fingerprint string         `json:"fingerprint,omitempty"`
	BuiltAt     *time.Time     `json:"built_at,omitempty"`
	Collections map[string]int `json:"collections,omitempty"`
}

// snapshotSource is the part of the refresh manager the health check reads.
type snapshotSource interface {
	CurrentSnapshot() *schemarefresh.Snapshot
}

// newHealthHandler reports whether a data snapshot is being served, with
// its fingerprint and per-collection record counts.
func newHealthHandler(source snapshotSource, lock *sync.RWMutex) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")

		snapshot := source.CurrentSnapshot()
		if snapshot == nil || snapshot.Store == nil {
			reqLogger.Error("health check failed", slog.String("check", "data"))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprint(w, `{"status":"unhealthy","data":"not loaded"}`)
			return
		}

		lock.RLock()
		counts := snapshot.Store.Counts()
		lock.RUnlock()

		builtAt := snapshot.BuiltAt.UTC()
		body, err := json.Marshal(healthStatus{
			Status:      "healthy",
			Fingerprint: snapshot.Fingerprint,
			BuiltAt:     &builtAt,
			Collections: counts,
		})
		if err != nil {
			reqLogger.Error("failed to encode health status", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		reqLogger.Debug("health check passed")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

func dataReloadHandler(reloader dataReloader, securityMetrics *observability.SecurityMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")

		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			_, _ = fmt.Fprint(w, `{"error":"method not allowed"}`)
			return
		}

		authCtx, authenticated := middleware.AuthFromContext(r.Context())

		logAttrs := []any{
			slog.String("operation", "data_reload"),
			slog.String("remote_addr", r.RemoteAddr),
			slog.Bool("authenticated", authenticated),
		}
		if authenticated {
			logAttrs = append(logAttrs,
				slog.String("subject", authCtx.Subject),
				slog.String("auth_method", authCtx.Method),
			)
		}
		reqLogger.Info("admin endpoint accessed", logAttrs...)

		refreshCtx, refreshCancel := context.WithTimeout(r.Context(), reloadTimeout)
		defer refreshCancel()

		if err := reloader.RefreshNowContext(refreshCtx); err != nil {
			securityMetrics.RecordAdminEndpointAccess(r.Context(), "data_reload", authenticated, false)
			if errors.Is(err, schemarefresh.ErrReloadUnsupported) {
				reqLogger.Warn("data reload rejected", slog.String("error", err.Error()))
				w.WriteHeader(http.StatusConflict)
				_, _ = fmt.Fprint(w, `{"status":"error","message":"data source does not support reload"}`)
				return
			}
			reqLogger.Error("data reload failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
			// Return generic error message to avoid leaking internal details
			_, _ = fmt.Fprint(w, `{"status":"error","message":"data reload failed"}`)
			return
		}

		securityMetrics.RecordAdminEndpointAccess(r.Context(), "data_reload", authenticated, true)

		reqLogger.Info("data reloaded successfully", logAttrs...)
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, `{"status":"ok"}`)
	}
}
