package serverapp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/eurisko-info-lab/json-graphql-server/internal/config"
	"github.com/eurisko-info-lab/json-graphql-server/internal/datastore"
	"github.com/eurisko-info-lab/json-graphql-server/internal/observability"
	"github.com/eurisko-info-lab/json-graphql-server/internal/schemarefresh"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type fakeReloader struct {
	err   error
	calls int
}

func (f *fakeReloader) RefreshNowContext(context.Context) error {
	f.calls++
	return f.err
}

type fakeSnapshots struct {
	snapshot *schemarefresh.Snapshot
}

func (f fakeSnapshots) CurrentSnapshot() *schemarefresh.Snapshot {
	return f.snapshot
}

func statusHandler(code int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	})
}

func serve(handler http.Handler, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestBuildRouter(t *testing.T) {
	tests := []struct {
		name        string
		graphqlPath string
		admin       http.Handler
		meter       *observability.MeterProvider
		metrics     bool
		method      string
		target      string
		wantStatus  int
	}{
		{name: "graphql path", graphqlPath: "/graphql", method: http.MethodPost, target: "/graphql", wantStatus: http.StatusTeapot},
		{name: "root graphql path", graphqlPath: "/", method: http.MethodPost, target: "/", wantStatus: http.StatusTeapot},
		{name: "root redirects", graphqlPath: "/graphql", method: http.MethodGet, target: "/", wantStatus: http.StatusFound},
		{name: "unknown path", graphqlPath: "/graphql", method: http.MethodGet, target: "/nope", wantStatus: http.StatusNotFound},
		{name: "health", graphqlPath: "/graphql", method: http.MethodGet, target: "/health", wantStatus: http.StatusNoContent},
		{name: "admin disabled", graphqlPath: "/graphql", method: http.MethodPost, target: "/admin/reload-data", wantStatus: http.StatusNotFound},
		{name: "admin enabled", graphqlPath: "/graphql", admin: statusHandler(http.StatusAccepted), method: http.MethodPost, target: "/admin/reload-data", wantStatus: http.StatusAccepted},
		{name: "metrics disabled", graphqlPath: "/graphql", metrics: false, meter: &observability.MeterProvider{}, method: http.MethodGet, target: "/metrics", wantStatus: http.StatusNotFound},
		{name: "metrics enabled", graphqlPath: "/graphql", metrics: true, meter: &observability.MeterProvider{}, method: http.MethodGet, target: "/metrics", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				Server:        config.ServerConfig{GraphQLPath: tt.graphqlPath},
				Observability: config.ObservabilityConfig{MetricsEnabled: tt.metrics},
			}
			mux := buildRouter(cfg, testLogger(), statusHandler(http.StatusNoContent), statusHandler(http.StatusTeapot), tt.admin, tt.meter)
			rec := serve(mux, tt.method, tt.target, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestBuildAdminHandler(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		handler, err := buildAdminHandler(&config.Config{}, testLogger(), &fakeReloader{}, nil)
		require.NoError(t, err)
		assert.Nil(t, handler)
	})

	t.Run("enabled without token", func(t *testing.T) {
		cfg := &config.Config{Server: config.ServerConfig{Admin: config.AdminConfig{ReloadEnabled: true}}}
		_, err := buildAdminHandler(cfg, testLogger(), &fakeReloader{}, nil)
		assert.Error(t, err)
	})

	cfg := &config.Config{Server: config.ServerConfig{Admin: config.AdminConfig{ReloadEnabled: true, AuthToken: "secret-token"}}}

	t.Run("missing header", func(t *testing.T) {
		reloader := &fakeReloader{}
		handler, err := buildAdminHandler(cfg, testLogger(), reloader, nil)
		require.NoError(t, err)
		rec := serve(handler, http.MethodPost, reloadDataPath, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Zero(t, reloader.calls)
	})

	t.Run("valid header", func(t *testing.T) {
		reloader := &fakeReloader{}
		handler, err := buildAdminHandler(cfg, testLogger(), reloader, nil)
		require.NoError(t, err)
		rec := serve(handler, http.MethodPost, reloadDataPath, map[string]string{"X-Admin-Token": "secret-token"})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
		assert.Equal(t, 1, reloader.calls)
	})
}

func TestDataReloadHandler(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		err        error
		wantStatus int
		wantCalls  int
	}{
		{name: "get not allowed", method: http.MethodGet, wantStatus: http.StatusMethodNotAllowed},
		{name: "success", method: http.MethodPost, wantStatus: http.StatusOK, wantCalls: 1},
		{name: "stdin source", method: http.MethodPost, err: schemarefresh.ErrReloadUnsupported, wantStatus: http.StatusConflict, wantCalls: 1},
		{name: "failure", method: http.MethodPost, err: errors.New("failed to decode data: boom"), wantStatus: http.StatusInternalServerError, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reloader := &fakeReloader{err: tt.err}
			rec := serve(dataReloadHandler(reloader, nil), tt.method, reloadDataPath, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCalls, reloader.calls)
			assert.NotContains(t, rec.Body.String(), "boom")
		})
	}
}

func TestHealthHandler(t *testing.T) {
	var lock sync.RWMutex

	rec := serve(newHealthHandler(fakeSnapshots{}, &lock), http.MethodGet, healthPath, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unhealthy")

	snapshot := &schemarefresh.Snapshot{
		Store: datastore.New(map[string][]datastore.Record{
			"posts": {{"id": int64(1)}, {"id": int64(2)}},
			"tags":  {},
		}),
		BuiltAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Fingerprint: "abc123",
	}
	rec = serve(newHealthHandler(fakeSnapshots{snapshot: snapshot}, &lock), http.MethodGet, healthPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{
		"status": "healthy",
		"fingerprint": "abc123",
		"built_at": "2026-01-02T03:04:05Z",
		"collections": {"posts": 2, "tags": 0}
	}`, rec.Body.String())
}

func TestCollectionCounter(t *testing.T) {
	cfg := testConfig(t)
	manager, cancel, err := startDataManager(context.Background(), cfg, testLogger(), nil)
	require.NoError(t, err)
	t.Cleanup(cancel)

	var lock sync.RWMutex
	counts := collectionCounter(manager, &lock)()
	assert.Equal(t, map[string]int{"posts": 2, "users": 2}, counts)
}

func TestStartDataManagerRejectsUnknownFormat(t *testing.T) {
	cfg := testConfig(t)
	cfg.Data.Format = "xml"
	_, _, err := startDataManager(context.Background(), cfg, testLogger(), nil)
	assert.ErrorIs(t, err, datastore.ErrUnsupportedFormat)
}

func TestWrapHTTPHandler_UsesHTTPRootSpanName(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	tp.RegisterSpanProcessor(recorder)
	originalTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(originalTP)
	})

	cfg := &config.Config{
		Server: config.ServerConfig{GraphQLPath: "/graphql"},
		Observability: config.ObservabilityConfig{
			TracingEnabled: true,
		},
	}
	handler := wrapHTTPHandler(cfg, testLogger(), nil, statusHandler(http.StatusNoContent))

	for _, target := range []string{"/health", "/graphql", "/users/123"} {
		rec := serve(handler, http.MethodGet, target, nil)
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.ElementsMatch(t, []string{"GET /health", "GET /graphql", "GET /*"}, names)
}

func TestWrapHTTPHandler_RateLimitAndCORS(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			RateLimitEnabled:   true,
			RateLimitRPS:       0.001,
			RateLimitBurst:     1,
			CORSEnabled:        true,
			CORSAllowedOrigins: []string{"https://app.example"},
			CORSAllowedMethods: []string{"GET", "POST"},
		},
	}
	handler := wrapHTTPHandler(cfg, testLogger(), nil, statusHandler(http.StatusNoContent))

	rec := serve(handler, http.MethodGet, "/health", map[string]string{"Origin": "https://app.example"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = serve(handler, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestNormalizeHTTPSpanRoute(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "graphql", input: "/graphql", expected: "/graphql"},
		{name: "health", input: "/health", expected: "/health"},
		{name: "metrics", input: "/metrics", expected: "/metrics"},
		{name: "admin", input: "/admin/reload-data", expected: "/admin/reload-data"},
		{name: "root", input: "/", expected: "/"},
		{name: "unknown", input: "/users/123", expected: "/*"},
		{name: "empty", input: "", expected: "/*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeHTTPSpanRoute(tt.input, "/graphql"))
		})
	}
}
