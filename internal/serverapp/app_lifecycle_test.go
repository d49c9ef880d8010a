package serverapp

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/eurisko-info-lab/json-graphql-server/internal/config"
	"github.com/eurisko-info-lab/json-graphql-server/internal/logging"
	"github.com/eurisko-info-lab/json-graphql-server/internal/naming"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blogJSON = `{
  "posts": [
    { "id": 1, "title": "Lorem Ipsum", "views": 254, "user_id": 123 },
    { "id": 2, "title": "Sic Dolor amet", "views": 65, "user_id": 456 }
  ],
  "users": [
    { "id": 123, "name": "John Doe" },
    { "id": 456, "name": "Jane Doe" }
  ]
}`

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: "error", Format: "text", Output: io.Discard})
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.json")
	require.NoError(t, os.WriteFile(path, []byte(blogJSON), 0o600))

	return &config.Config{
		Data: config.DataConfig{
			File:   path,
			Format: "auto",
		},
		Server: config.ServerConfig{
			Port:            0,
			GraphQLPath:     "/graphql",
			ReadTimeout:     time.Second,
			WriteTimeout:    time.Second,
			IdleTimeout:     time.Second,
			ShutdownTimeout: time.Second,
		},
		Observability: config.ObservabilityConfig{
			ServiceName:    "json-graphql-server",
			ServiceVersion: "test",
			Environment:    "test",
			Logging: config.LoggingConfig{
				Level:  "error",
				Format: "text",
			},
		},
		Naming: naming.DefaultConfig(),
	}
}

func postGraphQL(t *testing.T, handler http.Handler, query string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]string{"query": query})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestWaitForStop_SignalWins(t *testing.T) {
	app := &App{logger: testLogger()}
	stop := make(chan os.Signal, 1)
	serverErrors := make(chan error, 1)

	stop <- syscall.SIGTERM

	reason, err := app.WaitForStop(stop, serverErrors)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reason != "signal" {
		t.Fatalf("expected reason=signal, got %q", reason)
	}
}

func TestWaitForStop_ServerErrorWins(t *testing.T) {
	app := &App{logger: testLogger()}
	serverErrors := make(chan error, 1)
	serverErrors <- errors.New("boom")

	reason, err := app.WaitForStop(nil, serverErrors)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if reason != "server_error" {
		t.Fatalf("expected reason=server_error, got %q", reason)
	}
}

func TestWaitForStop_NoChannels(t *testing.T) {
	app := &App{logger: testLogger()}
	_, err := app.WaitForStop(nil, nil)
	assert.Error(t, err)
}

func TestShutdown_Idempotent(t *testing.T) {
	app := &App{logger: testLogger()}
	var calls int32
	app.cleanup.push("test", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := app.Shutdown(ctx); err != nil {
		t.Fatalf("first shutdown failed: %v", err)
	}
	if err := app.Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown failed: %v", err)
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected cleanup to run once, ran %d times", got)
	}
}

func TestShutdown_RunsLIFOAndJoinsErrors(t *testing.T) {
	app := &App{logger: testLogger()}
	var order []string
	app.cleanup.push("first", func(context.Context) error {
		order = append(order, "first")
		return errors.New("first failed")
	})
	app.cleanup.push("second", func(context.Context) error {
		order = append(order, "second")
		return nil
	})

	err := app.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first: first failed")
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestStart_BeforeInit_Fails(t *testing.T) {
	app := &App{logger: testLogger()}
	if _, err := app.Start(); err == nil {
		t.Fatalf("expected start to fail before init")
	}
}

func TestStartAndShutdown_HappyPath(t *testing.T) {
	app := &App{
		cfg:        &config.Config{},
		logger:     testLogger(),
		serverAddr: "127.0.0.1:0",
		srv: &http.Server{
			Addr:    "127.0.0.1:0",
			Handler: http.NewServeMux(),
		},
		initialized: true,
	}
	app.cleanup.push("HTTP server", func(ctx context.Context) error {
		return app.srv.Shutdown(ctx)
	})

	first, err := app.Start()
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	second, err := app.Start()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := app.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}

func TestNew_RequiresConfigAndLogger(t *testing.T) {
	_, err := New(nil, testLogger())
	assert.Error(t, err)
	_, err = New(&config.Config{}, nil)
	assert.Error(t, err)
}

func TestInitFailure_DoesNotMarkInitialized(t *testing.T) {
	cfg := testConfig(t)
	cfg.Data.File = filepath.Join(t.TempDir(), "missing.json")

	app, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}

	if err := app.Init(context.Background()); err == nil {
		t.Fatalf("expected init to fail with a missing data file")
	}

	app.stateMu.Lock()
	initialized := app.initialized
	app.stateMu.Unlock()
	if initialized {
		t.Fatalf("app should not be marked initialized after failed Init")
	}
}

func TestInitServesQueriesAndMutations(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Admin = config.AdminConfig{ReloadEnabled: true, AuthToken: "secret"}

	app, err := New(cfg, testLogger())
	require.NoError(t, err)
	require.NoError(t, app.Init(context.Background()))
	require.NoError(t, app.Init(context.Background()))
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })

	handler := app.Handler()
	require.NotNil(t, handler)

	rec := postGraphQL(t, handler, `{ allPosts(sortField: "views", sortOrder: "desc") { id title User { name } } }`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"allPosts":[
		{"id":"1","title":"Lorem Ipsum","User":{"name":"John Doe"}},
		{"id":"2","title":"Sic Dolor amet","User":{"name":"Jane Doe"}}
	]}}`, rec.Body.String())

	rec = postGraphQL(t, handler, `mutation { createPost(title: "New", views: 0, user_id: "123") { id } }`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"createPost":{"id":"3"}}}`, rec.Body.String())

	rec = postGraphQL(t, handler, `{ _allPostsMeta { count } }`)
	assert.JSONEq(t, `{"data":{"_allPostsMeta":{"count":3}}}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"posts":3`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	// An unchanged file keeps the live store.
	req = httptest.NewRequest(http.MethodPost, "/admin/reload-data", nil)
	req.Header.Set("X-Admin-Token", "secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postGraphQL(t, handler, `{ _allPostsMeta { count } }`)
	assert.JSONEq(t, `{"data":{"_allPostsMeta":{"count":3}}}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/graphql", rec.Header().Get("Location"))
}

func TestInitStepsRunTelemetryBeforeData(t *testing.T) {
	app := &App{logger: testLogger()}
	var names []string
	for _, step := range app.initSteps() {
		names = append(names, step.name)
	}
	assert.Equal(t, []string{"metrics", "tracing", "data", "http"}, names)
}
