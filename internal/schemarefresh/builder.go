package schemarefresh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/eurisko-info-lab/json-graphql-server/internal/datastore"
	"github.com/eurisko-info-lab/json-graphql-server/internal/introspection"
	"github.com/eurisko-info-lab/json-graphql-server/internal/naming"
	"github.com/eurisko-info-lab/json-graphql-server/internal/requesthandler"
	"github.com/eurisko-info-lab/json-graphql-server/internal/resolver"

	"github.com/graphql-go/graphql"
)

// Snapshot is one loaded data document and the schema built from it. The
// store is live: mutations write into it until the snapshot is replaced.
type Snapshot struct {
	Store       *datastore.Store
	Model       *introspection.Model
	Schema      *graphql.Schema
	Request     *requesthandler.Handler
	Handler     http.Handler
	BuiltAt     time.Time
	Fingerprint string
}

// BuildConfig defines inputs for schema assembly.
type BuildConfig struct {
	Naming naming.Config
	HTTP   requesthandler.HTTPConfig
	Logger *slog.Logger
}

// BuildSnapshot runs the canonical pipeline used by the runtime and tests:
// infer the model from store, build the executable schema, and wrap it in
// the request handler and its HTTP adapter.
func BuildSnapshot(ctx context.Context, store *datastore.Store, fingerprint string, cfg BuildConfig) (*Snapshot, error) {
	if store == nil {
		return nil, fmt.Errorf("schema builder requires a data store")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	namer := naming.New(cfg.Naming, logger)
	model := introspection.Introspect(ctx, store, namer)

	schema, err := resolver.NewResolver(store, model, logger).BuildGraphQLSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to build GraphQL schema: %w", err)
	}

	request := requesthandler.New(schema, logger)
	return &Snapshot{
		Store:       store,
		Model:       model,
		Schema:      &schema,
		Request:     request,
		Handler:     requesthandler.NewHTTPHandler(request, cfg.HTTP),
		BuiltAt:     time.Now(),
		Fingerprint: fingerprint,
	}, nil
}

// Fingerprint returns the hex sha256 of a raw data document.
func Fingerprint(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
