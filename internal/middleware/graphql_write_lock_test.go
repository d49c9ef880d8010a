package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/eurisko-info-lab/json-graphql-server/internal/resolver"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func graphQLPost(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestGraphQLWriteLockMiddleware_LockModes(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantWrite bool
	}{
		{"query takes read lock", `{"query":"{ allPosts { id } }"}`, false},
		{"mutation takes write lock", `{"query":"mutation { removePost(id: 1) { id } }"}`, true},
		{"named mutation among queries", `{"query":"query A { Post(id: 1) { id } } mutation B { removePost(id: 1) { id } }","operationName":"B"}`, true},
		{"unparseable query takes write lock", `{"query":"mutation {"}`, true},
		{"empty body takes read lock", `{}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var lock sync.RWMutex
			var exclusive, sawMutationContext bool
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				// A held write lock blocks readers; a held read lock does not.
				if lock.TryRLock() {
					lock.RUnlock()
				} else {
					exclusive = true
				}
				sawMutationContext = resolver.MutationContextFromContext(r.Context()) != nil
				w.WriteHeader(http.StatusOK)
			})

			handler := GraphQLRequestAnalysisMiddleware(nil)(GraphQLWriteLockMiddleware(&lock)(next))
			handler.ServeHTTP(httptest.NewRecorder(), graphQLPost(tt.body))

			assert.Equal(t, tt.wantWrite, exclusive)
			assert.Equal(t, tt.wantWrite, sawMutationContext)
			assert.True(t, lock.TryLock(), "lock released after request")
		})
	}
}

func TestGraphQLWriteLockMiddleware_AnalyzesWithoutUpstreamMiddleware(t *testing.T) {
	var lock sync.RWMutex
	var exclusive bool
	handler := GraphQLWriteLockMiddleware(&lock)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		exclusive = !lock.TryRLock()
		if !exclusive {
			lock.RUnlock()
		}
	}))

	handler.ServeHTTP(httptest.NewRecorder(), graphQLPost(`{"query":"mutation { removePost(id: 1) { id } }"}`))
	assert.True(t, exclusive)
}

func TestGraphQLWriteLockMiddleware_NilLockPassesThrough(t *testing.T) {
	called := false
	handler := GraphQLWriteLockMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	handler.ServeHTTP(httptest.NewRecorder(), graphQLPost(`{"query":"mutation { removePost(id: 1) { id } }"}`))
	assert.True(t, called)
}

func TestGraphQLWriteLockMiddleware_RecordsMutationMetrics(t *testing.T) {
	metrics, reader := installMeterProvider(t)
	var lock sync.RWMutex

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mc := resolver.MutationContextFromContext(r.Context())
		mc.Record(resolver.Change{Collection: "posts", Kind: resolver.ChangeCreate, ID: int64(3)})
		mc.Record(resolver.Change{Collection: "posts", Kind: resolver.ChangeCreate, ID: int64(4)})
		mc.Record(resolver.Change{Collection: "users", Kind: resolver.ChangeRemove, ID: int64(1)})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{}}`))
	})

	handler := GraphQLRequestAnalysisMiddleware(nil)(
		GraphQLMetricsMiddleware(metrics)(
			GraphQLWriteLockMiddleware(&lock)(next),
		),
	)
	handler.ServeHTTP(httptest.NewRecorder(), graphQLPost(`{"query":"mutation { createPost(title: \"x\") { id } }"}`))

	rm := collectMetrics(t, reader)
	mutations := func(collection, kind string) int64 {
		return sumInt64Where(rm, "data.mutations.total", func(attrs attribute.Set) bool {
			return attrEquals(attrs, "collection", collection) && attrEquals(attrs, "kind", kind)
		})
	}
	assert.Equal(t, int64(2), mutations("posts", "create"))
	assert.Equal(t, int64(1), mutations("users", "remove"))
	assert.Zero(t, mutations("posts", "update"))
}
