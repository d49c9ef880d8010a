package middleware

import (
	"net/http"
	"strings"
	"sync"

	"github.com/eurisko-info-lab/json-graphql-server/internal/gqlrequest"
	"github.com/eurisko-info-lab/json-graphql-server/internal/observability"
	"github.com/eurisko-info-lab/json-graphql-server/internal/resolver"
)

// GraphQLWriteLockMiddleware serializes access to the in-memory store.
// Mutations hold the write lock for the whole operation so their root fields
// run without interleaving; every other request holds the read lock. A
// request whose operation cannot be identified is treated as a mutation.
//
// Records written by a mutation are counted on the GraphQL metrics found in
// the request context.
func GraphQLWriteLockMiddleware(lock *sync.RWMutex) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if lock == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			analysis := gqlrequest.AnalysisFromContext(r.Context())
			if analysis == nil {
				analysis = gqlrequest.AnalyzeRequest(r)
			}

			if !requiresWriteLock(analysis) {
				lock.RLock()
				defer lock.RUnlock()
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			mc := resolver.MutationContextFromContext(ctx)
			if mc == nil {
				mc = resolver.NewMutationContext()
				ctx = resolver.WithMutationContext(ctx, mc)
			}

			func() {
				lock.Lock()
				defer lock.Unlock()
				next.ServeHTTP(w, r.WithContext(ctx))
			}()

			if metrics := observability.GraphQLMetricsFromContext(ctx); metrics != nil {
				for _, change := range mc.Changes() {
					metrics.RecordMutation(ctx, change.Collection, string(change.Kind))
				}
			}
		})
	}
}

func requiresWriteLock(analysis *gqlrequest.Analysis) bool {
	if analysis == nil || strings.TrimSpace(analysis.Envelope.Query) == "" {
		return false
	}
	if !analysis.Parsed() {
		return true
	}
	return analysis.IsMutation()
}
