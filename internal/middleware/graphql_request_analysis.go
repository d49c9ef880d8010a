package middleware

import (
	"net/http"
	"sort"

	"github.com/eurisko-info-lab/json-graphql-server/internal/gqlrequest"
	"github.com/eurisko-info-lab/json-graphql-server/internal/logging"
	"github.com/eurisko-info-lab/json-graphql-server/internal/observability"
)

// ServedData describes the data snapshot the GraphQL route serves.
type ServedData interface {
	CurrentFingerprint() string
	CollectionForRootField(name string) (string, bool)
}

// GraphQLRequestAnalysisMiddleware decodes and analyzes the GraphQL request once
// and stores derived metadata in request context for downstream middleware.
func GraphQLRequestAnalysisMiddleware(data ServedData) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			analysis := gqlrequest.AnalyzeRequest(r)
			ctx := gqlrequest.WithAnalysis(r.Context(), analysis)

			meta := execMeta(analysis, data)
			ctx = gqlrequest.WithExecMeta(ctx, meta)

			if logFields := observability.GraphQLLogFields(ctx, analysis, meta); len(logFields) > 0 {
				ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithFields(logFields...))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func execMeta(analysis *gqlrequest.Analysis, data ServedData) gqlrequest.ExecMeta {
	meta := gqlrequest.ExecMeta{}
	if analysis != nil {
		meta.OperationName = analysis.OperationName
		meta.OperationType = analysis.OperationType
		meta.OperationHash = analysis.OperationHash
	}
	if data == nil {
		return meta
	}

	meta.DataFingerprint = data.CurrentFingerprint()
	meta.SnapshotKey = gqlrequest.SnapshotKey(meta.OperationHash, meta.DataFingerprint)
	if analysis == nil {
		return meta
	}

	seen := map[string]bool{}
	for _, field := range analysis.RootFields {
		key, ok := data.CollectionForRootField(field)
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		meta.Collections = append(meta.Collections, key)
	}
	sort.Strings(meta.Collections)
	return meta
}
