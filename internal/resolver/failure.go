package resolver

import (
	"context"
	"fmt"

	"github.com/eurisko-info-lab/json-graphql-server/internal/gqlrequest"

	"github.com/graphql-go/graphql"
)

// finish ends the span after turning a panic in the resolver into *err.
// A non-nil *err is reported to the request's failure recorder. It must be
// deferred directly.
func (s *collectionSpan) finish(ctx context.Context, err *error) {
	if rec := recover(); rec != nil {
		*err = fmt.Errorf("resolver panic: %v", rec)
	}
	if *err != nil {
		gqlrequest.RecordFailure(ctx, *err)
	}
	s.end(*err)
}

// guarded gives a resolver without a span the same failure handling as
// finish.
func guarded(fn graphql.FieldResolveFn) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (result interface{}, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				result, err = nil, fmt.Errorf("resolver panic: %v", rec)
			}
			if err != nil {
				gqlrequest.RecordFailure(p.Context, err)
			}
		}()
		return fn(p)
	}
}
