package gqlrequest

import (
	"context"
	"errors"
	"sync"
)

type contextKey int

const (
	analysisKey contextKey = iota
	execMetaKey
	variablesKey
	failuresKey
)

// ExecMeta is what the GraphQL route knows about a request before it runs:
// the operation, the data snapshot it runs against and the collections its
// root fields address.
type ExecMeta struct {
	DataFingerprint string

	OperationName string
	OperationType string
	OperationHash string

	// SnapshotKey identifies the operation against one data snapshot. It
	// changes when either the operation or the data changes.
	SnapshotKey string

	// Collections are the collection keys behind the root fields, sorted
	// and deduplicated.
	Collections []string
}

// WithAnalysis stores the request analysis.
func WithAnalysis(ctx context.Context, analysis *Analysis) context.Context {
	return context.WithValue(orBackground(ctx), analysisKey, analysis)
}

// AnalysisFromContext returns the stored request analysis, or nil.
func AnalysisFromContext(ctx context.Context) *Analysis {
	if ctx == nil {
		return nil
	}
	analysis, _ := ctx.Value(analysisKey).(*Analysis)
	return analysis
}

// WithExecMeta stores execution metadata.
func WithExecMeta(ctx context.Context, meta ExecMeta) context.Context {
	return context.WithValue(orBackground(ctx), execMetaKey, meta)
}

// ExecMetaFromContext returns the stored execution metadata.
func ExecMetaFromContext(ctx context.Context) (ExecMeta, bool) {
	if ctx == nil {
		return ExecMeta{}, false
	}
	meta, ok := ctx.Value(execMetaKey).(ExecMeta)
	return meta, ok
}

// WithVariables stores the variables exactly as the client sent them. The
// executor fills in every declared variable, so this is the only place
// that tells an omitted variable apart from one sent as null.
func WithVariables(ctx context.Context, variables map[string]interface{}) context.Context {
	if variables == nil {
		variables = map[string]interface{}{}
	}
	return context.WithValue(orBackground(ctx), variablesKey, variables)
}

// VariableSentAsNull reports whether the client sent the variable name with
// an explicit null. It is false when the variable was omitted or when no
// variables were stored in ctx.
func VariableSentAsNull(ctx context.Context, name string) bool {
	if ctx == nil {
		return false
	}
	variables, ok := ctx.Value(variablesKey).(map[string]interface{})
	if !ok {
		return false
	}
	value, present := variables[name]
	return present && value == nil
}

// FailureRecorder collects the resolver failures of one execution. The
// executor reports them as field errors; the request handler uses the
// recorder to answer such a request with a server error instead.
type FailureRecorder struct {
	mu   sync.Mutex
	errs []error
}

// WithFailureRecorder attaches a new recorder to ctx.
func WithFailureRecorder(ctx context.Context) (context.Context, *FailureRecorder) {
	recorder := &FailureRecorder{}
	return context.WithValue(orBackground(ctx), failuresKey, recorder), recorder
}

// RecordFailure adds err to the recorder in ctx. It does nothing when ctx
// carries no recorder.
func RecordFailure(ctx context.Context, err error) {
	if ctx == nil || err == nil {
		return
	}
	recorder, ok := ctx.Value(failuresKey).(*FailureRecorder)
	if !ok {
		return
	}
	recorder.mu.Lock()
	recorder.errs = append(recorder.errs, err)
	recorder.mu.Unlock()
}

// Err joins every recorded failure. It is nil when none was recorded.
func (f *FailureRecorder) Err() error {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return errors.Join(f.errs...)
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
