// Package requesthandler executes GraphQL requests against a schema and
// adapts the result to HTTP.
package requesthandler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/eurisko-info-lab/json-graphql-server/internal/gqlrequest"
	"github.com/eurisko-info-lab/json-graphql-server/internal/logging"

	"github.com/graphql-go/graphql"
	jsoniter "github.com/json-iterator/go"
)

// ErrRequestBodyMissing is returned when a request carries no body.
var ErrRequestBodyMissing = errors.New("request body is missing")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const contentTypeJSON = "application/json"

// Request is the decoded GraphQL request body.
type Request struct {
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
	OperationName string                 `json:"operationName,omitempty"`
}

// Response is a transport-neutral GraphQL response.
type Response struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// Handler executes requests against one schema. It does not synchronize
// access to the data behind the schema; callers serialize mutations.
type Handler struct {
	schema  graphql.Schema
	logger  *slog.Logger
	execute func(graphql.Params) *graphql.Result
}

// New creates a handler for schema.
func New(schema graphql.Schema, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{schema: schema, logger: logger, execute: graphql.Do}
}

// Schema returns the schema requests run against.
func (h *Handler) Schema() *graphql.Schema {
	return &h.schema
}

// Handle decodes body, executes it and returns the response. Query errors
// are part of a 200 response; a failure during execution yields a 500.
func (h *Handler) Handle(ctx context.Context, body []byte) (Response, error) {
	req, err := DecodeRequest(body)
	if err != nil {
		return Response{}, err
	}
	return h.Execute(ctx, req), nil
}

// DecodeRequest parses a JSON request body.
func DecodeRequest(body []byte) (Request, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Request{}, ErrRequestBodyMissing
	}
	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return Request{}, fmt.Errorf("failed to decode request body: %w", err)
	}
	return req, nil
}

// Execute runs a decoded request. Invalid queries are reported in the
// result's errors with status 200. A resolver that fails or panics turns
// the whole response into a 500 with the failure as its message; a panic
// outside any resolver is recovered here with the same result.
func (h *Handler) Execute(ctx context.Context, req Request) (resp Response) {
	if ctx == nil {
		ctx = context.Background()
	}
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("graphql execution failed: %v", rec)
			h.loggerFor(ctx).Error("graphql execution panicked",
				slog.String("error", err.Error()),
				slog.String("operation", req.OperationName),
			)
			resp = errorResponse(http.StatusInternalServerError, err)
		}
	}()

	execCtx, failures := gqlrequest.WithFailureRecorder(gqlrequest.WithVariables(ctx, req.Variables))
	result := h.execute(graphql.Params{
		Schema:         h.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        execCtx,
	})
	if err := failures.Err(); err != nil {
		err = fmt.Errorf("graphql execution failed: %w", err)
		h.loggerFor(ctx).Error("graphql resolver failed",
			slog.String("error", err.Error()),
			slog.String("operation", req.OperationName),
		)
		return errorResponse(http.StatusInternalServerError, err)
	}

	body, err := json.Marshal(result)
	if err != nil {
		return errorResponse(http.StatusInternalServerError, fmt.Errorf("failed to encode response: %w", err))
	}
	return Response{
		Status:  http.StatusOK,
		Headers: map[string]string{"Content-Type": contentTypeJSON},
		Body:    body,
	}
}

func (h *Handler) loggerFor(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != nil && logger.Logger != slog.Default() {
		return logger.Logger
	}
	return h.logger
}

func errorResponse(status int, err error) Response {
	body, marshalErr := json.Marshal(map[string]string{"message": err.Error()})
	if marshalErr != nil {
		body = []byte(`{"message":"internal error"}`)
	}
	return Response{
		Status:  status,
		Headers: map[string]string{"Content-Type": contentTypeJSON},
		Body:    body,
	}
}
