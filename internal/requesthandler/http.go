package requesthandler

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/graphql-go/handler"
)

// DefaultMaxBodyBytes caps request bodies read by the HTTP adapter.
const DefaultMaxBodyBytes int64 = 1 << 20

// HTTPConfig controls the HTTP adapter.
type HTTPConfig struct {
	// GraphiQL serves the GraphiQL page to requests that are not JSON POSTs.
	GraphiQL bool
	// Playground serves the GraphQL Playground page instead when GraphiQL is off.
	Playground   bool
	MaxBodyBytes int64
}

// NewHTTPHandler adapts h to HTTP. JSON POST requests are executed; other
// requests get the in-browser IDE when one is enabled and 405 otherwise.
func NewHTTPHandler(h *Handler, cfg HTTPConfig) http.Handler {
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	var page http.Handler
	if cfg.GraphiQL || cfg.Playground {
		page = handler.New(&handler.Config{
			Schema:     h.Schema(),
			Pretty:     true,
			GraphiQL:   cfg.GraphiQL,
			Playground: cfg.Playground && !cfg.GraphiQL,
		})
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && isJSONContentType(r.Header.Get("Content-Type")) {
			serveJSON(w, r, h, maxBody)
			return
		}
		if page != nil {
			page.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", http.MethodPost)
		writeResponse(w, errorResponse(http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method)))
	})
}

func serveJSON(w http.ResponseWriter, r *http.Request, h *Handler, maxBody int64) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeResponse(w, errorResponse(http.StatusRequestEntityTooLarge, err))
				return
			}
			writeResponse(w, errorResponse(http.StatusBadRequest, fmt.Errorf("failed to read request body: %w", err)))
			return
		}
	}

	resp, err := h.Handle(r.Context(), body)
	if err != nil {
		writeResponse(w, errorResponse(http.StatusBadRequest, err))
		return
	}
	writeResponse(w, resp)
}

func writeResponse(w http.ResponseWriter, resp Response) {
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

func isJSONContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(contentType)
	}
	return strings.EqualFold(mediaType, contentTypeJSON)
}
