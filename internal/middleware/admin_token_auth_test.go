package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adminHandler(t *testing.T, cfg AdminTokenAuthConfig, next http.HandlerFunc) http.Handler {
	t.Helper()
	mw, err := AdminTokenAuthMiddleware(cfg)
	require.NoError(t, err)
	return mw(next)
}

func TestAdminTokenAuthMiddleware(t *testing.T) {
	noContent := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }

	tests := []struct {
		name     string
		cfg      AdminTokenAuthConfig
		header   string
		value    string
		wantCode int
	}{
		{"missing header", AdminTokenAuthConfig{Token: "secret-token"}, "", "", http.StatusUnauthorized},
		{"wrong token", AdminTokenAuthConfig{Token: "secret-token"}, defaultAdminTokenHeader, "wrong-token", http.StatusUnauthorized},
		{"valid token", AdminTokenAuthConfig{Token: "secret-token"}, defaultAdminTokenHeader, "secret-token", http.StatusNoContent},
		{"padded token", AdminTokenAuthConfig{Token: " secret-token "}, defaultAdminTokenHeader, "secret-token ", http.StatusNoContent},
		{"custom header", AdminTokenAuthConfig{Token: "secret-token", HeaderName: "X-Reload-Key"}, "X-Reload-Key", "secret-token", http.StatusNoContent},
		{"default header ignored with custom name", AdminTokenAuthConfig{Token: "secret-token", HeaderName: "X-Reload-Key"}, defaultAdminTokenHeader, "secret-token", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := adminHandler(t, tt.cfg, noContent)
			req := httptest.NewRequest(http.MethodPost, "/admin/reload-data", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusUnauthorized {
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
				assert.Equal(t, `{"error":"unauthorized"}`, rec.Body.String())
			}
		})
	}
}

func TestAdminTokenAuthMiddleware_SetsAuthContextOnSuccess(t *testing.T) {
	var seen AuthContext
	var ok bool
	handler := adminHandler(t, AdminTokenAuthConfig{Token: "secret-token"}, func(w http.ResponseWriter, r *http.Request) {
		seen, ok = AuthFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/admin/reload-data", nil)
	req.Header.Set(defaultAdminTokenHeader, "secret-token")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, ok)
	assert.Equal(t, AuthContext{Subject: "admin", Method: "admin_token"}, seen)
}

func TestAdminTokenAuthMiddleware_RequiresTokenConfig(t *testing.T) {
	_, err := AdminTokenAuthMiddleware(AdminTokenAuthConfig{Token: "   "})
	assert.Error(t, err)
}
