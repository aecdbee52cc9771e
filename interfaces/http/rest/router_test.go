package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/woragis/woragis-sub002/application/services"
	"github.com/woragis/woragis-sub002/domain/config"
	"github.com/woragis/woragis-sub002/infrastructure/observability"
	"github.com/woragis/woragis-sub002/infrastructure/persistence/memory"
	"github.com/woragis/woragis-sub002/pkg/api"
	"github.com/woragis/woragis-sub002/pkg/auth"
)

type stubHealth struct{ err error }

func (s stubHealth) Ping(context.Context) error { return s.err }

func newHandler(t *testing.T, health stubHealth, validator *auth.JWTValidator, collector *observability.Collector) http.Handler {
	t.Helper()
	logger := zap.NewNop()
	repo := memory.NewNodeRepository(logger)
	svc := services.NewNodeService(repo, nil, config.NewHolder(nil), logger)
	return NewRouter(svc, health, validator, collector, Options{}, logger).Setup()
}

func serve(h http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := newHandler(t, stubHealth{}, nil, nil)

	rec := serve(h, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestReady(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"store reachable", nil, http.StatusOK, "ready"},
		{"store down", errors.New("connection refused"), http.StatusServiceUnavailable, "unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandler(t, stubHealth{err: tt.err}, nil, nil)

			rec := serve(h, http.MethodGet, "/ready", nil)

			assert.Equal(t, tt.status, rec.Code)
			var resp api.HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.body, resp.Status)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	collector := observability.NewCollector("idea_canvas")
	h := newHandler(t, stubHealth{}, nil, collector)

	serve(h, http.MethodGet, "/api/v1/ideas/idea-1/nodes", nil)
	rec := serve(h, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "idea_canvas_http_requests_total")
	assert.Contains(t, rec.Body.String(), `route="/api/v1/ideas/{ideaID}/nodes"`)
}

func TestMetricsEndpoint_AbsentWithoutCollector(t *testing.T) {
	h := newHandler(t, stubHealth{}, nil, nil)

	rec := serve(h, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_DevModeTrustsUserHeader(t *testing.T) {
	h := newHandler(t, stubHealth{}, nil, nil)

	rec := serve(h, http.MethodGet, "/api/v1/ideas/idea-1/nodes", map[string]string{"X-User-ID": "user-7"})

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_RequiresBearerToken(t *testing.T) {
	cfg := auth.JWTConfig{SecretKey: "test-secret", Issuer: "idea-canvas"}
	validator, err := auth.NewJWTValidator(cfg)
	require.NoError(t, err)
	h := newHandler(t, stubHealth{}, validator, nil)

	rec := serve(h, http.MethodGet, "/api/v1/ideas/idea-1/nodes", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(h, http.MethodGet, "/api/v1/ideas/idea-1/nodes", map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := auth.GenerateToken(cfg, "user-1", time.Hour)
	require.NoError(t, err)
	rec = serve(h, http.MethodGet, "/api/v1/ideas/idea-1/nodes", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays public.
	rec = serve(h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNotFoundIsJSON(t *testing.T) {
	h := newHandler(t, stubHealth{}, nil, nil)

	rec := serve(h, http.MethodGet, "/nope", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json"))
}

func TestCORSPreflight(t *testing.T) {
	h := newHandler(t, stubHealth{}, nil, nil)

	rec := serve(h, http.MethodOptions, "/api/v1/ideas/idea-1/nodes", map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": "PATCH",
	})

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
