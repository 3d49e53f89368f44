package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getJSON(t *testing.T, h http.Handler, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	return rec.Code
}

func TestHealthChecker_Liveness(t *testing.T) {
	h := NewHealthChecker(map[string]CheckFunc{
		"redis": func(context.Context) error { return errors.New("down") },
	})
	h.SetReady(false)

	var resp HealthResponse
	code := getJSON(t, h.LivenessHandler(), "/healthz", &resp)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, healthStatusOK, resp.Status)
}

func TestHealthChecker_Readiness(t *testing.T) {
	redisErr := error(nil)
	h := NewHealthChecker(map[string]CheckFunc{
		"redis":    func(context.Context) error { return redisErr },
		"postgres": func(context.Context) error { return nil },
	})

	var resp HealthResponse
	code := getJSON(t, h.ReadinessHandler(), "/readyz", &resp)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]string{
		"ready": "ok", "shutdown": "ok", "redis": "ok", "postgres": "ok",
	}, resp.Checks)

	redisErr = errors.New("connection refused")
	resp = HealthResponse{}
	code = getJSON(t, h.ReadinessHandler(), "/readyz", &resp)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, healthStatusNotReady, resp.Status)
	assert.Equal(t, "connection refused", resp.Checks["redis"])

	redisErr = nil
	h.SetShuttingDown()
	resp = HealthResponse{}
	code = getJSON(t, h.ReadinessHandler(), "/readyz", &resp)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, healthStatusShuttingDown, resp.Status)
}

func TestHealthChecker_NotReady(t *testing.T) {
	h := NewHealthChecker(nil)
	assert.True(t, h.IsReady())
	h.SetReady(false)
	assert.False(t, h.IsReady())

	var resp DetailedHealthResponse
	code := getJSON(t, h.DetailedHealthHandler(), "/healthz/detailed", &resp)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, healthStatusNotReady, resp.Status)
	assert.NotEmpty(t, resp.Uptime)
}

func TestHealthChecker_CheckTimeout(t *testing.T) {
	h := NewHealthChecker(map[string]CheckFunc{
		"slow": func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	h.timeout = 10 * time.Millisecond

	var resp HealthResponse
	code := getJSON(t, h.ReadinessHandler(), "/readyz", &resp)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, context.DeadlineExceeded.Error(), resp.Checks["slow"])
}
