package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PratikDhanave/login-pii-pipeline/internal/metrics"
	"github.com/PratikDhanave/login-pii-pipeline/internal/models"
)

////////////////////////////////////////////////////////////////////////////////
// ROUTER TEST SUITE
//
// Exercises the operator surface against an in-memory store:
//
//   Client → gin router → API key → store → response
//
////////////////////////////////////////////////////////////////////////////////

const testKey = "operator-key-123"

type fakeStore struct {
	pingErr  error
	countErr error
	count    int64

	from, to   time.Time
	deviceType string
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) CountLogins(_ context.Context, from, to time.Time, deviceType string) (int64, error) {
	f.from, f.to, f.deviceType = from, to, deviceType
	return f.count, f.countErr
}

func newTestServer(st *fakeStore) http.Handler {
	reg := prometheus.NewRegistry()
	metrics.New(reg).ObserveOutcome("success")
	return NewRouter(map[string]string{testKey: "operator"}, st, reg)
}

// do performs a request with optional API key.
func do(t *testing.T, h http.Handler, apiKey, path string) (int, []byte) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code, rec.Body.Bytes()
}

////////////////////////////////////////////////////////////////////////////////
// HEALTH & READINESS TESTS
////////////////////////////////////////////////////////////////////////////////

func TestHealth_ReturnsOK(t *testing.T) {
	s, _ := do(t, newTestServer(&fakeStore{}), "", "/health")
	assert.Equal(t, http.StatusOK, s)
}

func TestReady_ReflectsDatabase(t *testing.T) {
	st := &fakeStore{}
	h := newTestServer(st)

	s, _ := do(t, h, "", "/ready")
	assert.Equal(t, http.StatusOK, s)

	st.pingErr = errors.New("connection refused")
	s, b := do(t, h, "", "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, s)
	assert.Contains(t, string(b), "not_ready")
}

func TestMetrics_ExposesPipelineCounters(t *testing.T) {
	s, b := do(t, newTestServer(&fakeStore{}), "", "/metrics")
	assert.Equal(t, http.StatusOK, s)
	assert.Contains(t, string(b), `login_pipeline_messages_total{outcome="success"} 1`)
}

////////////////////////////////////////////////////////////////////////////////
// LOGIN COUNT CONTRACT TESTS
////////////////////////////////////////////////////////////////////////////////

func TestLoginCount_UnauthorizedWithoutAPIKey(t *testing.T) {
	h := newTestServer(&fakeStore{})

	s, _ := do(t, h, "", "/logins/count?from=2026-01-01&to=2026-01-02")
	assert.Equal(t, http.StatusUnauthorized, s)

	s, _ = do(t, h, "wrong", "/logins/count?from=2026-01-01&to=2026-01-02")
	assert.Equal(t, http.StatusUnauthorized, s)
}

func TestLoginCount_BadRequests(t *testing.T) {
	h := newTestServer(&fakeStore{})

	for _, path := range []string{
		"/logins/count",
		"/logins/count?from=2026-01-01",
		"/logins/count?from=yesterday&to=2026-01-02",
		"/logins/count?from=2026-01-01&to=2026-01-02T00:00:00Z",
		"/logins/count?from=2026-01-02&to=2026-01-02",
	} {
		s, _ := do(t, h, testKey, path)
		assert.Equal(t, http.StatusBadRequest, s, path)
	}
}

func TestLoginCount_ReturnsCount(t *testing.T) {
	st := &fakeStore{count: 42}
	h := newTestServer(st)

	s, b := do(t, h, testKey, "/logins/count?from=2026-01-01&to=2026-02-01&device_type=ios")
	require.Equal(t, http.StatusOK, s)

	var resp models.LoginCountResponse
	require.NoError(t, json.Unmarshal(b, &resp))
	assert.Equal(t, models.LoginCountResponse{From: "2026-01-01", To: "2026-02-01", DeviceType: "ios", Count: 42}, resp)

	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), st.from)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), st.to)
	assert.Equal(t, "ios", st.deviceType)
}

func TestLoginCount_StoreFailure(t *testing.T) {
	h := newTestServer(&fakeStore{countErr: errors.New("boom")})

	s, _ := do(t, h, testKey, "/logins/count?from=2026-01-01&to=2026-02-01")
	assert.Equal(t, http.StatusInternalServerError, s)
}
