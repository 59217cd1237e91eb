package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhatia/banknifty-sandwich/internal/models"
	"github.com/nikhilbhatia/banknifty-sandwich/internal/strategy"
)

func newTestServer(authToken string) (*Server, *Store) {
	store := &Store{}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	srv := NewServer(Config{ListenAddr: ":0", AuthToken: authToken}, store, prometheus.NewRegistry(), logger)
	return srv, store
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer("")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, store := newTestServer("")
	store.Publish(strategy.Snapshot{
		State:    models.StateActive,
		OpenLegs: 7,
		TotalPnL: 1234.5,
	}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Metrics strategy.Snapshot `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, models.StateActive, body.Metrics.State)
	assert.Equal(t, 7, body.Metrics.OpenLegs)
	assert.Equal(t, 1234.5, body.Metrics.TotalPnL)
}

func TestLegsEndpointEmpty(t *testing.T) {
	srv, _ := newTestServer("")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/legs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var legs []models.Leg
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &legs))
	assert.Empty(t, legs)
}

func TestAuthMiddleware(t *testing.T) {
	srv, _ := newTestServer("secret")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	req.Header.Set("X-Auth-Token", "secret")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open without a token.
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
