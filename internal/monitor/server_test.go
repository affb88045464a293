package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nh-chitose/r2-re/internal/config"
	"github.com/nh-chitose/r2-re/internal/domain"
)

type healthBody struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
}

func newTestServer(checks []HealthCheck) *Server {
	hub := NewHub(&scriptedBus{msgs: make(chan domain.BusMessage)}, discardLogger())
	return NewServer(config.MonitorConfig{Port: 0}, hub, checks, discardLogger())
}

func getHealth(t *testing.T, s *Server) (int, healthBody) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var body healthBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealthWithoutChecks(t *testing.T) {
	code, body := getHealth(t, newTestServer(nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.Empty(t, body.Dependencies)
}

func TestHealthReportsEachDependency(t *testing.T) {
	s := newTestServer([]HealthCheck{
		{Name: "redis", Check: func(context.Context) error { return nil }},
		{Name: "s3", Check: func(context.Context) error { return nil }},
	})

	code, body := getHealth(t, s)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "ok", body.Dependencies["redis"])
	assert.Equal(t, "ok", body.Dependencies["s3"])
}

func TestHealthDegradedOnFailingCheck(t *testing.T) {
	s := newTestServer([]HealthCheck{
		{Name: "redis", Check: func(context.Context) error { return nil }},
		{Name: "s3", Check: func(context.Context) error { return errors.New("bucket unreachable") }},
	})

	code, body := getHealth(t, s)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Dependencies["redis"])
	assert.Contains(t, body.Dependencies["s3"], "bucket unreachable")
}
