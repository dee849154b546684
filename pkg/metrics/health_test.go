package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/types"
)

func resetHealth() {
	healthChecker = newHealthChecker()
}

func TestGetHealth_AllHealthy(t *testing.T) {
	resetHealth()
	SetVersion("1.0.0")

	UpdateComponent("dns", true, "")
	UpdateComponent("proxy", true, "")

	health := GetHealth()

	assert.Equal(t, "healthy", health.Status)
	assert.Len(t, health.Components, 2)
	assert.Equal(t, "1.0.0", health.Version)
}

func TestGetHealth_OneUnhealthy(t *testing.T) {
	resetHealth()

	UpdateComponent("dns", true, "")
	UpdateComponent("proxy", false, "nginx -t failed")

	health := GetHealth()

	assert.Equal(t, "unhealthy", health.Status)
	assert.Equal(t, "unhealthy: nginx -t failed", health.Components["proxy"])
}

func TestGetReadiness(t *testing.T) {
	tests := []struct {
		name       string
		components map[string]bool
		wantStatus string
	}{
		{
			name:       "all critical ready",
			components: map[string]bool{"dns": true, "certs": true, "proxy": true},
			wantStatus: "ready",
		},
		{
			name:       "one missing",
			components: map[string]bool{"dns": true, "certs": true},
			wantStatus: "not_ready",
		},
		{
			name:       "one unhealthy",
			components: map[string]bool{"dns": true, "certs": false, "proxy": true},
			wantStatus: "not_ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth()
			for name, healthy := range tt.components {
				UpdateComponent(name, healthy, "")
			}
			assert.Equal(t, tt.wantStatus, GetReadiness().Status)
		})
	}
}

func TestReadyHandler(t *testing.T) {
	resetHealth()
	UpdateComponent("dns", true, "")

	w := httptest.NewRecorder()
	ReadyHandler()(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "not_ready", body.Status)
	assert.Equal(t, "not registered", body.Components["certs"])
}

func TestHealthHandler(t *testing.T) {
	resetHealth()
	UpdateComponent("dns", true, "")

	w := httptest.NewRecorder()
	HealthHandler()(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestObserve(t *testing.T) {
	infos := []*types.SubdomainInfo{
		{Label: "app", FullDomain: "app.example.com", CertStatus: types.CertStatus{Exists: true, DaysLeft: 42}},
		{Label: "api", FullDomain: "api.example.com", CertStatus: types.CertStatus{Exists: true, DaysLeft: 7}},
	}

	Observe(infos)

	assert.Equal(t, float64(2), testutil.ToFloat64(SubdomainsActive))
	assert.Equal(t, float64(42), testutil.ToFloat64(CertificateDaysLeft.WithLabelValues("app.example.com")))
	assert.Equal(t, float64(7), testutil.ToFloat64(CertificateDaysLeft.WithLabelValues("api.example.com")))
}
