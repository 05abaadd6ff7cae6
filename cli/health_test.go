package cli

import (
	"net/http"
	"net/http/httptest"
	"testing"

	consul "github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticHealth string

func (s staticHealth) Health() string { return string(s) }

func TestHealthHandler(t *testing.T) {
	for _, tc := range []struct {
		statuses []string
		code     int
	}{
		{[]string{"ok"}, http.StatusOK},
		{[]string{"ok", "warning"}, http.StatusTooManyRequests},
		{[]string{"critical", "warning"}, http.StatusInternalServerError},
		{nil, http.StatusOK},
	} {
		checkers := []HealthChecker{}
		for _, status := range tc.statuses {
			checkers = append(checkers, staticHealth(status))
		}
		recorder := httptest.NewRecorder()
		HealthHandler(checkers...).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, tc.code, recorder.Code, tc.statuses)
	}
	t.Run("metrics", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		HealthHandler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, recorder.Code)
	})
}

func TestDiscoveredPeers(t *testing.T) {
	entry := func(address string, port int, status string) *consul.ServiceEntry {
		return &consul.ServiceEntry{
			Service: &consul.AgentService{Address: address, Port: port},
			Checks:  consul.HealthChecks{&consul.HealthCheck{Status: status}},
		}
	}
	peers := discoveredPeers([]*consul.ServiceEntry{
		entry("10.0.0.1", 3500, consul.HealthPassing),
		entry("10.0.0.2", 3500, consul.HealthPassing),
		entry("10.0.0.3", 3500, consul.HealthCritical),
		entry("10.0.0.4", 3500, consul.HealthWarning),
	}, "10.0.0.1", 3500, zap.NewNop())
	require.Equal(t, []string{"10.0.0.2:3500", "10.0.0.4:3500"}, peers)
}
