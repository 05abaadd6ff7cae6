package cli

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type HealthChecker interface {
	Health() string
}

// HealthHandler serves prometheus metrics on /metrics, and the worst status
// reported by checkers on /health.
func HealthHandler(checkers ...HealthChecker) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		for _, checker := range checkers {
			switch checker.Health() {
			case "warning":
				w.WriteHeader(http.StatusTooManyRequests)
				return
			case "critical":
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func ServeHealth(logger *zap.Logger, port int, checkers ...HealthChecker) *http.Server {
	server := &http.Server{
		Addr:    fmt.Sprintf("[::]:%d", port),
		Handler: HealthHandler(checkers...),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("failed to run healthcheck endpoint", zap.Error(err))
		}
	}()
	return server
}
