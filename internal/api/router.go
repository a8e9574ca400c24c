package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"nepse-mock-trader/internal/monitoring"
)

// HealthFunc 返回各组件状态, 任一为 false 时 /healthz 返回 503
type HealthFunc func() map[string]bool

// NewRouter 注册 /ws, /metrics 和 /healthz
func NewRouter(hub *Hub, health HealthFunc) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/ws", hub)
	r.Handle("/metrics", monitoring.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", healthHandler(health)).Methods(http.MethodGet)
	return r
}

func healthHandler(health HealthFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]bool{}
		if health != nil {
			status = health()
		}

		code := http.StatusOK
		for _, ok := range status {
			if !ok {
				code = http.StatusServiceUnavailable
				break
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":     http.StatusText(code),
			"components": status,
			"time":       time.Now().UTC().Format(time.RFC3339),
		})
	}
}
