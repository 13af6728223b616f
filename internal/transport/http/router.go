package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/st20medic/trucks/internal/metrics"
)

// NewRouter wires all routes. Trigger, clearance and vehicle reads sit behind
// the staff API-key middleware; health and metrics do not.
func NewRouter(h *Handler, authMW *AuthMiddleware) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/metrics", metrics.HandleMetrics).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(authMW.Wrap)
	api.HandleFunc("/alerts/run", h.RunAlerts).Methods(http.MethodPost)
	api.HandleFunc("/vehicles/{id}/alerts", h.VehicleAlerts).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/{id}/clearances", h.ClearAlert).Methods(http.MethodPost)
	api.HandleFunc("/vehicles/{id}/clearances", h.ClearanceHistory).Methods(http.MethodGet)

	return r
}
