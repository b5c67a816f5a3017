package handlers

import (
	"github.com/gorilla/mux"
)

// RegisterRoutes attaches every handler to the router.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/convert", h.Convert).Methods("POST")
	api.HandleFunc("/audio/{file}", h.GetArtifact).Methods("GET")
	api.HandleFunc("/cover/{file}", h.GetCover).Methods("GET")
	api.HandleFunc("/stats", h.GetStats).Methods("GET")
	api.HandleFunc("/cache", h.ClearCache).Methods("DELETE")
}
