package server

import (
	"net/http"

	"github.com/woozymasta/go3dep/internal/metrics"
)

// NewMux registers every route of the API and wraps it in RequestLogger.
func NewMux(s *ServerContext) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/layers", s.HandleLayers)
	mux.HandleFunc("POST /api/profile", s.HandleProfile)
	mux.HandleFunc("POST /api/elevation", s.HandleElevation)
	mux.HandleFunc("GET /api/availability", s.HandleAvailability)
	mux.HandleFunc("GET /tiles/{name}/{z}/{x}/{y}", s.HandleTile)
	mux.HandleFunc("GET /healthz", s.HandleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	return RequestLogger(mux)
}
