package api

import (
	"net/http"
	"time"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger, h.metrics),
	)

	mux.Handle("GET /healthz", http.HandlerFunc(h.Healthz))
	mux.Handle("GET /readyz", http.HandlerFunc(h.Readyz))
	mux.Handle("GET /metrics", h.metrics.Handler())

	mux.Handle("GET /api/v1/workflows", chain(http.HandlerFunc(h.ListWorkflows)))
	mux.Handle("GET /api/v1/workflows/{id}", chain(http.HandlerFunc(h.GetWorkflow)))
}

// NewServer создаёт http.Server с маршрутами API.
func NewServer(addr string, h *Handler) *http.Server {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
