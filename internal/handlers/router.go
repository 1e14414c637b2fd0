package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions параметры маршрутизатора
type RouterOptions struct {
	CORSOrigins []string
	Logger      *slog.Logger
}

// NewRouter регистрирует маршруты API и оборачивает их в middleware
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := mux.NewRouter()

	// API эндпоинты
	router.HandleFunc("/analyze", h.AnalyzeHandler).Methods(http.MethodPost)
	router.HandleFunc("/analyze/batch", h.BatchAnalyzeHandler).Methods(http.MethodPost)
	router.HandleFunc("/health", h.HealthHandler).Methods(http.MethodGet)
	router.HandleFunc("/metrics", h.MetricsHandler).Methods(http.MethodGet)
	router.HandleFunc("/stats", h.StatsHandler).Methods(http.MethodGet)
	router.HandleFunc("/results/latest", h.LatestResultsHandler).Methods(http.MethodGet)

	// Prometheus метрики
	router.Handle("/prometheus", promhttp.Handler()).Methods(http.MethodGet)

	router.Use(inFlightMiddleware)

	var handler http.Handler = router
	handler = corsMiddleware(opts.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)
	handler = requestIDMiddleware(handler)
	return handler
}
