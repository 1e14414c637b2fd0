// Package metrics реализует экспорт метрик в Prometheus
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики
var (
	// RequestsTotal общее количество HTTP запросов
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentiment_edge_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"endpoint", "method", "status"},
	)

	// RequestDuration длительность HTTP запросов
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentiment_edge_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"endpoint", "method"},
	)

	// InferenceLatency длительность вызова модели
	InferenceLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentiment_edge_inference_latency_seconds",
			Help:    "Model inference latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"mode"},
	)

	// TextsClassified количество классифицированных текстов по меткам
	TextsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentiment_edge_texts_classified_total",
			Help: "Total number of texts classified, by label",
		},
		[]string{"label"},
	)

	// InferenceErrors количество ошибок модели
	InferenceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentiment_edge_inference_errors_total",
			Help: "Total number of failed inference calls",
		},
		[]string{"mode"},
	)

	// SlowInferences количество медленных вызовов модели
	SlowInferences = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentiment_edge_slow_inferences_total",
			Help: "Total number of inference calls above the slow threshold",
		},
	)

	// ModelReady готовность модели (1/0)
	ModelReady = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentiment_edge_model_ready",
			Help: "Whether the model finished loading and warm-up",
		},
	)

	// ModelLoadSeconds время загрузки и прогрева модели
	ModelLoadSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentiment_edge_model_load_seconds",
			Help: "Model load and warm-up duration in seconds",
		},
	)

	// QueueDepth количество запросов, ожидающих воркера инференса
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentiment_edge_inference_queue_depth",
			Help: "Number of requests waiting for an inference worker",
		},
	)

	// InFlightRequests количество обрабатываемых HTTP запросов
	InFlightRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentiment_edge_in_flight_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)

	// CacheWrites успешные записи результатов в кэш
	CacheWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentiment_edge_cache_writes_total",
			Help: "Total number of results stored in the cache",
		},
	)

	// CacheErrors неудачные записи в кэш
	CacheErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentiment_edge_cache_errors_total",
			Help: "Total number of failed cache writes",
		},
	)

	// ActiveGoroutines количество активных горутин
	ActiveGoroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentiment_edge_active_goroutines",
			Help: "Number of active goroutines",
		},
	)
)

// ObserveInference обновляет метрики успешного вызова модели
func ObserveInference(mode string, seconds float64, labels []string, slow bool) {
	InferenceLatency.WithLabelValues(mode).Observe(seconds)
	for _, label := range labels {
		TextsClassified.WithLabelValues(label).Inc()
	}
	if slow {
		SlowInferences.Inc()
	}
}
