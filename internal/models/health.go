package models

// HealthResponse представляет статус здоровья сервиса
type HealthResponse struct {
	Status        string  `json:"status"`
	Service       string  `json:"service"`
	Model         string  `json:"model"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	TotalRequests int64   `json:"total_requests"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
}

// MetricsResponse плоское числовое представление метрик для сборщиков мониторинга
type MetricsResponse struct {
	UptimeSeconds  int64   `json:"sentiment_service_uptime_seconds"`
	RequestsTotal  int64   `json:"sentiment_service_requests_total"`
	LatencyAvgMs   float64 `json:"sentiment_service_latency_avg_ms"`
	LatencyTotalMs int64   `json:"sentiment_service_latency_total_ms"`
	Status         int     `json:"sentiment_service_status"`
}

// StatsResponse содержит расширенную статистику воркера
type StatsResponse struct {
	UptimeSeconds        int64   `json:"uptime_seconds"`
	TotalRequests        int64   `json:"total_requests"`
	TotalLatencyMs       int64   `json:"total_latency_ms"`
	AvgLatencyMs         float64 `json:"avg_latency_ms"`
	RollingAvgLatencyMs  float64 `json:"rolling_avg_latency_ms"`
	RollingStdDevLatency float64 `json:"rolling_stddev_latency_ms"`
	WindowSize           int     `json:"window_size"`
	ModelState           string  `json:"model_state"`
	InferenceWorkers     int     `json:"inference_workers"`
	QueueDepth           int64   `json:"queue_depth"`
}
