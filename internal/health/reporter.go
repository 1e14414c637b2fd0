// Package health формирует представления здоровья и метрик сервиса.
// Reporter только читает состояние модели и счетчики.
package health

import (
	"math"

	"edge-sentiment/internal/models"
	"edge-sentiment/internal/stats"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// ReadinessChecker источник признака готовности модели
type ReadinessChecker interface {
	IsReady() bool
}

// SnapshotSource источник счетчиков запросов
type SnapshotSource interface {
	Snapshot() stats.Snapshot
}

// Reporter строит ответы /health и /metrics
type Reporter struct {
	readiness ReadinessChecker
	stats     SnapshotSource
	model     string
}

// NewReporter создает Reporter
func NewReporter(readiness ReadinessChecker, source SnapshotSource, model string) *Reporter {
	return &Reporter{
		readiness: readiness,
		stats:     source,
		model:     model,
	}
}

// Health возвращает статус здоровья; никогда не завершается ошибкой
func (r *Reporter) Health() models.HealthResponse {
	snap := r.stats.Snapshot()

	status := StatusUnhealthy
	if r.readiness.IsReady() {
		status = StatusHealthy
	}

	return models.HealthResponse{
		Status:        status,
		Service:       models.ServiceName,
		Model:         r.model,
		UptimeSeconds: snap.UptimeSeconds,
		TotalRequests: snap.TotalRequests,
		AvgLatencyMs:  round2(snap.AvgLatencyMs),
	}
}

// Metrics возвращает плоский числовой срез метрик с флагом готовности
func (r *Reporter) Metrics() models.MetricsResponse {
	snap := r.stats.Snapshot()

	ready := 0
	if r.readiness.IsReady() {
		ready = 1
	}

	return models.MetricsResponse{
		UptimeSeconds:  snap.UptimeSeconds,
		RequestsTotal:  snap.TotalRequests,
		LatencyAvgMs:   round2(snap.AvgLatencyMs),
		LatencyTotalMs: snap.TotalLatencyMs,
		Status:         ready,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
