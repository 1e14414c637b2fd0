// Package handlers содержит HTTP обработчики API анализа тональности
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"

	"edge-sentiment/internal/health"
	"edge-sentiment/internal/inference"
	"edge-sentiment/internal/metrics"
	"edge-sentiment/internal/models"
	"edge-sentiment/internal/stats"
)

const (
	// DefaultSlowThreshold порог медленного вызова модели
	DefaultSlowThreshold = 100 * time.Millisecond

	maxBodyBytes       = 4 << 20
	storeTimeout       = 2 * time.Second
	defaultLatestCount = 50

	modeSingle = "single"
	modeBatch  = "batch"
)

// Classifier среда выполнения модели, которую использует API
type Classifier interface {
	IsReady() bool
	State() inference.State
	PoolStats() (workers int, queued int64)
	Classify(ctx context.Context, text string) (inference.Result, error)
	ClassifyBatch(ctx context.Context, texts []string) ([]inference.Result, error)
}

// ResultStore хранилище последних результатов
type ResultStore interface {
	CacheResults(ctx context.Context, records []models.ResultRecord) error
	LatestResults(ctx context.Context, count int64) ([]models.ResultRecord, error)
}

// Options дополнительные параметры обработчика
type Options struct {
	SlowThreshold time.Duration
	Store         ResultStore
	Logger        *slog.Logger
}

// Handler содержит зависимости для HTTP обработчиков.
// Собственного состояния не имеет.
type Handler struct {
	runtime       Classifier
	stats         *stats.Aggregator
	reporter      *health.Reporter
	store         ResultStore
	logger        *slog.Logger
	slowThreshold time.Duration
	now           func() time.Time
}

// NewHandler создает новый обработчик
func NewHandler(runtime Classifier, agg *stats.Aggregator, reporter *health.Reporter, opts Options) *Handler {
	if opts.SlowThreshold <= 0 {
		opts.SlowThreshold = DefaultSlowThreshold
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handler{
		runtime:       runtime,
		stats:         agg,
		reporter:      reporter,
		store:         opts.Store,
		logger:        opts.Logger,
		slowThreshold: opts.SlowThreshold,
		now:           time.Now,
	}
}

// AnalyzeHandler обрабатывает POST /analyze - анализ одного текста
func (h *Handler) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/analyze"
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(endpoint, r.Method))
	defer timer.ObserveDuration()

	var req models.SentimentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, endpoint, modeSingle, err)
		return
	}
	if err := validateSingle(req); err != nil {
		h.fail(w, r, endpoint, modeSingle, err)
		return
	}
	if !h.runtime.IsReady() {
		h.fail(w, r, endpoint, modeSingle, inference.ErrNotReady)
		return
	}

	start := time.Now()
	result, err := h.runtime.Classify(r.Context(), req.Text)
	latency := time.Since(start)
	if err != nil {
		h.fail(w, r, endpoint, modeSingle, err)
		return
	}

	latencyMs := latency.Milliseconds()
	h.stats.Record(1, latencyMs)

	slow := latency > h.slowThreshold
	metrics.ObserveInference(modeSingle, latency.Seconds(), []string{result.Label}, slow)
	if slow {
		h.logger.Warn("slow inference",
			"latency_ms", latencyMs,
			"text_length", utf8.RuneCountInString(req.Text),
			"request_id", RequestID(r.Context()),
		)
	}

	now := h.now()
	resp := models.SentimentResponse{
		Sentiment: result.Label,
		Score:     result.Score,
		Label:     result.RawLabel,
		Source:    models.Source,
		LatencyMs: latencyMs,
		Context:   req.Context,
		Timestamp: now,
	}

	h.storeResults(r.Context(), []models.ResultRecord{{
		Text:      req.Text,
		Sentiment: resp.Sentiment,
		Score:     resp.Score,
		Label:     resp.Label,
		Context:   req.Context,
		Mode:      modeSingle,
		LatencyMs: latencyMs,
		Timestamp: now,
	}})

	h.respondJSON(w, endpoint, r.Method, resp, http.StatusOK)
}

// BatchAnalyzeHandler обрабатывает POST /analyze/batch - пакетный анализ.
// Весь пакет классифицируется одним вызовом модели; задержка на текст -
// общая задержка, поделенная нацело на количество текстов.
func (h *Handler) BatchAnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/analyze/batch"
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(endpoint, r.Method))
	defer timer.ObserveDuration()

	var req models.BatchSentimentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, endpoint, modeBatch, err)
		return
	}
	if err := validateBatch(req); err != nil {
		h.fail(w, r, endpoint, modeBatch, err)
		return
	}
	if !h.runtime.IsReady() {
		h.fail(w, r, endpoint, modeBatch, inference.ErrNotReady)
		return
	}

	start := time.Now()
	results, err := h.runtime.ClassifyBatch(r.Context(), req.Texts)
	latency := time.Since(start)
	if err != nil {
		h.fail(w, r, endpoint, modeBatch, err)
		return
	}

	n := len(req.Texts)
	totalMs := latency.Milliseconds()
	h.stats.Record(n, totalMs)

	perText := totalMs / int64(n)
	slow := latency > h.slowThreshold

	now := h.now()
	items := make([]models.BatchItem, n)
	records := make([]models.ResultRecord, n)
	labels := make([]string, n)
	for i, res := range results {
		items[i] = models.BatchItem{
			Text:      req.Texts[i],
			Sentiment: res.Label,
			Score:     res.Score,
			Label:     res.RawLabel,
			LatencyMs: perText,
		}
		records[i] = models.ResultRecord{
			Text:      req.Texts[i],
			Sentiment: res.Label,
			Score:     res.Score,
			Label:     res.RawLabel,
			Mode:      modeBatch,
			LatencyMs: perText,
			Timestamp: now,
		}
		labels[i] = res.Label
	}

	metrics.ObserveInference(modeBatch, latency.Seconds(), labels, slow)
	h.logger.Info("batch analyzed",
		"count", n,
		"total_latency_ms", totalMs,
		"per_text_ms", perText,
		"request_id", RequestID(r.Context()),
	)
	if slow {
		h.logger.Warn("slow batch inference", "latency_ms", totalMs, "count", n)
	}

	h.storeResults(r.Context(), records)

	h.respondJSON(w, endpoint, r.Method, models.BatchSentimentResponse{
		Results:        items,
		Source:         models.Source,
		TotalLatencyMs: totalMs,
		Count:          n,
		Timestamp:      now,
	}, http.StatusOK)
}

// HealthHandler обрабатывает GET /health - проверка здоровья
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, "/health", r.Method, h.reporter.Health(), http.StatusOK)
}

// MetricsHandler обрабатывает GET /metrics - плоские метрики для сборщика
func (h *Handler) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, "/metrics", r.Method, h.reporter.Metrics(), http.StatusOK)
}

// StatsHandler обрабатывает GET /stats - расширенная статистика воркера
func (h *Handler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/stats"
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(endpoint, r.Method))
	defer timer.ObserveDuration()

	snap := h.stats.Snapshot()
	rolling := h.stats.Rolling()
	workers, queued := h.runtime.PoolStats()
	metrics.QueueDepth.Set(float64(queued))

	h.respondJSON(w, endpoint, r.Method, models.StatsResponse{
		UptimeSeconds:        snap.UptimeSeconds,
		TotalRequests:        snap.TotalRequests,
		TotalLatencyMs:       snap.TotalLatencyMs,
		AvgLatencyMs:         snap.AvgLatencyMs,
		RollingAvgLatencyMs:  rolling.AvgLatencyMs,
		RollingStdDevLatency: rolling.StdDevLatencyMs,
		WindowSize:           rolling.Size,
		ModelState:           h.runtime.State().String(),
		InferenceWorkers:     workers,
		QueueDepth:           queued,
	}, http.StatusOK)
}

// LatestResultsHandler возвращает последние результаты из кэша
func (h *Handler) LatestResultsHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/results/latest"
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(endpoint, r.Method))
	defer timer.ObserveDuration()

	count := int64(defaultLatestCount)
	if countStr := r.URL.Query().Get("count"); countStr != "" {
		if c, err := strconv.ParseInt(countStr, 10, 64); err == nil && c > 0 && c <= 1000 {
			count = c
		}
	}

	if h.store == nil {
		h.respondError(w, endpoint, r.Method, http.StatusServiceUnavailable, "Cache not available", "")
		return
	}

	records, err := h.store.LatestResults(r.Context(), count)
	if err != nil {
		h.logger.Error("failed to read latest results", "error", err)
		h.respondError(w, endpoint, r.Method, http.StatusInternalServerError, "Failed to get results", err.Error())
		return
	}

	h.respondJSON(w, endpoint, r.Method, records, http.StatusOK)
}

// fail переводит ошибку в HTTP ответ
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, endpoint, mode string, err error) {
	var validationErr *ValidationError
	var inferenceErr *inference.InferenceError

	switch {
	case errors.As(err, &validationErr):
		h.logger.Debug("request rejected", "endpoint", endpoint, "error", err)
		h.respondError(w, endpoint, r.Method, http.StatusUnprocessableEntity, "Validation error", err.Error())
	case errors.Is(err, inference.ErrNotReady):
		h.respondError(w, endpoint, r.Method, http.StatusServiceUnavailable, "Model not loaded", h.runtime.State().String())
	case errors.As(err, &inferenceErr):
		metrics.InferenceErrors.WithLabelValues(mode).Inc()
		h.logger.Error("sentiment analysis failed",
			"endpoint", endpoint,
			"batch_size", inferenceErr.BatchSize,
			"error", inferenceErr.Err,
			"request_id", RequestID(r.Context()),
		)
		h.respondError(w, endpoint, r.Method, http.StatusInternalServerError, "Sentiment analysis failed", inferenceErr.Err.Error())
	default:
		h.logger.Error("unhandled error",
			"endpoint", endpoint,
			"error", err,
			"request_id", RequestID(r.Context()),
		)
		h.respondError(w, endpoint, r.Method, http.StatusInternalServerError, "Internal server error", err.Error())
	}
}

// storeResults сохраняет результаты в кэш; ошибки кэша не влияют на ответ
func (h *Handler) storeResults(ctx context.Context, records []models.ResultRecord) {
	if h.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	if err := h.store.CacheResults(ctx, records); err != nil {
		metrics.CacheErrors.Inc()
		h.logger.Warn("failed to cache results", "error", err)
		return
	}
	metrics.CacheWrites.Add(float64(len(records)))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()}
	}
	return nil
}

// respondJSON отправляет JSON ответ
func (h *Handler) respondJSON(w http.ResponseWriter, endpoint, method string, data interface{}, status int) {
	writeJSON(w, data, status)
	metrics.RequestsTotal.WithLabelValues(endpoint, method, strconv.Itoa(status)).Inc()
}

// respondError отправляет ошибку в JSON формате
func (h *Handler) respondError(w http.ResponseWriter, endpoint, method string, status int, message, detail string) {
	h.respondJSON(w, endpoint, method, models.ErrorResponse{
		Error:     message,
		Detail:    detail,
		Timestamp: h.now(),
	}, status)
}

func writeJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
