package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edge-sentiment/internal/health"
	"edge-sentiment/internal/inference"
	"edge-sentiment/internal/models"
	"edge-sentiment/internal/stats"
	"edge-sentiment/internal/testutil"
)

type testEnv struct {
	model   *testutil.MockModel
	agg     *stats.Aggregator
	handler *Handler
	router  http.Handler
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRuntime(loader inference.Loader) *inference.Runtime {
	return inference.NewRuntime(inference.Config{
		Model:   inference.LoadOptions{Name: "test-model", Device: -1},
		Workers: 2,
	}, loader, quietLogger())
}

func newEnv(t *testing.T, model *testutil.MockModel, store ResultStore) *testEnv {
	t.Helper()

	rt := newRuntime(testutil.LoaderFor(model))
	require.NoError(t, rt.Load(context.Background()))
	t.Cleanup(rt.Close)

	return newEnvWithRuntime(rt, model, store)
}

func newEnvWithRuntime(rt Classifier, model *testutil.MockModel, store ResultStore) *testEnv {
	agg := stats.NewAggregator()
	reporter := health.NewReporter(rt, agg, "test-model")
	h := NewHandler(rt, agg, reporter, Options{Store: store, Logger: quietLogger()})

	return &testEnv{
		model:   model,
		agg:     agg,
		handler: h,
		router:  NewRouter(h, RouterOptions{CORSOrigins: []string{"*"}, Logger: quietLogger()}),
	}
}

func (e *testEnv) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestAnalyzeHandler(t *testing.T) {
	env := newEnv(t, &testutil.MockModel{}, nil)

	w := env.do(http.MethodPost, "/analyze", map[string]string{"text": "The room was absolutely wonderful!"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	resp := decode[models.SentimentResponse](t, w)
	assert.Equal(t, "positive", resp.Sentiment)
	assert.Equal(t, "POSITIVE", resp.Label)
	assert.Greater(t, resp.Score, 0.9)
	assert.Equal(t, models.Source, resp.Source)
	assert.GreaterOrEqual(t, resp.LatencyMs, int64(0))
	assert.Nil(t, resp.Context)
	assert.False(t, resp.Timestamp.IsZero())

	snap := env.agg.Snapshot()
	assert.Equal(t, int64(1), snap.TotalRequests)
}

func TestAnalyzeHandler_EchoesContext(t *testing.T) {
	env := newEnv(t, &testutil.MockModel{}, nil)

	w := env.do(http.MethodPost, "/analyze", `{"text":"bad coffee","context":"room-214"}`)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[models.SentimentResponse](t, w)
	assert.Equal(t, "negative", resp.Sentiment)
	require.NotNil(t, resp.Context)
	assert.Equal(t, "room-214", *resp.Context)
}

func TestAnalyzeHandler_NullContextSerialized(t *testing.T) {
	env := newEnv(t, &testutil.MockModel{}, nil)

	w := env.do(http.MethodPost, "/analyze", `{"text":"fine"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Equal(t, "null", string(raw["context"]))
}

func TestAnalyzeHandler_TextLength(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		status int
	}{
		{"empty", "", http.StatusUnprocessableEntity},
		{"single char", "a", http.StatusOK},
		{"max length", strings.Repeat("a", MaxTextLength), http.StatusOK},
		{"max length multibyte", strings.Repeat("ж", MaxTextLength), http.StatusOK},
		{"too long", strings.Repeat("a", MaxTextLength+1), http.StatusUnprocessableEntity},
	}

	model := &testutil.MockModel{}
	env := newEnv(t, model, nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := model.Calls()
			w := env.do(http.MethodPost, "/analyze", map[string]string{"text": tt.text})
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.status != http.StatusOK {
				assert.Equal(t, before, model.Calls(), "rejected request must not reach the model")
				resp := decode[models.ErrorResponse](t, w)
				assert.Equal(t, "Validation error", resp.Error)
			}
		})
	}
}

func TestAnalyzeHandler_InvalidJSON(t *testing.T) {
	env := newEnv(t, &testutil.MockModel{}, nil)

	w := env.do(http.MethodPost, "/analyze", `{"text":`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = env.do(http.MethodPost, "/analyze", `{"text": 42}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAnalyzeHandler_ModelNotReady(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	model := &testutil.MockModel{}
	rt := newRuntime(testutil.BlockingLoader(model, started, release))
	env := newEnvWithRuntime(rt, model, nil)

	done := make(chan error, 1)
	go func() { done <- rt.Load(context.Background()) }()
	<-started

	w := env.do(http.MethodPost, "/analyze", map[string]string{"text": "hello"})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decode[models.ErrorResponse](t, w)
	assert.Equal(t, "Model not loaded", resp.Error)
	assert.Equal(t, "loading", resp.Detail)

	w = env.do(http.MethodPost, "/analyze/batch", map[string][]string{"texts": {"a", "b"}})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	h := decode[models.HealthResponse](t, env.do(http.MethodGet, "/health", nil))
	assert.Equal(t, health.StatusUnhealthy, h.Status)

	close(release)
	require.NoError(t, <-done)
	t.Cleanup(rt.Close)

	w = env.do(http.MethodPost, "/analyze", map[string]string{"text": "hello"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), env.agg.Snapshot().TotalRequests, "503 responses are not counted")
}

func TestAnalyzeHandler_LoadFailed(t *testing.T) {
	rt := newRuntime(func(ctx context.Context, opts inference.LoadOptions) (inference.Model, error) {
		return nil, errors.New("no weights")
	})
	require.Error(t, rt.Load(context.Background()))
	env := newEnvWithRuntime(rt, nil, nil)

	w := env.do(http.MethodPost, "/analyze", map[string]string{"text": "hello"})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "failed", decode[models.ErrorResponse](t, w).Detail)

	h := decode[models.HealthResponse](t, env.do(http.MethodGet, "/health", nil))
	assert.Equal(t, health.StatusUnhealthy, h.Status)
}

func TestAnalyzeHandler_InferenceFailure(t *testing.T) {
	var mu sync.Mutex
	failing := false
	model := &testutil.MockModel{
		PredictFunc: func(ctx context.Context, texts []string) ([]inference.Prediction, error) {
			mu.Lock()
			defer mu.Unlock()
			if failing {
				return nil, errors.New("accelerator reset")
			}
			return []inference.Prediction{{Label: "POSITIVE", Score: 0.9}}, nil
		},
	}
	env := newEnv(t, model, nil)

	mu.Lock()
	failing = true
	mu.Unlock()

	w := env.do(http.MethodPost, "/analyze", map[string]string{"text": "hello"})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decode[models.ErrorResponse](t, w)
	assert.Equal(t, "Sentiment analysis failed", resp.Error)
	assert.Contains(t, resp.Detail, "accelerator reset")

	assert.Zero(t, env.agg.Snapshot().TotalRequests, "failed requests are not counted")

	h := decode[models.HealthResponse](t, env.do(http.MethodGet, "/health", nil))
	assert.Equal(t, health.StatusHealthy, h.Status)
}

func TestBatchAnalyzeHandler(t *testing.T) {
	model := &testutil.MockModel{Delay: 20 * time.Millisecond}
	env := newEnv(t, model, nil)
	texts := []string{"great pool", "bad wifi", "friendly staff", "bad parking"}

	w := env.do(http.MethodPost, "/analyze/batch", map[string][]string{"texts": texts})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[models.BatchSentimentResponse](t, w)
	assert.Equal(t, len(texts), resp.Count)
	assert.Equal(t, models.Source, resp.Source)
	assert.GreaterOrEqual(t, resp.TotalLatencyMs, int64(20))
	require.Len(t, resp.Results, len(texts))

	wantSentiments := []string{"positive", "negative", "positive", "negative"}
	for i, item := range resp.Results {
		assert.Equal(t, texts[i], item.Text)
		assert.Equal(t, wantSentiments[i], item.Sentiment)
		assert.Equal(t, resp.TotalLatencyMs/int64(len(texts)), item.LatencyMs)
	}

	assert.Equal(t, 2, model.Calls(), "warm-up plus exactly one batched inference")
	assert.Equal(t, texts, model.LastBatch())

	snap := env.agg.Snapshot()
	assert.Equal(t, int64(len(texts)), snap.TotalRequests)
	assert.Equal(t, resp.TotalLatencyMs, snap.TotalLatencyMs, "batch latency is recorded once, not per text")
}

func TestBatchAnalyzeHandler_Size(t *testing.T) {
	makeTexts := func(n int) []string {
		texts := make([]string, n)
		for i := range texts {
			texts[i] = "nice"
		}
		return texts
	}

	tests := []struct {
		name   string
		texts  []string
		status int
	}{
		{"empty", []string{}, http.StatusUnprocessableEntity},
		{"one", makeTexts(1), http.StatusOK},
		{"max", makeTexts(MaxBatchSize), http.StatusOK},
		{"too many", makeTexts(MaxBatchSize + 1), http.StatusUnprocessableEntity},
		{"empty item", []string{"ok", ""}, http.StatusUnprocessableEntity},
		{"item too long", []string{"ok", strings.Repeat("x", MaxTextLength+1)}, http.StatusUnprocessableEntity},
	}

	env := newEnv(t, &testutil.MockModel{}, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/analyze/batch", map[string][]string{"texts": tt.texts})
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.status == http.StatusOK {
				assert.Equal(t, len(tt.texts), decode[models.BatchSentimentResponse](t, w).Count)
			}
		})
	}

	w := env.do(http.MethodPost, "/analyze/batch", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "missing texts field")
}

func TestHealthAndMetricsHandlers(t *testing.T) {
	env := newEnv(t, &testutil.MockModel{}, nil)

	h := decode[models.HealthResponse](t, env.do(http.MethodGet, "/health", nil))
	assert.Equal(t, health.StatusHealthy, h.Status)
	assert.Equal(t, models.ServiceName, h.Service)
	assert.Equal(t, "test-model", h.Model)
	assert.Zero(t, h.TotalRequests)
	assert.Zero(t, h.AvgLatencyMs)

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/analyze", map[string]string{"text": "good"}).Code)
	}

	w := env.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var raw map[string]float64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Equal(t, 3.0, raw["sentiment_service_requests_total"])
	assert.Equal(t, 1.0, raw["sentiment_service_status"])
	assert.Contains(t, raw, "sentiment_service_uptime_seconds")
	assert.Contains(t, raw, "sentiment_service_latency_avg_ms")
	assert.Contains(t, raw, "sentiment_service_latency_total_ms")

	h = decode[models.HealthResponse](t, env.do(http.MethodGet, "/health", nil))
	assert.Equal(t, int64(3), h.TotalRequests)
}

func TestStatsHandler(t *testing.T) {
	env := newEnv(t, &testutil.MockModel{}, nil)
	env.do(http.MethodPost, "/analyze", map[string]string{"text": "good"})

	s := decode[models.StatsResponse](t, env.do(http.MethodGet, "/stats", nil))
	assert.Equal(t, int64(1), s.TotalRequests)
	assert.Equal(t, "ready", s.ModelState)
	assert.Equal(t, 2, s.InferenceWorkers)
	assert.Equal(t, stats.WindowSize, s.WindowSize)
}

func TestPrometheusEndpoint(t *testing.T) {
	env := newEnv(t, &testutil.MockModel{}, nil)
	env.do(http.MethodPost, "/analyze", map[string]string{"text": "good"})

	w := env.do(http.MethodGet, "/prometheus", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sentiment_edge_requests_total")
}

func TestMethodNotAllowed(t *testing.T) {
	env := newEnv(t, &testutil.MockModel{}, nil)

	assert.Equal(t, http.StatusMethodNotAllowed, env.do(http.MethodGet, "/analyze", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/nope", nil).Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newEnv(t, &testutil.MockModel{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/analyze", nil)
	req.Header.Set("Origin", "http://frontdesk.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://frontdesk.local", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestCORS_RestrictedOrigins(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	handler := corsMiddleware([]string{"http://frontdesk.local"})(ok)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://elsewhere.example")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDPropagated(t *testing.T) {
	env := newEnv(t, &testutil.MockModel{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
}

// panicClassifier готовый классификатор, который паникует при вызове
type panicClassifier struct{}

func (panicClassifier) IsReady() bool { return true }
func (panicClassifier) State() inference.State { return inference.StateReady }
func (panicClassifier) PoolStats() (workers int, queued int64) { return 1, 0 }
func (panicClassifier) Classify(ctx context.Context, text string) (inference.Result, error) {
	panic("unexpected nil tensor")
}
func (panicClassifier) ClassifyBatch(ctx context.Context, texts []string) ([]inference.Result, error) {
	panic("unexpected nil tensor")
}

func TestRecoveryMiddleware(t *testing.T) {
	env := newEnvWithRuntime(panicClassifier{}, nil, nil)

	w := env.do(http.MethodPost, "/analyze", map[string]string{"text": "hello"})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decode[models.ErrorResponse](t, w)
	assert.Equal(t, "Internal server error", resp.Error)

	// сервис продолжает отвечать после паники
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health", nil).Code)
}

type memoryStore struct {
	mu      sync.Mutex
	records []models.ResultRecord
	err     error
}

func (s *memoryStore) CacheResults(ctx context.Context, records []models.ResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(records, s.records...)
	return nil
}

func (s *memoryStore) LatestResults(ctx context.Context, count int64) ([]models.ResultRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if int64(len(s.records)) < count {
		count = int64(len(s.records))
	}
	return s.records[:count], nil
}

func TestLatestResultsHandler(t *testing.T) {
	store := &memoryStore{}
	env := newEnv(t, &testutil.MockModel{}, store)

	env.do(http.MethodPost, "/analyze", `{"text":"good breakfast","context":"review-1"}`)
	env.do(http.MethodPost, "/analyze/batch", map[string][]string{"texts": {"bad view", "nice spa"}})

	w := env.do(http.MethodGet, "/results/latest?count=2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	records := decode[[]models.ResultRecord](t, w)
	require.Len(t, records, 2)
	assert.Equal(t, "bad view", records[0].Text)
	assert.Equal(t, modeBatch, records[0].Mode)

	all := decode[[]models.ResultRecord](t, env.do(http.MethodGet, "/results/latest", nil))
	require.Len(t, all, 3)
	assert.Equal(t, modeSingle, all[2].Mode)
	require.NotNil(t, all[2].Context)
	assert.Equal(t, "review-1", *all[2].Context)
}

func TestLatestResultsHandler_StoreErrors(t *testing.T) {
	store := &memoryStore{err: errors.New("connection refused")}
	env := newEnv(t, &testutil.MockModel{}, store)

	// ошибка кэша не влияет на ответ анализа
	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/analyze", map[string]string{"text": "ok"}).Code)
	assert.Equal(t, http.StatusInternalServerError, env.do(http.MethodGet, "/results/latest", nil).Code)
}

func TestLatestResultsHandler_NoStore(t *testing.T) {
	env := newEnv(t, &testutil.MockModel{}, nil)

	w := env.do(http.MethodGet, "/results/latest", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestConcurrentRequests(t *testing.T) {
	env := newEnv(t, &testutil.MockModel{Delay: time.Millisecond}, nil)

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := env.do(http.MethodPost, "/analyze", map[string]string{"text": "good"})
			assert.Equal(t, http.StatusOK, w.Code)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(n), env.agg.Snapshot().TotalRequests)
}
