package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"edge-sentiment/internal/metrics"
)

// State стадия жизненного цикла модели
type State int32

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var tracer = otel.Tracer("edge-sentiment/internal/inference")

// Result результат классификации одного текста
type Result struct {
	// Label метка в нижнем регистре (positive, negative)
	Label string
	// RawLabel метка в том виде, в котором ее вернула модель
	RawLabel string
	// Score уверенность в диапазоне [0, 1]
	Score float64
}

// Config параметры среды выполнения модели
type Config struct {
	Model   LoadOptions
	Workers int
}

// Runtime владеет единственным экземпляром модели и его состоянием.
// Переходы состояния выполняет только Load:
// Uninitialized -> Loading -> Ready | Failed. Failed - терминальное состояние.
type Runtime struct {
	cfg    Config
	loader Loader
	logger *slog.Logger

	state atomic.Int32

	// записываются в Load до публикации состояния
	model   Model
	pool    *Pool
	loadErr error
}

// NewRuntime создает среду выполнения в состоянии Uninitialized
func NewRuntime(cfg Config, loader Loader, logger *slog.Logger) *Runtime {
	if loader == nil {
		loader = DefaultLoader
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		cfg:    cfg,
		loader: loader,
		logger: logger.With("component", "model_runtime"),
	}
}

// Load загружает и прогревает модель. Вызывается один раз до приема трафика;
// ошибка фатальна, состояние становится Failed навсегда.
func (r *Runtime) Load(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateUninitialized), int32(StateLoading)) {
		return ErrAlreadyLoaded
	}

	opts := r.cfg.Model
	r.logger.Info("loading sentiment model",
		"model", opts.Name,
		"backend", opts.Backend,
		"device", deviceName(opts.Device),
	)
	start := time.Now()

	model, err := r.loader(ctx, opts)
	if err != nil {
		return r.fail("load", err)
	}
	r.logger.Info("model loaded", "load_ms", time.Since(start).Milliseconds())

	warmup, err := model.Predict(ctx, []string{WarmupText})
	if err == nil && len(warmup) != 1 {
		err = fmt.Errorf("warm-up returned %d predictions", len(warmup))
	}
	if err != nil {
		return r.fail("warmup", err)
	}
	r.logger.Info("model warm-up completed")

	r.model = model
	r.pool = NewPool(model, r.cfg.Workers)
	r.pool.Start()
	r.state.Store(int32(StateReady))

	metrics.ModelReady.Set(1)
	metrics.ModelLoadSeconds.Set(time.Since(start).Seconds())
	return nil
}

func (r *Runtime) fail(stage string, err error) error {
	loadErr := &LoadError{Stage: stage, Model: r.cfg.Model.Name, Err: err}
	r.loadErr = loadErr
	r.state.Store(int32(StateFailed))
	metrics.ModelReady.Set(0)
	r.logger.Error("failed to load model", "stage", stage, "error", err)
	return loadErr
}

// State возвращает текущее состояние модели
func (r *Runtime) State() State {
	return State(r.state.Load())
}

// IsReady сообщает, готова ли модель принимать запросы
func (r *Runtime) IsReady() bool {
	return r.State() == StateReady
}

// LoadErr возвращает ошибку загрузки, если состояние Failed
func (r *Runtime) LoadErr() error {
	if r.State() != StateFailed {
		return nil
	}
	return r.loadErr
}

// PoolStats возвращает размер пула воркеров и глубину очереди
func (r *Runtime) PoolStats() (workers int, queued int64) {
	if !r.IsReady() {
		return 0, 0
	}
	return r.pool.Size(), r.pool.QueueDepth()
}

// Classify классифицирует один текст
func (r *Runtime) Classify(ctx context.Context, text string) (Result, error) {
	results, err := r.ClassifyBatch(ctx, []string{text})
	if err != nil {
		return Result{}, err
	}
	return results[0], nil
}

// ClassifyBatch классифицирует пакет текстов одним вызовом модели.
// Порядок результатов совпадает с порядком текстов.
func (r *Runtime) ClassifyBatch(ctx context.Context, texts []string) ([]Result, error) {
	if !r.IsReady() {
		return nil, ErrNotReady
	}
	if len(texts) == 0 {
		return nil, ErrEmptyBatch
	}

	ctx, span := tracer.Start(ctx, "inference.predict", trace.WithAttributes(
		attribute.String("inference.model", r.cfg.Model.Name),
		attribute.Int("inference.batch_size", len(texts)),
	))
	defer span.End()

	predictions, err := r.pool.Do(ctx, texts)
	if err == nil && len(predictions) != len(texts) {
		err = fmt.Errorf("model returned %d predictions for %d texts", len(predictions), len(texts))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrPoolStopped) || (ctx.Err() != nil && errors.Is(err, ctx.Err())) {
			return nil, err
		}
		return nil, &InferenceError{BatchSize: len(texts), Err: err}
	}

	results := make([]Result, len(predictions))
	for i, p := range predictions {
		results[i] = newResult(p)
	}
	return results, nil
}

// Close останавливает пул воркеров
func (r *Runtime) Close() {
	if r.IsReady() {
		r.pool.Stop()
	}
}

func newResult(p Prediction) Result {
	score := p.Score
	switch {
	case math.IsNaN(score) || score < 0:
		score = 0
	case score > 1:
		score = 1
	}
	return Result{
		Label:    strings.ToLower(p.Label),
		RawLabel: p.Label,
		Score:    score,
	}
}

func deviceName(device int) string {
	if device < 0 {
		return "cpu"
	}
	return fmt.Sprintf("accelerator:%d", device)
}
