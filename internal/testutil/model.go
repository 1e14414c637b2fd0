// Package testutil содержит тестовые реализации модели
package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"edge-sentiment/internal/inference"
)

// MockModel модель для тестов со счетчиком вызовов Predict
type MockModel struct {
	PredictFunc func(ctx context.Context, texts []string) ([]inference.Prediction, error)
	// Delay имитирует длительность одного вызова модели
	Delay time.Duration

	mu        sync.Mutex
	CallCount int
	Batches   [][]string
}

// Predict записывает вызов и возвращает результат PredictFunc или метку по ключевым словам
func (m *MockModel) Predict(ctx context.Context, texts []string) ([]inference.Prediction, error) {
	m.mu.Lock()
	m.CallCount++
	m.Batches = append(m.Batches, append([]string(nil), texts...))
	m.mu.Unlock()

	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}
	if m.PredictFunc != nil {
		return m.PredictFunc(ctx, texts)
	}

	out := make([]inference.Prediction, len(texts))
	for i, t := range texts {
		if strings.Contains(strings.ToLower(t), "bad") {
			out[i] = inference.Prediction{Label: "NEGATIVE", Score: 0.97}
		} else {
			out[i] = inference.Prediction{Label: "POSITIVE", Score: 0.99}
		}
	}
	return out, nil
}

// Calls возвращает число вызовов Predict
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// LastBatch возвращает тексты последнего вызова
func (m *MockModel) LastBatch() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Batches) == 0 {
		return nil
	}
	return m.Batches[len(m.Batches)-1]
}

// LoaderFor возвращает загрузчик, который отдает заданную модель
func LoaderFor(m inference.Model) inference.Loader {
	return func(ctx context.Context, opts inference.LoadOptions) (inference.Model, error) {
		return m, nil
	}
}

// BlockingLoader загрузчик, который ждет сигнала release; started закрывается при входе
func BlockingLoader(m inference.Model, started chan<- struct{}, release <-chan struct{}) inference.Loader {
	return func(ctx context.Context, opts inference.LoadOptions) (inference.Model, error) {
		close(started)
		select {
		case <-release:
			return m, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
