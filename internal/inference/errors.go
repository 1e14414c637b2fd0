package inference

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady модель еще загружается или не смогла загрузиться
	ErrNotReady = errors.New("model not loaded")
	// ErrAlreadyLoaded повторный вызов Load
	ErrAlreadyLoaded = errors.New("model load already attempted")
	// ErrEmptyBatch пакет без текстов
	ErrEmptyBatch = errors.New("empty batch")
	// ErrPoolStopped пул воркеров остановлен
	ErrPoolStopped = errors.New("inference pool stopped")
)

// LoadError ошибка загрузки или прогрева модели
type LoadError struct {
	Stage string
	Model string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("model %s failed at %s: %v", e.Model, e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// InferenceError ошибка модели во время обработки запроса
type InferenceError struct {
	BatchSize int
	Err       error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed for %d text(s): %v", e.BatchSize, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}
