// Package inference владеет моделью классификации тональности и ее жизненным циклом:
// загрузка, прогрев, готовность и выполнение запросов на пуле воркеров.
package inference

import (
	"context"
	"fmt"
	"time"
)

const (
	// BackendLexicon встроенная лексическая модель
	BackendLexicon = "lexicon"
	// BackendHTTP внешний сервер модели с протоколом text-classification
	BackendHTTP = "http"

	// WarmupText фиксированная фраза для прогревочного инференса
	WarmupText = "This is a test sentence for warming up the model."
)

// Prediction сырой ответ модели для одного текста
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Model классификатор тональности.
// Predict обрабатывает весь пакет за один вызов и возвращает
// предсказания в порядке входных текстов.
type Model interface {
	Predict(ctx context.Context, texts []string) ([]Prediction, error)
}

// LoadOptions параметры загрузки модели
type LoadOptions struct {
	Name    string
	Backend string
	URL     string
	// Device -1 означает CPU, значения >= 0 - индекс ускорителя
	Device  int
	Timeout time.Duration
}

// Loader создает модель по параметрам загрузки
type Loader func(ctx context.Context, opts LoadOptions) (Model, error)

// DefaultLoader выбирает реализацию модели по имени бэкенда
func DefaultLoader(ctx context.Context, opts LoadOptions) (Model, error) {
	switch opts.Backend {
	case BackendLexicon, "":
		return NewLexiconModel(), nil
	case BackendHTTP:
		return NewRemoteModel(opts)
	default:
		return nil, fmt.Errorf("unknown model backend %q", opts.Backend)
	}
}
