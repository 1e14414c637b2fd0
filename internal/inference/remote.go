package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	predictPath          = "/predict"
	defaultRemoteTimeout = 30 * time.Second
	maxErrorBody         = 512
)

// RemoteModel модель, размещенная в отдельном процессе на том же устройстве
// (например, сервер text-classification). Пакет отправляется одним запросом.
type RemoteModel struct {
	baseURL string
	name    string
	device  int
	client  *http.Client
}

type predictRequest struct {
	Inputs []string       `json:"inputs"`
	Model  string         `json:"model,omitempty"`
	Params map[string]any `json:"parameters,omitempty"`
}

// NewRemoteModel создает клиент внешнего сервера модели
func NewRemoteModel(opts LoadOptions) (*RemoteModel, error) {
	if opts.URL == "" {
		return nil, errors.New("model url is required for http backend")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}

	return &RemoteModel{
		baseURL: strings.TrimRight(opts.URL, "/"),
		name:    opts.Name,
		device:  opts.Device,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

// Predict отправляет пакет текстов одним запросом и выбирает метку с максимальной оценкой
func (m *RemoteModel) Predict(ctx context.Context, texts []string) ([]Prediction, error) {
	body, err := json.Marshal(predictRequest{
		Inputs: texts,
		Model:  m.name,
		Params: map[string]any{"device": m.device},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+predictPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model server request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("model server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var scored [][]Prediction
	if err := json.NewDecoder(resp.Body).Decode(&scored); err != nil {
		return nil, fmt.Errorf("failed to decode model server response: %w", err)
	}
	if len(scored) != len(texts) {
		return nil, fmt.Errorf("model server returned %d results for %d inputs", len(scored), len(texts))
	}

	predictions := make([]Prediction, len(scored))
	for i, candidates := range scored {
		if len(candidates) == 0 {
			return nil, fmt.Errorf("model server returned no labels for input %d", i)
		}
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.Score > best.Score {
				best = c
			}
		}
		predictions[i] = best
	}

	return predictions, nil
}
