// Package models содержит структуры запросов и ответов API анализа тональности
package models

import "time"

// Source метка происхождения результата: инференс выполнен на локальном устройстве
const Source = "greengrass-edge"

// ServiceName имя сервиса в ответе /health
const ServiceName = "sentiment"

// SentimentRequest запрос на анализ одного текста
type SentimentRequest struct {
	Text    string  `json:"text"`
	Context *string `json:"context,omitempty"`
}

// BatchSentimentRequest запрос на пакетный анализ
type BatchSentimentRequest struct {
	Texts []string `json:"texts"`
}

// SentimentResponse результат анализа одного текста
type SentimentResponse struct {
	Sentiment string    `json:"sentiment"`
	Score     float64   `json:"score"`
	Label     string    `json:"label"`
	Source    string    `json:"source"`
	LatencyMs int64     `json:"latency_ms"`
	Context   *string   `json:"context"`
	Timestamp time.Time `json:"timestamp"`
}

// BatchItem результат для одного текста из пакета.
// LatencyMs - общая длительность пакета, поделенная на количество текстов.
type BatchItem struct {
	Text      string  `json:"text"`
	Sentiment string  `json:"sentiment"`
	Score     float64 `json:"score"`
	Label     string  `json:"label"`
	LatencyMs int64   `json:"latency_ms"`
}

// BatchSentimentResponse результат пакетного анализа
type BatchSentimentResponse struct {
	Results        []BatchItem `json:"results"`
	Source         string      `json:"source"`
	TotalLatencyMs int64       `json:"total_latency_ms"`
	Count          int         `json:"count"`
	Timestamp      time.Time   `json:"timestamp"`
}

// ResultRecord запись о результате, сохраняемая в кэше последних результатов
type ResultRecord struct {
	Text      string    `json:"text"`
	Sentiment string    `json:"sentiment"`
	Score     float64   `json:"score"`
	Label     string    `json:"label"`
	Context   *string   `json:"context,omitempty"`
	Mode      string    `json:"mode"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse тело ответа с ошибкой
type ErrorResponse struct {
	Error     string    `json:"error"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
