package handlers

import (
	"fmt"
	"unicode/utf8"

	"edge-sentiment/internal/models"
)

const (
	// MinTextLength минимальная длина текста в символах
	MinTextLength = 1
	// MaxTextLength максимальная длина текста в символах
	MaxTextLength = 5000
	// MinBatchSize минимальный размер пакета
	MinBatchSize = 1
	// MaxBatchSize максимальный размер пакета
	MaxBatchSize = 100
)

// ValidationError ошибка клиента во входных данных
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func validateText(field, text string) error {
	n := utf8.RuneCountInString(text)
	if n < MinTextLength {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be at least %d character", MinTextLength)}
	}
	if n > MaxTextLength {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d characters, got %d", MaxTextLength, n)}
	}
	return nil
}

func validateSingle(req models.SentimentRequest) error {
	return validateText("text", req.Text)
}

func validateBatch(req models.BatchSentimentRequest) error {
	n := len(req.Texts)
	if n < MinBatchSize || n > MaxBatchSize {
		return &ValidationError{
			Field:   "texts",
			Message: fmt.Sprintf("must contain %d to %d items, got %d", MinBatchSize, MaxBatchSize, n),
		}
	}
	for i, text := range req.Texts {
		if err := validateText(fmt.Sprintf("texts[%d]", i), text); err != nil {
			return err
		}
	}
	return nil
}
