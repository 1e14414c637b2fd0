package inference

import (
	"context"
	"math"
	"strings"
	"unicode"
)

const (
	// LabelPositive метка положительной тональности
	LabelPositive = "POSITIVE"
	// LabelNegative метка отрицательной тональности
	LabelNegative = "NEGATIVE"

	negationScope    = 3
	intensifierBoost = 1.5
	maxExclamations  = 3
)

var positiveWords = map[string]float64{
	"good": 2, "great": 3, "excellent": 3.5, "wonderful": 3, "amazing": 3.5,
	"fantastic": 3.5, "awesome": 3, "perfect": 3.5, "lovely": 2.5, "love": 3,
	"loved": 3, "nice": 2, "clean": 2, "comfortable": 2, "friendly": 2.5,
	"helpful": 2.5, "delicious": 3, "beautiful": 3, "pleasant": 2, "spacious": 1.5,
	"quiet": 1.5, "enjoyed": 2.5, "enjoy": 2, "happy": 2.5, "recommend": 2,
	"best": 3, "superb": 3.5, "outstanding": 3.5, "welcoming": 2.5, "cozy": 2,
	"relaxing": 2, "fresh": 1.5, "attentive": 2, "professional": 1.5, "efficient": 1.5,
	"impressed": 2.5, "stunning": 3, "gorgeous": 3, "pleased": 2, "satisfied": 2,
	"thank": 1.5, "thanks": 1.5, "fine": 1, "well": 1, "smooth": 1.5,
	"courteous": 2, "exceptional": 3.5, "spotless": 3, "charming": 2.5, "delightful": 3,
}

var negativeWords = map[string]float64{
	"bad": 2.5, "terrible": 3.5, "awful": 3.5, "horrible": 3.5, "poor": 2.5,
	"dirty": 3, "rude": 3, "noisy": 2, "broken": 2.5, "disappointing": 3,
	"disappointed": 3, "worst": 3.5, "hate": 3, "hated": 3, "smelly": 2.5,
	"slow": 1.5, "cold": 1, "uncomfortable": 2.5, "unfriendly": 2.5, "unhelpful": 2.5,
	"expensive": 1.5, "overpriced": 2.5, "small": 1, "cramped": 2, "stained": 2.5,
	"moldy": 3, "filthy": 3.5, "disgusting": 3.5, "annoying": 2, "unacceptable": 3,
	"complaint": 2, "problem": 1.5, "issue": 1, "leaking": 2, "late": 1,
	"waited": 1, "mediocre": 1.5, "bland": 1.5, "angry": 2.5, "upset": 2.5,
	"never": 0.5, "worse": 2.5, "unpleasant": 2.5, "refund": 1.5, "bugs": 3,
	"cockroach": 3.5, "ignored": 2.5, "unclean": 3, "shabby": 2, "disaster": 3.5,
}

var negators = map[string]bool{
	"not": true, "no": true, "never": true, "none": true, "nothing": true,
	"isn't": true, "wasn't": true, "aren't": true, "weren't": true, "don't": true,
	"doesn't": true, "didn't": true, "won't": true, "can't": true, "couldn't": true,
	"shouldn't": true, "wouldn't": true, "hardly": true, "barely": true, "without": true,
}

var intensifiers = map[string]bool{
	"very": true, "really": true, "absolutely": true, "extremely": true, "so": true,
	"incredibly": true, "truly": true, "totally": true, "super": true, "highly": true,
	"completely": true, "utterly": true, "exceptionally": true, "remarkably": true,
}

// LexiconModel встроенная модель на основе словаря полярности.
// Учитывает отрицания, усилители и восклицательные знаки;
// вероятность положительного класса - логистическая функция от суммы весов.
type LexiconModel struct{}

// NewLexiconModel создает лексическую модель
func NewLexiconModel() *LexiconModel {
	return &LexiconModel{}
}

// Predict классифицирует пакет текстов за один проход
func (m *LexiconModel) Predict(ctx context.Context, texts []string) ([]Prediction, error) {
	predictions := make([]Prediction, len(texts))
	for i, text := range texts {
		predictions[i] = m.predictOne(text)
	}
	return predictions, nil
}

func (m *LexiconModel) predictOne(text string) Prediction {
	p := 1 / (1 + math.Exp(-polarity(text)))
	if p >= 0.5 {
		return Prediction{Label: LabelPositive, Score: p}
	}
	return Prediction{Label: LabelNegative, Score: 1 - p}
}

// polarity возвращает суммарный вес тональности текста
func polarity(text string) float64 {
	tokens := tokenize(text)

	var sum float64
	negateLeft := 0
	boost := 1.0

	for _, tok := range tokens {
		if negators[tok] {
			negateLeft = negationScope
			continue
		}
		if intensifiers[tok] {
			boost *= intensifierBoost
			continue
		}

		weight, ok := positiveWords[tok]
		if !ok {
			if w, neg := negativeWords[tok]; neg {
				weight, ok = -w, true
			}
		}

		if ok {
			weight *= boost
			if negateLeft > 0 {
				weight = -weight * 0.75
				negateLeft = 0
			}
			sum += weight
			boost = 1.0
			continue
		}

		if negateLeft > 0 {
			negateLeft--
		}
		boost = 1.0
	}

	excl := strings.Count(text, "!")
	if excl > maxExclamations {
		excl = maxExclamations
	}
	return sum * (1 + 0.1*float64(excl))
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}
