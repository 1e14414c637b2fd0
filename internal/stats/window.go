package stats

import "math"

// SlidingWindow реализует скользящее окно для хранения значений
type SlidingWindow struct {
	values []float64
	size   int
	index  int
	count  int
	sum    float64
	sumSq  float64
}

// NewSlidingWindow создает новое скользящее окно заданного размера
func NewSlidingWindow(size int) *SlidingWindow {
	if size < 1 {
		size = 1
	}
	return &SlidingWindow{
		values: make([]float64, size),
		size:   size,
	}
}

// Add добавляет новое значение в окно, вытесняя самое старое
func (sw *SlidingWindow) Add(value float64) {
	if sw.count >= sw.size {
		old := sw.values[sw.index]
		sw.sum -= old
		sw.sumSq -= old * old
	} else {
		sw.count++
	}

	sw.values[sw.index] = value
	sw.sum += value
	sw.sumSq += value * value

	sw.index = (sw.index + 1) % sw.size
}

// Mean возвращает среднее значение по окну
func (sw *SlidingWindow) Mean() float64 {
	if sw.count == 0 {
		return 0
	}
	return sw.sum / float64(sw.count)
}

// StdDev возвращает выборочное стандартное отклонение
func (sw *SlidingWindow) StdDev() float64 {
	if sw.count < 2 {
		return 0
	}
	n := float64(sw.count)
	variance := (sw.sumSq - (sw.sum*sw.sum)/n) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// Count возвращает количество элементов в окне
func (sw *SlidingWindow) Count() int {
	return sw.count
}

// Size возвращает емкость окна
func (sw *SlidingWindow) Size() int {
	return sw.size
}
