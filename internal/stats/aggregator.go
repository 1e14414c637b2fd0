// Package stats ведет счетчики запросов и задержек воркера.
// Счетчики локальны для процесса: несколько процессов не агрегируются.
package stats

import (
	"sync"
	"time"
)

// WindowSize размер окна для скользящей средней задержки
const WindowSize = 50

// Snapshot согласованный срез счетчиков
type Snapshot struct {
	UptimeSeconds  int64
	TotalRequests  int64
	TotalLatencyMs int64
	AvgLatencyMs   float64
}

// Rolling статистика по последним записям
type Rolling struct {
	AvgLatencyMs    float64
	StdDevLatencyMs float64
	Count           int
	Size            int
}

// Aggregator хранит пару счетчиков (запросы, суммарная задержка).
// Обе величины меняются в одной критической секции, поэтому читатель
// никогда не видит половину обновления.
type Aggregator struct {
	mu             sync.RWMutex
	startTime      time.Time
	totalRequests  int64
	totalLatencyMs int64
	window         *SlidingWindow
	now            func() time.Time
}

// NewAggregator создает агрегатор, фиксируя момент старта
func NewAggregator() *Aggregator {
	return newAggregator(time.Now)
}

func newAggregator(now func() time.Time) *Aggregator {
	return &Aggregator{
		startTime: now(),
		window:    NewSlidingWindow(WindowSize),
		now:       now,
	}
}

// Record добавляет count запросов с общей задержкой latencyMs.
// Вызовы с count < 1 игнорируются, отрицательная задержка считается нулевой.
func (a *Aggregator) Record(count int, latencyMs int64) {
	if count < 1 {
		return
	}
	if latencyMs < 0 {
		latencyMs = 0
	}

	a.mu.Lock()
	a.totalRequests += int64(count)
	a.totalLatencyMs += latencyMs
	a.window.Add(float64(latencyMs) / float64(count))
	a.mu.Unlock()
}

// Snapshot возвращает текущие счетчики и среднюю задержку
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	requests := a.totalRequests
	latency := a.totalLatencyMs
	a.mu.RUnlock()

	uptime := int64(a.now().Sub(a.startTime).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	var avg float64
	if requests > 0 {
		avg = float64(latency) / float64(requests)
	}

	return Snapshot{
		UptimeSeconds:  uptime,
		TotalRequests:  requests,
		TotalLatencyMs: latency,
		AvgLatencyMs:   avg,
	}
}

// Rolling возвращает статистику по последним WindowSize записям
func (a *Aggregator) Rolling() Rolling {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return Rolling{
		AvgLatencyMs:    a.window.Mean(),
		StdDevLatencyMs: a.window.StdDev(),
		Count:           a.window.Count(),
		Size:            a.window.Size(),
	}
}

// StartTime возвращает момент старта агрегатора
func (a *Aggregator) StartTime() time.Time {
	return a.startTime
}
