package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestAggregator_NoRequests(t *testing.T) {
	agg := NewAggregator()

	snap := agg.Snapshot()
	assert.Zero(t, snap.TotalRequests)
	assert.Zero(t, snap.TotalLatencyMs)
	assert.Equal(t, 0.0, snap.AvgLatencyMs)
	assert.GreaterOrEqual(t, snap.UptimeSeconds, int64(0))
}

func TestAggregator_Record(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	agg := newAggregator(clock.Now)

	agg.Record(1, 40)
	agg.Record(4, 100)
	clock.Advance(90 * time.Second)

	snap := agg.Snapshot()
	assert.Equal(t, int64(5), snap.TotalRequests)
	assert.Equal(t, int64(140), snap.TotalLatencyMs)
	assert.InDelta(t, 28.0, snap.AvgLatencyMs, 1e-9)
	assert.Equal(t, int64(90), snap.UptimeSeconds)
	assert.Equal(t, clock.now.Add(-90*time.Second), agg.StartTime())
}

func TestAggregator_IgnoresInvalidInput(t *testing.T) {
	agg := NewAggregator()

	agg.Record(0, 100)
	agg.Record(-3, 100)
	agg.Record(1, -50)

	snap := agg.Snapshot()
	assert.Equal(t, int64(1), snap.TotalRequests)
	assert.Zero(t, snap.TotalLatencyMs)
}

func TestAggregator_Rolling(t *testing.T) {
	agg := NewAggregator()

	// пакет из 4 текстов за 100 мс дает 25 мс на текст
	agg.Record(4, 100)
	agg.Record(1, 35)

	r := agg.Rolling()
	assert.Equal(t, 2, r.Count)
	assert.Equal(t, WindowSize, r.Size)
	assert.InDelta(t, 30.0, r.AvgLatencyMs, 1e-9)
	assert.Greater(t, r.StdDevLatencyMs, 0.0)
}

func TestAggregator_ConcurrentRecord(t *testing.T) {
	agg := NewAggregator()

	const goroutines = 16
	const perGoroutine = 500

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				agg.Record(1, 3)
				// читатели работают параллельно с писателями
				snap := agg.Snapshot()
				if snap.TotalRequests > 0 {
					assert.InDelta(t, 3.0, snap.AvgLatencyMs, 1e-9)
				}
			}
		}()
	}
	wg.Wait()

	snap := agg.Snapshot()
	assert.Equal(t, int64(goroutines*perGoroutine), snap.TotalRequests)
	assert.Equal(t, int64(goroutines*perGoroutine*3), snap.TotalLatencyMs)
	assert.InDelta(t, 3.0, snap.AvgLatencyMs, 1e-9)
}

func BenchmarkAggregatorRecord(b *testing.B) {
	agg := NewAggregator()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		agg.Record(1, int64(i%100))
	}
}
