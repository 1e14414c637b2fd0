package inference

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcModel func(ctx context.Context, texts []string) ([]Prediction, error)

func (f funcModel) Predict(ctx context.Context, texts []string) ([]Prediction, error) {
	return f(ctx, texts)
}

func echoModel() funcModel {
	return func(ctx context.Context, texts []string) ([]Prediction, error) {
		out := make([]Prediction, len(texts))
		for i, t := range texts {
			out[i] = Prediction{Label: t, Score: 1}
		}
		return out, nil
	}
}

func TestPool_Do(t *testing.T) {
	p := NewPool(echoModel(), 2)
	p.Start()
	defer p.Stop()

	preds, err := p.Do(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "a", preds[0].Label)
	assert.Equal(t, "b", preds[1].Label)
	assert.Equal(t, 2, p.Size())
}

func TestPool_SizeAtLeastOne(t *testing.T) {
	assert.Equal(t, 1, NewPool(echoModel(), 0).Size())
}

func TestPool_LimitsConcurrency(t *testing.T) {
	var current, peak atomic.Int32
	model := funcModel(func(ctx context.Context, texts []string) ([]Prediction, error) {
		n := current.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		current.Add(-1)
		return []Prediction{{Label: "POSITIVE", Score: 1}}, nil
	})

	p := NewPool(model, 3)
	p.Start()
	defer p.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Do(context.Background(), []string{"x"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Zero(t, p.QueueDepth())
}

func TestPool_RecoversPanic(t *testing.T) {
	model := funcModel(func(ctx context.Context, texts []string) ([]Prediction, error) {
		if texts[0] == "boom" {
			panic("segfault in kernel")
		}
		return []Prediction{{Label: "POSITIVE", Score: 1}}, nil
	})
	p := NewPool(model, 1)
	p.Start()
	defer p.Stop()

	_, err := p.Do(context.Background(), []string{"boom"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "segfault in kernel")

	// воркер продолжает работу после паники
	_, err = p.Do(context.Background(), []string{"ok"})
	assert.NoError(t, err)
}

func TestPool_ContextCancelledWhileWaiting(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	model := funcModel(func(ctx context.Context, texts []string) ([]Prediction, error) {
		started <- struct{}{}
		<-release
		return []Prediction{{Label: "POSITIVE", Score: 1}}, nil
	})
	p := NewPool(model, 1)
	p.Start()
	defer p.Stop()

	go func() { _, _ = p.Do(context.Background(), []string{"busy"}) }()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Do(ctx, []string{"queued"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, p.QueueDepth())

	close(release)
}

func TestPool_StartedCallIgnoresCancellation(t *testing.T) {
	model := funcModel(func(ctx context.Context, texts []string) ([]Prediction, error) {
		time.Sleep(30 * time.Millisecond)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return []Prediction{{Label: "POSITIVE", Score: 1}}, nil
	})
	p := NewPool(model, 1)
	p.Start()
	defer p.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(5*time.Millisecond, cancel)

	preds, err := p.Do(ctx, []string{"x"})
	require.NoError(t, err)
	assert.Len(t, preds, 1)
}

func TestPool_Stop(t *testing.T) {
	p := NewPool(echoModel(), 2)
	p.Start()
	p.Stop()
	p.Stop()

	_, err := p.Do(context.Background(), []string{"late"})
	assert.True(t, errors.Is(err, ErrPoolStopped))
}
