package inference

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Pool выполняет блокирующие вызовы модели на фиксированном числе горутин.
// Ожидание свободного воркера прерывается контекстом запроса,
// начатый вызов модели всегда доводится до конца.
type Pool struct {
	model    Model
	size     int
	jobs     chan job
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	waiting  atomic.Int64
}

type job struct {
	ctx   context.Context
	texts []string
	done  chan jobResult
}

type jobResult struct {
	predictions []Prediction
	err         error
}

// NewPool создает пул для модели
func NewPool(model Model, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		model:    model,
		size:     size,
		jobs:     make(chan job),
		stopChan: make(chan struct{}),
	}
}

// Start запускает горутины воркеров
func (p *Pool) Start() {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// worker горутина, выполняющая вызовы модели
func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case j := <-p.jobs:
			j.done <- p.run(j)
		case <-p.stopChan:
			return
		}
	}
}

// run вызывает модель; паника модели превращается в ошибку запроса
func (p *Pool) run(j job) (res jobResult) {
	defer func() {
		if r := recover(); r != nil {
			res = jobResult{err: fmt.Errorf("model panic: %v\n%s", r, debug.Stack())}
		}
	}()

	predictions, err := p.model.Predict(context.WithoutCancel(j.ctx), j.texts)
	return jobResult{predictions: predictions, err: err}
}

// Do передает пакет свободному воркеру и ждет результата
func (p *Pool) Do(ctx context.Context, texts []string) ([]Prediction, error) {
	j := job{ctx: ctx, texts: texts, done: make(chan jobResult, 1)}

	p.waiting.Add(1)
	select {
	case p.jobs <- j:
		p.waiting.Add(-1)
	case <-ctx.Done():
		p.waiting.Add(-1)
		return nil, ctx.Err()
	case <-p.stopChan:
		p.waiting.Add(-1)
		return nil, ErrPoolStopped
	}

	res := <-j.done
	return res.predictions, res.err
}

// Size возвращает число воркеров
func (p *Pool) Size() int {
	return p.size
}

// QueueDepth возвращает число запросов, ожидающих свободного воркера
func (p *Pool) QueueDepth() int64 {
	return p.waiting.Load()
}

// Stop останавливает воркеров после завершения текущих вызовов
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
	})
	p.wg.Wait()
}
