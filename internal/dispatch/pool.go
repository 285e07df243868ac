package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrQueueFull  = errors.New("dispatch queue full")
	ErrPoolClosed = errors.New("dispatch pool closed")
)

// jobTimeout bounds one job end to end, independent of the request that enqueued it.
const jobTimeout = 2 * time.Minute

// Pool runs jobs on a fixed set of in-process workers. Work runs on a context detached from
// the webhook request so acknowledging the gateway cannot cancel it.
type Pool struct {
	handler Handler
	logger  *zap.Logger
	ch      chan Job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool starts workers goroutines reading from a buffer of queueSize jobs.
func NewPool(handler Handler, workers, queueSize int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		handler: handler,
		logger:  logger,
		ch:      make(chan Job, queueSize),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

// Dispatch enqueues job without blocking. A full buffer is reported, never dropped silently.
func (p *Pool) Dispatch(_ context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.ch <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// QueueLen is a sample of the number of buffered jobs.
func (p *Pool) QueueLen() int { return len(p.ch) }

// Close stops accepting jobs and waits for buffered ones to finish or ctx to end.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain dispatch pool: %w", ctx.Err())
	}
}

func (p *Pool) work() {
	defer p.wg.Done()
	for job := range p.ch {
		p.run(job)
	}
}

func (p *Pool) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked",
				zap.String("correlation_id", job.CorrelationID),
				zap.String("order_number", job.OrderNumber),
				zap.Any("panic", r))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	p.handler(ctx, job)
}
