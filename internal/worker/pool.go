package worker

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolClosed is returned by Submit after Close or Shutdown
var ErrPoolClosed = errors.New("worker pool closed")

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// Pool runs jobs on a fixed number of workers fed by a bounded queue.
// Submit blocks while the queue is full, which is how backpressure reaches
// the producers.
type Pool struct {
	workers    int
	jobQueue   chan Job
	sink       func(Result)
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	mu         sync.RWMutex
	closed     bool
	closeOnce  sync.Once
}

// NewPool creates a pool. sink receives every result and must be safe for
// concurrent use; it may be nil.
func NewPool(workers, queueSize int, sink func(Result)) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers * 2
	}
	if sink == nil {
		sink = func(Result) {}
	}

	return &Pool{
		workers:  workers,
		jobQueue: make(chan Job, queueSize),
		sink:     sink,
	}
}

// Start starts the workers. Canceling ctx stops them; queued jobs are dropped.
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancelFunc = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			if p.ctx.Err() != nil {
				return
			}
			p.sink(job.Execute(p.ctx))
		}
	}
}

// Submit enqueues a job, blocking while the queue is full
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.jobQueue <- job:
		return nil
	}
}

// Pending returns the number of queued, not yet started jobs
func (p *Pool) Pending() int {
	return len(p.jobQueue)
}

// Close stops accepting jobs and waits for the queue to drain
func (p *Pool) Close() {
	p.closeQueue()
	p.wg.Wait()
	p.cancelFunc()
}

// Shutdown stops the workers immediately, dropping queued jobs
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.closeQueue()
	p.wg.Wait()
}

func (p *Pool) closeQueue() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobQueue)
		p.mu.Unlock()
	})
}
