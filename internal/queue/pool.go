package queue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Handler processes one job. A returned error is logged and the job dropped.
type Handler func(ctx context.Context, job *Job) error

// DefaultPollInterval is how often idle consumers look for due jobs.
const DefaultPollInterval = 500 * time.Millisecond

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithConcurrency sets the number of consumers.
func WithConcurrency(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithLimiter gates every job start through lim.
func WithLimiter(lim Limiter) PoolOption {
	return func(p *Pool) { p.limiter = lim }
}

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// PoolStats are cumulative counters for one pool.
type PoolStats struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// Pool runs a fixed number of consumers against one queue.
type Pool struct {
	q            Queue
	name         string
	handler      Handler
	concurrency  int
	limiter      Limiter
	pollInterval time.Duration

	processed int64
	failed    int64

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewPool creates a pool consuming name with handler. Concurrency defaults to
// 1 and is pinned to 1 for MessageSend, which allows one send in flight.
func NewPool(q Queue, name string, handler Handler, opts ...PoolOption) *Pool {
	p := &Pool{
		q:            q,
		name:         name,
		handler:      handler,
		concurrency:  1,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	if name == MessageSend {
		p.concurrency = 1
	}
	return p
}

// Start launches the consumers.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("pool %s already running", p.name)
	}
	p.running = true

	ctx, p.cancel = context.WithCancel(ctx)
	log.Printf("[Queue] Starting %d consumer(s) on %s", p.concurrency, p.name)
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.consume(ctx, i)
	}
	return nil
}

// Stop cancels the consumers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	log.Printf("[Queue] Stopped %s (processed=%d failed=%d)", p.name,
		atomic.LoadInt64(&p.processed), atomic.LoadInt64(&p.failed))
}

// Stats returns the pool counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Processed: atomic.LoadInt64(&p.processed),
		Failed:    atomic.LoadInt64(&p.failed),
	}
}

func (p *Pool) consume(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		ran, err := p.RunOnce(ctx, time.Now())
		if err != nil && ctx.Err() == nil {
			log.Printf("[Queue] %s consumer %d: %v", p.name, id, err)
		}
		if ran {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.pollInterval):
		}
	}
}

// RunOnce pops and handles at most one job due at now. It reports whether a
// job was handled. Exposed so tests and the scheduler can drive a pool
// synchronously.
func (p *Pool) RunOnce(ctx context.Context, now time.Time) (bool, error) {
	job, err := p.q.Dequeue(ctx, p.name, now)
	if err != nil || job == nil {
		return false, err
	}

	if p.limiter != nil {
		if err := Wait(ctx, p.limiter); err != nil {
			// The job was already popped; put it back so it is not lost.
			if _, rerr := p.q.Enqueue(context.WithoutCancel(ctx), job.Queue, job.Kind, job.Payload, 0); rerr != nil {
				log.Printf("[Queue] %s: lost job %s on shutdown: %v", p.name, job.ID, rerr)
			}
			return false, err
		}
	}

	if err := p.safeHandle(ctx, job); err != nil {
		atomic.AddInt64(&p.failed, 1)
		log.Printf("[Queue] %s job %s (%s) failed: %v", p.name, job.ID, job.Kind, err)
		return true, nil
	}
	atomic.AddInt64(&p.processed, 1)
	return true, nil
}

func (p *Pool) safeHandle(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.handler(ctx, job)
}
