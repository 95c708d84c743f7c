package bot

import (
	"context"
	"sync"

	"github.com/funpay-tools/steampoints-bot/pkg/logging"
)

const defaultWorkerCount = 2

// Job is one unit of fulfillment work executed on the pool.
type Job func(ctx context.Context)

// Pool runs jobs on a fixed set of worker goroutines so a slow provider
// call never blocks the event loop. Submit blocks once every worker is
// busy; that backpressure is the only queueing the bot does.
type Pool struct {
	jobs    chan Job
	wg      sync.WaitGroup
	workers int
	logger  *logging.Logger

	stopOnce sync.Once
}

// NewPool creates a pool with the given worker count.
func NewPool(workers int, logger *logging.Logger) *Pool {
	if workers <= 0 {
		workers = defaultWorkerCount
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Pool{
		jobs:    make(chan Job),
		workers: workers,
		logger:  logger,
	}
}

// Start launches the worker goroutines. Jobs run with the context passed
// here; in-flight work is not canceled by Stop.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for job := range p.jobs {
				p.run(ctx, id, job)
			}
		}(i)
	}
}

func (p *Pool) run(ctx context.Context, worker int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic in fulfillment job", "worker", worker, "panic", r)
		}
	}()
	job(ctx)
}

// Submit hands a job to the pool, blocking until a worker is free.
func (p *Pool) Submit(job Job) {
	if job == nil {
		return
	}
	p.jobs <- job
}

// Stop closes intake; workers exit after draining queued jobs.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.jobs) })
}

// Wait blocks until all workers have exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}
