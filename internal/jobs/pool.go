// Package jobs runs scan and parse work on a bounded worker pool.
//
// Every job reports its outcome exactly once on its own buffered Done channel,
// so the submitter never blocks the worker that produced the result.
package jobs

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Job is a unit of background work.
type Job interface {
	// Run performs the work. It is called exactly once per submission, with a
	// cancelled context if the pool closed before the job got a worker.
	Run(ctx context.Context)
}

// Pool executes jobs with at most a fixed number running concurrently.
// Submit never blocks: jobs beyond the limit wait for a worker.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	sem    *semaphore.Weighted

	mu     sync.RWMutex
	closed bool

	workers   int
	submitted atomic.Uint64
	completed atomic.Uint64
	running   atomic.Int64
}

// NewPool creates a pool with the given worker limit. Zero or a negative
// value uses runtime.NumCPU.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		ctx:     ctx,
		cancel:  cancel,
		group:   &errgroup.Group{},
		sem:     semaphore.NewWeighted(int64(workers)),
		workers: workers,
	}
}

// Submit queues job. It returns false if the pool is closed.
func (p *Pool) Submit(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	p.submitted.Add(1)
	p.group.Go(func() error {
		defer p.completed.Add(1)
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			// Closed while queued: let the job report cancellation.
			job.Run(p.ctx)
			return nil
		}
		defer p.sem.Release(1)

		p.running.Add(1)
		defer p.running.Add(-1)
		job.Run(p.ctx)
		return nil
	})
	return true
}

// Close stops accepting jobs, cancels queued ones and waits for running jobs
// to return.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	return p.group.Wait()
}

// PoolStats is a snapshot of pool activity.
type PoolStats struct {
	Workers   int
	Submitted uint64
	Completed uint64
	Running   int64
}

// Stats returns a snapshot of pool activity.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers:   p.workers,
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Running:   p.running.Load(),
	}
}
