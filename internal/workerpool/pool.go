// Package workerpool implements the Worker Pool (C8): a fixed-size set of
// worker goroutines draining a bounded FIFO queue of dispatched requests.
// Workers never touch the Scene directly; every op reaches it only through
// the Engine Guard the pool is constructed with.
package workerpool

import (
	"context"
	"runtime"
	"sync"

	"github.com/voxelcore/voxeld/internal/domain"
)

// Job is one dispatched request, carrying everything a worker needs to
// invoke the Engine Guard and deliver a result without reaching back into
// the Connection's internals beyond the two callbacks supplied here.
type Job struct {
	Op *domain.EngineOp

	// Submit performs the actual guarded engine call. The pool does not
	// import engineguard so it stays independent of the Scene's
	// concrete API; the dispatcher supplies this closure per-job.
	Submit func(ctx context.Context, op *domain.EngineOp) (any, *domain.EngineError)

	// Deliver posts the result to the originating Connection's send
	// queue. Never called if Cancelled() is true at either check point.
	Deliver func(result any, eerr *domain.EngineError)

	Ctx context.Context
}

// ErrBackpressure is returned by Submit when the bounded queue is full.
// The dispatcher passes it through registry.ErrorToRPC, so the request
// that triggered it gets a -32006 ResourceExhausted response, per the
// Worker Pool's non-blocking submit contract.
var ErrBackpressure = domain.NewEngineError(domain.ErrResourceExhausted, "worker queue is full")

// Pool is a fixed-size set of worker goroutines draining a bounded queue.
type Pool struct {
	jobs    chan Job
	wg      sync.WaitGroup
	closing chan struct{}
	once    sync.Once
}

// clampWorkers bounds the configured worker count to [2, 8], defaulting to
// the number of hardware threads when n is zero.
func clampWorkers(n int) int {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if n < 2 {
		n = 2
	}
	if n > 8 {
		n = 8
	}
	return n
}

// New starts a pool with the given worker count (clamped to [2, 8]; zero
// means auto) and queue capacity.
func New(workers, queueCap int) *Pool {
	if queueCap <= 0 {
		queueCap = 1024
	}
	p := &Pool{
		jobs:    make(chan Job, queueCap),
		closing: make(chan struct{}),
	}
	n := clampWorkers(workers)
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.worker()
	}
	return p
}

// Submit enqueues job without blocking. Returns ErrBackpressure if the
// queue is full; the caller never blocks waiting for capacity.
func (p *Pool) Submit(job Job) *domain.EngineError {
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrBackpressure
	}
}

// QueueDepth reports how many jobs are currently buffered, for the status
// method's worker_queue_depth field.
func (p *Pool) QueueDepth() int {
	return len(p.jobs)
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.run(job)
		case <-p.closing:
			// Drain whatever is already queued before exiting so a
			// graceful shutdown's "existing workers complete current
			// ops" guarantee extends to already-enqueued work too.
			for {
				select {
				case job, ok := <-p.jobs:
					if !ok {
						return
					}
					p.run(job)
				default:
					return
				}
			}
		}
	}
}

func (p *Pool) run(job Job) {
	if job.Op.Cancelled() {
		return
	}
	result, eerr := job.Submit(job.Ctx, job.Op)
	if job.Op.Cancelled() {
		return
	}
	job.Deliver(result, eerr)
}

// Shutdown stops accepting new submissions and waits for in-flight and
// already-queued jobs to finish. Safe to call once; subsequent calls are a
// no-op.
func (p *Pool) Shutdown() {
	p.once.Do(func() {
		close(p.closing)
		close(p.jobs)
	})
	p.wg.Wait()
}
