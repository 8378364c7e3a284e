package runtime

import (
	"context"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// dispatchJob is one scheduled invocation handed to a worker.
type dispatchJob struct {
	run *Run
	inv *invocation
}

// workerPool is a fixed-size pool of T goroutines executing scheduled
// invocations, generalized from the teacher's array-item WorkerPool: jobs
// are Ready invocations rather than batch items, and there is no
// BatchResult — each job's outcome is published back into the dataflow
// graph by the caller-supplied execute function rather than collected on a
// results channel.
type workerPool struct {
	numWorkers int
	jobs       chan dispatchJob
	execute    func(context.Context, *Run, *invocation)
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// newWorkerPool creates a pool with the given worker count (0 or negative
// means one worker per logical CPU, matching automaxprocs-adjusted
// GOMAXPROCS) and buffer size.
func newWorkerPool(numWorkers, bufferSize int, execute func(context.Context, *Run, *invocation), logger *zap.Logger) *workerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	if bufferSize <= 0 {
		bufferSize = numWorkers * 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &workerPool{
		numWorkers: numWorkers,
		jobs:       make(chan dispatchJob, bufferSize),
		execute:    execute,
		logger:     logger,
	}
}

// Start launches the worker goroutines. They run until ctx is cancelled or
// Stop closes the job channel.
func (p *workerPool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

func (p *workerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			job.run.mu.Lock()
			cancelled := job.run.cancelled
			job.run.mu.Unlock()
			if cancelled {
				continue
			}
			p.execute(ctx, job.run, job.inv)
		}
	}
}

// Submit enqueues a Ready invocation for dispatch. Callers hold run.mu
// while scheduling (see maybeSchedule), and a worker draining the job
// channel needs that same lock before it can report its own result back
// in, so Submit must never block on a full buffer: a fan-out wider than
// the buffer would otherwise wedge every worker behind the lock the
// submitter is holding. The common case is a direct, non-blocking send;
// only an already-full buffer falls back to a detached goroutine.
func (p *workerPool) Submit(run *Run, inv *invocation) {
	job := dispatchJob{run: run, inv: inv}
	select {
	case p.jobs <- job:
	default:
		go func() { p.jobs <- job }()
	}
}

// Stop closes the job channel and waits for in-flight workers to drain.
func (p *workerPool) Stop() {
	close(p.jobs)
	p.wg.Wait()
}
