package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"tally-attio-relay/internal/apperr"
	"tally-attio-relay/internal/models"
	"tally-attio-relay/internal/pipeline"
)

// ErrStopped is returned for submissions that arrive after Stop.
var ErrStopped = errors.New("worker pool is stopped")

// Runner is the work each job performs.
type Runner interface {
	Run(ctx context.Context, sub *models.Submission) (*pipeline.Result, error)
}

// Job is one submission waiting for a worker. The caller blocks on reply.
type Job struct {
	ctx   context.Context
	sub   *models.Submission
	reply chan outcome
}

type outcome struct {
	res *pipeline.Result
	err error
}

// Pool bounds how many submissions talk to the CRM at once.
// Callers still get their result synchronously through Run.
type Pool struct {
	JobQueue chan Job
	runner   Runner
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopped  bool
	logger   *slog.Logger
}

// NewPool creates a new worker pool.
func NewPool(maxQueueSize int, runner Runner, logger *slog.Logger) *Pool {
	return &Pool{
		JobQueue: make(chan Job, maxQueueSize),
		runner:   runner,
		logger:   logger,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start(numWorkers int) {
	for i := 1; i <= numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop refuses new jobs and waits for queued ones to finish.
func (p *Pool) Stop() {
	p.logger.Info("Stopping worker pool... Closing job queue.")
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.JobQueue)
	}
	p.mu.Unlock()
	p.wg.Wait()
	p.logger.Info("All workers have stopped.")
}

// Run queues sub and waits for a worker to process it.
func (p *Pool) Run(ctx context.Context, sub *models.Submission) (*pipeline.Result, error) {
	job := Job{ctx: ctx, sub: sub, reply: make(chan outcome, 1)}

	p.mu.RLock()
	if p.stopped {
		p.mu.RUnlock()
		return nil, apperr.Internal("relay is shutting down", ErrStopped)
	}
	select {
	case p.JobQueue <- job:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return nil, apperr.Internal("request cancelled while queued", ctx.Err())
	}

	select {
	case out := <-job.reply:
		return out.res, out.err
	case <-ctx.Done():
		return nil, apperr.Internal("request cancelled while processing", ctx.Err())
	}
}

// worker is the background goroutine that processes jobs from the queue.
func (p *Pool) worker(id int) {
	defer p.wg.Done()
	p.logger.Info("Worker started", "worker_id", id)

	for job := range p.JobQueue {
		if err := job.ctx.Err(); err != nil {
			p.logger.Warn("Dropping job whose caller went away", "worker_id", id, "error", err)
			job.reply <- outcome{err: err}
			continue
		}
		job.reply <- p.process(id, job)
	}
}

// process runs one job, turning a panic into an internal error so the worker survives.
func (p *Pool) process(id int, job Job) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Worker recovered from panic", "worker_id", id, "panic", r)
			out = outcome{err: apperr.Internal("submission processing panicked", fmt.Errorf("panic: %v", r))}
		}
	}()
	// The caller's wait is bounded by its context; the work itself is not.
	res, err := p.runner.Run(context.WithoutCancel(job.ctx), job.sub)
	return outcome{res: res, err: err}
}
