package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Handler processes one job. A returned error makes the pool retry the job until
// its attempts run out.
type Handler func(ctx context.Context, job Job) error

// FailureHook runs once when a job exhausts its attempts.
type FailureHook func(ctx context.Context, job Job, err error)

// Permanent marks an error that must not be retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err}
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Pool runs a fixed number of workers against one queue.
type Pool struct {
	broker      Broker
	queue       string
	handler     Handler
	logger      *slog.Logger
	workers     int
	limiter     *rate.Limiter
	maxAttempts int
	backoff     time.Duration
	maxBackoff  time.Duration
	timeout     time.Duration
	onFailure   FailureHook

	wg sync.WaitGroup
}

type PoolOption func(*Pool)

func WithWorkers(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithRate caps job starts per second across all workers. Zero disables the cap.
func WithRate(perSec float64) PoolOption {
	return func(p *Pool) {
		if perSec > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		} else {
			p.limiter = nil
		}
	}
}

func WithMaxAttempts(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithBackoff sets the delay before the first retry; each later retry doubles it up to ceiling.
func WithBackoff(base, ceiling time.Duration) PoolOption {
	return func(p *Pool) {
		if base > 0 {
			p.backoff = base
		}
		if ceiling > 0 {
			p.maxBackoff = ceiling
		}
	}
}

func WithProcessTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithFailureHook(h FailureHook) PoolOption {
	return func(p *Pool) { p.onFailure = h }
}

func NewPool(broker Broker, queue string, handler Handler, logger *slog.Logger, opts ...PoolOption) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		broker:      broker,
		queue:       queue,
		handler:     handler,
		logger:      logger,
		workers:     3,
		limiter:     rate.NewLimiter(rate.Limit(5), 1),
		maxAttempts: 2,
		backoff:     2 * time.Second,
		maxBackoff:  time.Minute,
		timeout:     5 * time.Minute,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run starts the workers and blocks until ctx is done. In-flight jobs are allowed to
// finish before Run returns.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("worker pool started", "queue", p.queue, "workers", p.workers, "max_attempts", p.maxAttempts)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			p.work(ctx, workerID)
		}(i + 1)
	}
	p.wg.Wait()
	p.logger.Info("worker pool stopped", "queue", p.queue)
	return nil
}

func (p *Pool) work(ctx context.Context, workerID int) {
	for {
		job, err := p.broker.Dequeue(ctx, p.queue)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrClosed) {
				return
			}
			p.logger.Error("dequeue failed", "worker_id", workerID, "queue", p.queue, "error", err)
			if !sleep(ctx, time.Second) {
				return
			}
			continue
		}
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				p.requeueOnShutdown(job)
				return
			}
		}
		p.process(ctx, workerID, job)
	}
}

// requeueOnShutdown puts back a job that was dequeued but never started.
func (p *Pool) requeueOnShutdown(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.broker.Enqueue(ctx, job); err != nil {
		p.logger.Warn("job lost on shutdown", "job_id", job.ID, "queue", p.queue, "error", err)
	}
}

func (p *Pool) process(ctx context.Context, workerID int, job Job) {
	job.Attempt++
	limit := p.maxAttempts
	if job.MaxAttempts > 0 {
		limit = job.MaxAttempts
	}

	// shutdown must not cancel a job that already started
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	start := time.Now()
	err := p.safeHandle(jobCtx, job)
	cancel()
	elapsed := time.Since(start).Milliseconds()

	if err == nil {
		p.logger.Info("job completed", "worker_id", workerID, "job_id", job.ID, "kind", job.Kind, "attempt", job.Attempt, "elapsed_ms", elapsed)
		return
	}

	if job.Attempt < limit && !IsPermanent(err) {
		delay := p.delay(job.Attempt)
		p.logger.Warn("job failed, retrying",
			"worker_id", workerID, "job_id", job.ID, "kind", job.Kind,
			"attempt", job.Attempt, "max_attempts", limit, "retry_in_ms", delay.Milliseconds(), "error", err)
		retry := job
		retry.RunAt = time.Now().Add(delay)
		qErr := p.broker.Enqueue(context.WithoutCancel(ctx), retry)
		if qErr == nil {
			return
		}
		p.logger.Error("retry enqueue failed", "job_id", job.ID, "error", qErr)
	}

	p.logger.Error("job failed permanently",
		"worker_id", workerID, "job_id", job.ID, "kind", job.Kind, "attempt", job.Attempt, "elapsed_ms", elapsed, "error", err)
	if p.onFailure != nil {
		hookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		p.onFailure(hookCtx, job, err)
		cancel()
	}
}

func (p *Pool) safeHandle(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()
	return p.handler(ctx, job)
}

// delay is backoff * 2^(attempt-1), capped at maxBackoff.
func (p *Pool) delay(attempt int) time.Duration {
	d := p.backoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.maxBackoff {
			return p.maxBackoff
		}
	}
	return min(d, p.maxBackoff)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
