package async

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// MemoryBroker is an in-process Broker. Jobs do not survive a restart.
type MemoryBroker struct {
	logger *slog.Logger
	size   int

	mu        sync.Mutex
	queues    map[string]chan Job
	recurring map[string]Recurring
	timers    map[*time.Timer]struct{}
	closed    bool
	done      chan struct{}
}

type MemoryOption func(*MemoryBroker)

func WithQueueSize(n int) MemoryOption {
	return func(b *MemoryBroker) {
		if n > 0 {
			b.size = n
		}
	}
}

func NewMemoryBroker(logger *slog.Logger, opts ...MemoryOption) *MemoryBroker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &MemoryBroker{
		logger:    logger,
		size:      256,
		queues:    make(map[string]chan Job),
		recurring: make(map[string]Recurring),
		timers:    make(map[*time.Timer]struct{}),
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *MemoryBroker) queue(name string) chan Job {
	ch, ok := b.queues[name]
	if !ok {
		ch = make(chan Job, b.size)
		b.queues[name] = ch
	}
	return ch
}

func (b *MemoryBroker) Enqueue(ctx context.Context, job Job) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.logger.Warn("cannot enqueue: queue is shutting down", "job_id", job.ID, "queue", job.Queue)
		return ErrClosed
	}
	if delay := time.Until(job.RunAt); !job.RunAt.IsZero() && delay > 0 {
		var t *time.Timer
		t = time.AfterFunc(delay, func() {
			b.mu.Lock()
			delete(b.timers, t)
			b.mu.Unlock()
			job.RunAt = time.Time{}
			if err := b.Enqueue(context.Background(), job); err != nil {
				b.logger.Warn("delayed job dropped", "job_id", job.ID, "error", err)
			}
		})
		b.timers[t] = struct{}{}
		b.mu.Unlock()
		b.logger.Debug("job delayed", "job_id", job.ID, "queue", job.Queue, "delay_ms", delay.Milliseconds())
		return nil
	}
	ch := b.queue(job.Queue)
	b.mu.Unlock()

	select {
	case ch <- job:
		b.logger.Debug("job queued", "job_id", job.ID, "queue", job.Queue, "kind", job.Kind)
		return nil
	default:
	}
	b.logger.Warn("queue full, applying backpressure", "job_id", job.ID, "queue", job.Queue)
	select {
	case ch <- job:
		return nil
	case <-b.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MemoryBroker) Dequeue(ctx context.Context, queue string) (Job, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return Job{}, ErrClosed
	}
	ch := b.queue(queue)
	b.mu.Unlock()

	select {
	case job := <-ch:
		return job, nil
	case <-b.done:
		return Job{}, ErrClosed
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

func (b *MemoryBroker) Register(_ context.Context, r Recurring) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.recurring[r.Key] = r
	return nil
}

func (b *MemoryBroker) Recurring(context.Context) ([]Recurring, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Recurring, 0, len(b.recurring))
	for _, r := range b.recurring {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Close stops delayed timers and wakes blocked callers. Jobs still buffered are dropped.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for t := range b.timers {
		t.Stop()
	}
	for name, ch := range b.queues {
		if n := len(ch); n > 0 {
			b.logger.Warn("dropping buffered jobs", "queue", name, "count", n)
		}
	}
	close(b.done)
	return nil
}
