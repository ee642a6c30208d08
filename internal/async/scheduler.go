package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Scheduler enqueues registered recurring jobs when they come due.
type Scheduler struct {
	broker Broker
	tick   time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	lastRun map[string]time.Time
}

func NewScheduler(broker Broker, tick time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if tick <= 0 {
		tick = time.Second
	}
	return &Scheduler{broker: broker, tick: tick, logger: logger, now: time.Now, lastRun: make(map[string]time.Time)}
}

// Register stores r under its key, replacing any entry with the same key.
func (s *Scheduler) Register(ctx context.Context, r Recurring) error {
	if err := s.broker.Register(ctx, r); err != nil {
		return err
	}
	s.logger.Info("recurring job registered", "key", r.Key, "queue", r.Queue, "every", r.Every.String())
	return nil
}

// Run fires due entries every tick until ctx is done. The first tick fires every entry.
func (s *Scheduler) Run(ctx context.Context) error {
	t := time.NewTicker(s.tick)
	defer t.Stop()
	for {
		if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("scheduler tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Tick enqueues every registered entry whose interval has elapsed since it last fired.
func (s *Scheduler) Tick(ctx context.Context) error {
	entries, err := s.broker.Recurring(ctx)
	if err != nil {
		return err
	}
	now := s.now()
	for _, r := range entries {
		if r.Every <= 0 {
			continue
		}
		s.mu.Lock()
		last, seen := s.lastRun[r.Key]
		due := !seen || now.Sub(last) >= r.Every
		if due {
			s.lastRun[r.Key] = now
		}
		s.mu.Unlock()
		if !due {
			continue
		}
		job := Job{
			ID:         uuid.NewString(),
			Queue:      r.Queue,
			Kind:       r.Kind,
			Payload:    r.Payload,
			EnqueuedAt: now.UTC(),
		}
		if err := s.broker.Enqueue(ctx, job); err != nil {
			return err
		}
		s.logger.Debug("recurring job enqueued", "key", r.Key, "job_id", job.ID, "queue", r.Queue)
	}
	return nil
}
