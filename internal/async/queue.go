package async

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned by a broker after Close.
var ErrClosed = errors.New("queue closed")

// Job is one unit of queued work. Attempt counts completed tries; the pool
// increments it before handing the job to a handler.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"maxAttempts,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
	RunAt       time.Time       `json:"runAt,omitempty"`
}

// NewJob builds a job for queue with v encoded as its payload.
func NewJob(queue, kind string, v any) (Job, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return Job{}, err
	}
	return Job{
		ID:         uuid.NewString(),
		Queue:      queue,
		Kind:       kind,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the payload into v.
func (j Job) Decode(v any) error {
	return json.Unmarshal(j.Payload, v)
}

// Recurring is a job template enqueued every Every. Key is its idempotency key:
// registering the same key again replaces the previous entry.
type Recurring struct {
	Key     string          `json:"key"`
	Queue   string          `json:"queue"`
	Kind    string          `json:"kind"`
	Every   time.Duration   `json:"every"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Broker is a durable job queue. One dequeued job is owned by exactly one caller.
type Broker interface {
	// Enqueue makes job available now, or at job.RunAt when that is in the future.
	Enqueue(ctx context.Context, job Job) error
	// Dequeue blocks until a job is available on queue or ctx is done.
	Dequeue(ctx context.Context, queue string) (Job, error)
	Register(ctx context.Context, r Recurring) error
	Recurring(ctx context.Context) ([]Recurring, error)
	Close() error
}
