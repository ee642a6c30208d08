package async

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBroker keeps ready jobs in a list per queue, delayed retries in a sorted set
// scored by due time, and recurring registrations in a hash keyed by idempotency key.
type RedisBroker struct {
	rdb    redis.UniversalClient
	prefix string
	poll   time.Duration
	logger *slog.Logger
}

type RedisOption func(*RedisBroker)

// WithPollInterval bounds how long one blocking pop waits before promoting due retries.
func WithPollInterval(d time.Duration) RedisOption {
	return func(b *RedisBroker) {
		if d > 0 {
			b.poll = d
		}
	}
}

func NewRedisBroker(rdb redis.UniversalClient, prefix string, logger *slog.Logger, opts ...RedisOption) *RedisBroker {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "careplan"
	}
	b := &RedisBroker{rdb: rdb, prefix: prefix, poll: time.Second, logger: logger}
	for _, o := range opts {
		o(b)
	}
	return b
}

// DialRedis connects and pings a Redis server.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func (b *RedisBroker) readyKey(queue string) string   { return b.prefix + ":queue:" + queue }
func (b *RedisBroker) delayedKey(queue string) string { return b.prefix + ":delayed:" + queue }
func (b *RedisBroker) recurringKey() string           { return b.prefix + ":recurring" }

func (b *RedisBroker) Enqueue(ctx context.Context, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	if !job.RunAt.IsZero() && job.RunAt.After(time.Now()) {
		z := redis.Z{Score: float64(job.RunAt.UnixMilli()), Member: raw}
		if err := b.rdb.ZAdd(ctx, b.delayedKey(job.Queue), z).Err(); err != nil {
			return fmt.Errorf("delay job %s: %w", job.ID, err)
		}
		b.logger.Debug("job delayed", "job_id", job.ID, "queue", job.Queue, "run_at", job.RunAt)
		return nil
	}
	if err := b.rdb.LPush(ctx, b.readyKey(job.Queue), raw).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	b.logger.Debug("job queued", "job_id", job.ID, "queue", job.Queue, "kind", job.Kind)
	return nil
}

func (b *RedisBroker) Dequeue(ctx context.Context, queue string) (Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}
		if err := b.promote(ctx, queue); err != nil {
			b.logger.Warn("promote delayed jobs failed", "queue", queue, "error", err)
		}
		res, err := b.rdb.BRPop(ctx, b.poll, b.readyKey(queue)).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			if errors.Is(err, redis.ErrClosed) {
				return Job{}, ErrClosed
			}
			return Job{}, fmt.Errorf("dequeue %s: %w", queue, err)
		}
		// res is [key, value]
		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			b.logger.Error("dropping undecodable job", "queue", queue, "error", err)
			continue
		}
		return job, nil
	}
}

// promoteScript moves due members of the delayed set (KEYS[1]) onto the ready list
// (KEYS[2]) in one atomic step, so a retry is never removed without being pushed.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, raw in ipairs(due) do
	redis.call('ZREM', KEYS[1], raw)
	redis.call('LPUSH', KEYS[2], raw)
end
return #due
`)

// promoteBatch caps how many due jobs one promote call moves.
const promoteBatch = 100

// promote moves due delayed jobs to the ready list.
func (b *RedisBroker) promote(ctx context.Context, queue string) error {
	n, err := promoteScript.Run(ctx, b.rdb,
		[]string{b.delayedKey(queue), b.readyKey(queue)},
		time.Now().UnixMilli(), promoteBatch,
	).Int()
	if err != nil {
		return fmt.Errorf("promote %s: %w", queue, err)
	}
	if n > 0 {
		b.logger.Debug("queue.redis.promoted", "queue", queue, "jobs", n)
	}
	return nil
}

func (b *RedisBroker) Register(ctx context.Context, r Recurring) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode recurring %s: %w", r.Key, err)
	}
	if err := b.rdb.HSet(ctx, b.recurringKey(), r.Key, raw).Err(); err != nil {
		return fmt.Errorf("register recurring %s: %w", r.Key, err)
	}
	return nil
}

func (b *RedisBroker) Recurring(ctx context.Context) ([]Recurring, error) {
	m, err := b.rdb.HGetAll(ctx, b.recurringKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list recurring: %w", err)
	}
	out := make([]Recurring, 0, len(m))
	for key, raw := range m {
		var r Recurring
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			b.logger.Warn("skipping undecodable recurring entry", "key", key, "error", err)
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (b *RedisBroker) Close() error {
	return b.rdb.Close()
}
