package async

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestMemoryBrokerFIFO(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker(nil)
	defer b.Close()

	for _, id := range []string{"a", "b"} {
		if err := b.Enqueue(ctx, Job{ID: id, Queue: "docs"}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	for _, want := range []string{"a", "b"} {
		job, err := b.Dequeue(ctx, "docs")
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if job.ID != want {
			t.Fatalf("got %s, want %s", job.ID, want)
		}
	}
}

func TestMemoryBrokerDelayed(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b := NewMemoryBroker(nil)
	defer b.Close()

	start := time.Now()
	if err := b.Enqueue(ctx, Job{ID: "later", Queue: "docs", RunAt: start.Add(50 * time.Millisecond)}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	job, err := b.Dequeue(ctx, "docs")
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if job.ID != "later" || time.Since(start) < 50*time.Millisecond {
		t.Fatalf("job %s delivered after %v", job.ID, time.Since(start))
	}
}

func TestMemoryBrokerClose(t *testing.T) {
	b := NewMemoryBroker(nil)
	_ = b.Close()
	if _, err := b.Dequeue(context.Background(), "docs"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Dequeue after close: %v", err)
	}
	if err := b.Enqueue(context.Background(), Job{Queue: "docs"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Enqueue after close: %v", err)
	}
}

func runPool(t *testing.T, p *Pool, until func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()
	deadline := time.After(3 * time.Second)
	for !until() {
		select {
		case <-deadline:
			cancel()
			<-done
			t.Fatal("timed out waiting for pool")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestPoolRetriesThenFails(t *testing.T) {
	b := NewMemoryBroker(nil)
	defer b.Close()

	var (
		mu       sync.Mutex
		attempts []int
		failed   Job
		failures int32
	)
	handler := func(_ context.Context, job Job) error {
		mu.Lock()
		attempts = append(attempts, job.Attempt)
		mu.Unlock()
		return errors.New("model timeout")
	}
	hook := func(_ context.Context, job Job, _ error) {
		mu.Lock()
		failed = job
		mu.Unlock()
		atomic.AddInt32(&failures, 1)
	}
	p := NewPool(b, "docs", handler, nil,
		WithWorkers(1), WithRate(0), WithMaxAttempts(2),
		WithBackoff(10*time.Millisecond, time.Second), WithFailureHook(hook))

	if err := b.Enqueue(context.Background(), Job{ID: "j1", Queue: "docs"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	runPool(t, p, func() bool { return atomic.LoadInt32(&failures) == 1 })

	mu.Lock()
	defer mu.Unlock()
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Fatalf("attempts = %v, want [1 2]", attempts)
	}
	if failed.ID != "j1" || failed.Attempt != 2 {
		t.Fatalf("failure hook got %+v", failed)
	}
}

func TestPoolPermanentErrorSkipsRetry(t *testing.T) {
	b := NewMemoryBroker(nil)
	defer b.Close()
	var calls, failures int32
	handler := func(context.Context, Job) error {
		atomic.AddInt32(&calls, 1)
		return Permanent(errors.New("unsupported mime type"))
	}
	hook := func(context.Context, Job, error) { atomic.AddInt32(&failures, 1) }
	p := NewPool(b, "docs", handler, nil, WithWorkers(1), WithRate(0), WithFailureHook(hook))
	_ = b.Enqueue(context.Background(), Job{ID: "j1", Queue: "docs"})
	runPool(t, p, func() bool { return atomic.LoadInt32(&failures) == 1 })
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("handler called %d times, want 1", n)
	}
}

func TestPoolConcurrencyBound(t *testing.T) {
	b := NewMemoryBroker(nil)
	defer b.Close()
	var running, peak, done int32
	handler := func(context.Context, Job) error {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		atomic.AddInt32(&done, 1)
		return nil
	}
	p := NewPool(b, "docs", handler, nil, WithWorkers(3), WithRate(0))
	for i := 0; i < 9; i++ {
		_ = b.Enqueue(context.Background(), Job{Queue: "docs"})
	}
	runPool(t, p, func() bool { return atomic.LoadInt32(&done) == 9 })
	if pk := atomic.LoadInt32(&peak); pk > 3 {
		t.Fatalf("peak concurrency %d, want <= 3", pk)
	}
}

func TestPoolRecoversPanic(t *testing.T) {
	b := NewMemoryBroker(nil)
	defer b.Close()
	var failures int32
	handler := func(context.Context, Job) error { panic("boom") }
	hook := func(context.Context, Job, error) { atomic.AddInt32(&failures, 1) }
	p := NewPool(b, "docs", handler, nil, WithWorkers(1), WithRate(0), WithMaxAttempts(1), WithFailureHook(hook))
	_ = b.Enqueue(context.Background(), Job{ID: "j1", Queue: "docs"})
	runPool(t, p, func() bool { return atomic.LoadInt32(&failures) == 1 })
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	p := NewPool(nil, "docs", nil, nil, WithBackoff(time.Second, 5*time.Second))
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := p.delay(i + 1); got != w {
			t.Errorf("delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestSchedulerRegisterIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker(nil)
	defer b.Close()
	s := NewScheduler(b, time.Second, nil)

	for i := 0; i < 3; i++ {
		if err := s.Register(ctx, Recurring{Key: "sweep", Queue: "maintenance", Kind: "sweep", Every: time.Minute}); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	entries, _ := b.Recurring(ctx)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
}

func TestSchedulerTick(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker(nil)
	defer b.Close()
	s := NewScheduler(b, time.Second, nil)
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }
	_ = s.Register(ctx, Recurring{Key: "sweep", Queue: "maintenance", Kind: "sweep", Every: time.Minute})

	if err := s.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	now = now.Add(30 * time.Second)
	_ = s.Tick(ctx)
	now = now.Add(31 * time.Second)
	_ = s.Tick(ctx)

	ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	var got int
	for {
		job, err := b.Dequeue(ctx, "maintenance")
		if err != nil {
			break
		}
		if job.Kind != "sweep" {
			t.Fatalf("kind = %s", job.Kind)
		}
		got++
	}
	if got != 2 {
		t.Fatalf("enqueued %d sweeps, want 2", got)
	}
}

func TestRedisBroker(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb, err := DialRedis(ctx, addr, os.Getenv("REDIS_PASSWORD"), 0)
	if err != nil {
		t.Fatalf("DialRedis: %v", err)
	}
	prefix := "careplan-test-" + time.Now().Format("150405.000000")
	b := NewRedisBroker(rdb, prefix, nil, WithPollInterval(100*time.Millisecond))
	defer b.Close()
	defer rdb.Del(ctx, b.readyKey("docs"), b.delayedKey("docs"), b.recurringKey())

	if err := b.Enqueue(ctx, Job{ID: "now", Queue: "docs"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := b.Enqueue(ctx, Job{ID: "later", Queue: "docs", RunAt: time.Now().Add(200 * time.Millisecond)}); err != nil {
		t.Fatalf("Enqueue delayed: %v", err)
	}
	dctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	for _, want := range []string{"now", "later"} {
		job, err := b.Dequeue(dctx, "docs")
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if job.ID != want {
			t.Fatalf("got %s, want %s", job.ID, want)
		}
	}

	for i := 0; i < 2; i++ {
		_ = b.Register(ctx, Recurring{Key: "sweep", Queue: "maintenance", Every: time.Minute})
	}
	entries, err := b.Recurring(ctx)
	if err != nil || len(entries) != 1 {
		t.Fatalf("recurring = %v, %v", entries, err)
	}
}

func TestRedisPromoteMovesOnlyDueJobs(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb, err := DialRedis(ctx, addr, os.Getenv("REDIS_PASSWORD"), 0)
	if err != nil {
		t.Fatalf("DialRedis: %v", err)
	}
	prefix := "careplan-promote-" + time.Now().Format("150405.000000")
	b := NewRedisBroker(rdb, prefix, nil)
	defer b.Close()
	defer rdb.Del(ctx, b.readyKey("docs"), b.delayedKey("docs"))

	past := float64(time.Now().Add(-time.Second).UnixMilli())
	future := float64(time.Now().Add(time.Hour).UnixMilli())
	for _, z := range []redis.Z{
		{Score: past, Member: `{"id":"due-1","queue":"docs"}`},
		{Score: past, Member: `{"id":"due-2","queue":"docs"}`},
		{Score: future, Member: `{"id":"later","queue":"docs"}`},
	} {
		if err := rdb.ZAdd(ctx, b.delayedKey("docs"), z).Err(); err != nil {
			t.Fatalf("ZAdd: %v", err)
		}
	}

	if err := b.promote(ctx, "docs"); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if n := rdb.LLen(ctx, b.readyKey("docs")).Val(); n != 2 {
		t.Errorf("ready = %d, want 2", n)
	}
	if n := rdb.ZCard(ctx, b.delayedKey("docs")).Val(); n != 1 {
		t.Errorf("delayed = %d, want 1", n)
	}

	// a second pass finds nothing due and moves nothing
	if err := b.promote(ctx, "docs"); err != nil {
		t.Fatalf("promote again: %v", err)
	}
	if n := rdb.LLen(ctx, b.readyKey("docs")).Val(); n != 2 {
		t.Errorf("ready after second pass = %d, want 2", n)
	}
}
