package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/afroash/envmon/internal/models"
)

// fakeRedis keeps claimed keys in memory and ignores expiry
type fakeRedis struct {
	mu      sync.Mutex
	keys    map[string]time.Duration
	err     error
	pingErr error
	closed  bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{keys: make(map[string]time.Duration)}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, _ interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", f.pingErr)
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func TestRedisCooldown_Allow(t *testing.T) {
	fake := newFakeRedis()
	c := newRedisCooldown(fake, 5*time.Minute, zerolog.Nop())
	ctx := context.Background()

	if !c.Allow(ctx, testAlert("al-1")) {
		t.Fatal("first alert should pass")
	}
	if c.Allow(ctx, testAlert("al-2")) {
		t.Error("same sensor and severity inside the window should be suppressed")
	}

	other := testAlert("al-3")
	other.Severity = models.SeverityMedium
	if !c.Allow(ctx, other) {
		t.Error("a different severity should pass")
	}

	if ttl := fake.keys["notify_cooldown:temp-01:high"]; ttl != 5*time.Minute {
		t.Errorf("ttl = %v, want 5m", ttl)
	}
}

func TestRedisCooldown_FailOpen(t *testing.T) {
	fake := newFakeRedis()
	fake.err = errors.New("connection refused")
	c := newRedisCooldown(fake, time.Minute, zerolog.Nop())

	if !c.Allow(context.Background(), testAlert("al-1")) {
		t.Error("Redis errors should let the alert through")
	}
}

func TestRedisCooldown_PingAndClose(t *testing.T) {
	fake := newFakeRedis()
	c := newRedisCooldown(fake, time.Minute, zerolog.Nop())

	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping = %v", err)
	}
	fake.pingErr = errors.New("down")
	if err := c.Ping(context.Background()); err == nil {
		t.Error("Ping should report errors")
	}

	c.Close()
	if !fake.closed {
		t.Error("Close should close the client")
	}
}

func TestDispatcher_WithRedisCooldown(t *testing.T) {
	sink := &recordingSink{name: "a"}
	d := NewDispatcher([]Sink{sink}, newRedisCooldown(newFakeRedis(), time.Minute, zerolog.Nop()), time.Second, zerolog.Nop())

	d.Notify(testAlert("al-1"))
	// give the first delivery time to claim the key
	time.Sleep(50 * time.Millisecond)
	d.Notify(testAlert("al-2"))
	closeDispatcher(t, d)

	if sink.count() != 1 {
		t.Errorf("deliveries = %d, want 1", sink.count())
	}
}
