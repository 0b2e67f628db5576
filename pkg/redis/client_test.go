package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestSetNXMarksOnce(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	key := client.IdempotencyKey("webhooks", "evt_123")

	set, err := client.SetNX(ctx, key, "1", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !set {
		t.Fatal("first SetNX should succeed")
	}

	set, err = client.SetNX(ctx, key, "1", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set {
		t.Fatal("second SetNX for the same event should report already set")
	}

	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	set, err = client.SetNX(ctx, key, "1", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !set {
		t.Fatal("SetNX after Del should succeed again")
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	client := &Client{store: newMockCmdable()}
	if _, err := client.Get(context.Background(), "absent"); err != redis.Nil {
		t.Fatalf("expected redis.Nil for missing key, got %v", err)
	}
}

func TestIdempotencyKeyNamespacing(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("webhooks", "evt_9"); got != "esim:idempotency:webhooks:evt_9" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.IdempotencyKey("", "evt_9"); got != "esim:idempotency:evt_9" {
		t.Fatalf("empty scope should be skipped, got %s", got)
	}
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	if _, err := client.SetNX(context.Background(), "k", "v", 0); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error from uninitialized client")
	}
}

type mockCmdable struct {
	data map[string]string
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: make(map[string]string)}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
