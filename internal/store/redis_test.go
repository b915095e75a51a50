package store

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := NewRedis(context.Background(), mr.Addr(), "", "stream-list", "stream-by-alive")
	if err != nil {
		t.Fatalf("NewRedis failed: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r, mr
}

func TestRedisQueue(t *testing.T) {
	r, _ := newTestRedis(t)
	exerciseQueue(t, r)
}

func TestRedisConcurrentDrain(t *testing.T) {
	r, _ := newTestRedis(t)
	drainConcurrently(t, r, 5, 20)
}

func TestRedisSharedKeys(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()

	// External feeders write the set directly.
	mr.SAdd("stream-list", "summit1g")
	name, ok, err := r.Pop(ctx)
	if err != nil || !ok || name != "summit1g" {
		t.Fatalf("Pop = (%q, %v, %v)", name, ok, err)
	}

	if err := r.Upsert(ctx, "summit1g", 33); err != nil {
		t.Fatal(err)
	}
	score, err := mr.ZScore("stream-by-alive", "summit1g")
	if err != nil || score != 33 {
		t.Errorf("Expected score 33 under stream-by-alive, got %v (%v)", score, err)
	}
}

func TestRedisUnavailable(t *testing.T) {
	r, mr := newTestRedis(t)
	addr := mr.Addr()
	mr.Close()

	if _, _, err := r.Pop(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Pop: expected ErrUnavailable, got %v", err)
	}
	if err := r.Upsert(context.Background(), "x", 1); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Upsert: expected ErrUnavailable, got %v", err)
	}
	if _, err := NewRedis(context.Background(), addr, "", "a", "b"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("NewRedis: expected ErrUnavailable, got %v", err)
	}
}

func TestRedisRequiresKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	if _, err := NewRedis(context.Background(), mr.Addr(), "", "", "b"); err == nil {
		t.Error("Expected error for missing read key")
	}
}
