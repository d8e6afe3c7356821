package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/veilchat/relay/internal/store"
)

func newTestQueue(t *testing.T, max int) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, max)
}

func TestPushPopFIFO(t *testing.T) {
	q := newTestQueue(t, 0)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		if err := q.Push(ctx, id); err != nil {
			t.Fatalf("Push(%d) error: %v", id, err)
		}
	}

	for _, want := range []int64{1, 2, 3} {
		got, ok, err := q.PopFirst(ctx)
		if err != nil {
			t.Fatalf("PopFirst() error: %v", err)
		}
		if !ok || got != want {
			t.Fatalf("PopFirst() = %d ok=%v, want %d", got, ok, want)
		}
	}

	if _, ok, _ := q.PopFirst(ctx); ok {
		t.Error("PopFirst() on empty queue reported ok")
	}
}

func TestPush_Dedupes(t *testing.T) {
	q := newTestQueue(t, 0)
	ctx := context.Background()

	q.Push(ctx, 1)
	q.Push(ctx, 2)
	q.Push(ctx, 1) // re-push moves 1 to the tail, no duplicate

	ids, err := q.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	if len(ids) != 2 || ids[0] != 2 || ids[1] != 1 {
		t.Errorf("expected [2 1], got %v", ids)
	}
}

func TestPush_CapacityCap(t *testing.T) {
	q := newTestQueue(t, 2)
	ctx := context.Background()

	q.Push(ctx, 1)
	q.Push(ctx, 2)
	err := q.Push(ctx, 3)
	if !errors.Is(err, store.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	// A user already in the queue can always re-push.
	if err := q.Push(ctx, 2); err != nil {
		t.Errorf("re-push at capacity should succeed, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	q := newTestQueue(t, 0)
	ctx := context.Background()

	q.Push(ctx, 1)
	q.Push(ctx, 2)

	removed, err := q.Remove(ctx, 1)
	if err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if !removed {
		t.Error("expected removed=true")
	}

	removed, err = q.Remove(ctx, 1)
	if err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if removed {
		t.Error("expected removed=false for absent user")
	}

	if ok, _ := q.Contains(ctx, 2); !ok {
		t.Error("user 2 should still be waiting")
	}
	if n, _ := q.Len(ctx); n != 1 {
		t.Errorf("expected len=1, got %d", n)
	}
}
