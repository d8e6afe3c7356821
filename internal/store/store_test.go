package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newTestClient creates a Client backed by an in-process Redis.
func newTestClient(t *testing.T) (*Client, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewWithClient(rdb), rdb
}

func TestJoinOrMatch_EmptyQueue_Queues(t *testing.T) {
	c, rdb := newTestClient(t)
	ctx := context.Background()

	partner, queued, err := c.JoinOrMatch(ctx, 1, time.Minute, 10, nil)
	if err != nil {
		t.Fatalf("JoinOrMatch() error: %v", err)
	}
	if !queued {
		t.Fatalf("expected queued=true, got partner=%d", partner)
	}

	if got := rdb.LRange(ctx, QueueKey, 0, -1).Val(); len(got) != 1 || got[0] != "1" {
		t.Errorf("expected queue [1], got %v", got)
	}
	if got := rdb.Get(ctx, StatePrefix+"1").Val(); got != StatusQueued {
		t.Errorf("expected state %q, got %q", StatusQueued, got)
	}
}

func TestJoinOrMatch_ClaimsFirstCandidate(t *testing.T) {
	c, rdb := newTestClient(t)
	ctx := context.Background()

	rdb.RPush(ctx, QueueKey, "7", "9")
	rdb.Set(ctx, StatePrefix+"7", StatusQueued, time.Minute)
	rdb.Set(ctx, StatePrefix+"9", StatusQueued, time.Minute)

	// Candidate order is the engine's priority order, not queue order.
	partner, queued, err := c.JoinOrMatch(ctx, 1, time.Minute, 10, []int64{9, 7})
	if err != nil {
		t.Fatalf("JoinOrMatch() error: %v", err)
	}
	if queued {
		t.Fatal("expected a match, got queued")
	}
	if partner != 9 {
		t.Fatalf("expected partner=9, got %d", partner)
	}

	// Both pointers mutual, both states chatting.
	if got := rdb.Get(ctx, PairPrefix+"1").Val(); got != "9" {
		t.Errorf("pair:1 = %q, want 9", got)
	}
	if got := rdb.Get(ctx, PairPrefix+"9").Val(); got != "1" {
		t.Errorf("pair:9 = %q, want 1", got)
	}
	if got := rdb.Get(ctx, StatePrefix+"1").Val(); got != StatusChatting {
		t.Errorf("state:1 = %q, want %q", got, StatusChatting)
	}
	if got := rdb.Get(ctx, StatePrefix+"9").Val(); got != StatusChatting {
		t.Errorf("state:9 = %q, want %q", got, StatusChatting)
	}

	// The loser stays queued.
	if got := rdb.LRange(ctx, QueueKey, 0, -1).Val(); len(got) != 1 || got[0] != "7" {
		t.Errorf("expected queue [7], got %v", got)
	}
}

func TestJoinOrMatch_SkipsDepartedCandidate(t *testing.T) {
	c, rdb := newTestClient(t)
	ctx := context.Background()

	// 9 was snapshotted but left before the script ran; 7 is still there.
	rdb.RPush(ctx, QueueKey, "7")

	partner, queued, err := c.JoinOrMatch(ctx, 1, time.Minute, 10, []int64{9, 7})
	if err != nil {
		t.Fatalf("JoinOrMatch() error: %v", err)
	}
	if queued || partner != 7 {
		t.Fatalf("expected partner=7, got partner=%d queued=%v", partner, queued)
	}
}

func TestJoinOrMatch_AllCandidatesGone_Queues(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, queued, err := c.JoinOrMatch(ctx, 1, time.Minute, 10, []int64{9, 7})
	if err != nil {
		t.Fatalf("JoinOrMatch() error: %v", err)
	}
	if !queued {
		t.Fatal("expected queued=true when no candidate survives")
	}
}

func TestJoinOrMatch_QueueFull(t *testing.T) {
	c, rdb := newTestClient(t)
	ctx := context.Background()

	rdb.RPush(ctx, QueueKey, "2", "3")

	_, _, err := c.JoinOrMatch(ctx, 1, time.Minute, 2, nil)
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if n := rdb.LLen(ctx, QueueKey).Val(); n != 2 {
		t.Errorf("queue length changed: %d", n)
	}
}

func TestJoinOrMatch_RejoinDoesNotDuplicate(t *testing.T) {
	c, rdb := newTestClient(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := c.JoinOrMatch(ctx, 1, time.Minute, 10, nil); err != nil {
			t.Fatalf("JoinOrMatch() #%d error: %v", i, err)
		}
	}
	if n := rdb.LLen(ctx, QueueKey).Val(); n != 1 {
		t.Errorf("expected 1 queue entry after rejoin, got %d", n)
	}
}

func TestBreakPair(t *testing.T) {
	c, rdb := newTestClient(t)
	ctx := context.Background()

	rdb.RPush(ctx, QueueKey, "2")
	if _, _, err := c.JoinOrMatch(ctx, 1, time.Minute, 10, []int64{2}); err != nil {
		t.Fatalf("JoinOrMatch() error: %v", err)
	}

	broke, err := c.BreakPair(ctx, 1, 2)
	if err != nil {
		t.Fatalf("BreakPair() error: %v", err)
	}
	if !broke {
		t.Fatal("expected broke=true")
	}

	// Both pair and state keys are gone; absent state means idle.
	for _, key := range []string{PairPrefix + "1", PairPrefix + "2", StatePrefix + "1", StatePrefix + "2"} {
		if rdb.Exists(ctx, key).Val() != 0 {
			t.Errorf("key %s still exists after break", key)
		}
	}
}

func TestBreakPair_LostRace(t *testing.T) {
	c, rdb := newTestClient(t)
	ctx := context.Background()

	rdb.RPush(ctx, QueueKey, "2")
	if _, _, err := c.JoinOrMatch(ctx, 1, time.Minute, 10, []int64{2}); err != nil {
		t.Fatalf("JoinOrMatch() error: %v", err)
	}

	if broke, _ := c.BreakPair(ctx, 1, 2); !broke {
		t.Fatal("first break should win")
	}
	broke, err := c.BreakPair(ctx, 2, 1)
	if err != nil {
		t.Fatalf("BreakPair() error: %v", err)
	}
	if broke {
		t.Error("second break should report false")
	}
}

func TestBreakPair_MismatchedPointers(t *testing.T) {
	c, rdb := newTestClient(t)
	ctx := context.Background()

	// 1 points at 2, but 2 points at 3. Nothing must be deleted.
	rdb.Set(ctx, PairPrefix+"1", "2", 0)
	rdb.Set(ctx, PairPrefix+"2", "3", 0)

	broke, err := c.BreakPair(ctx, 1, 2)
	if err != nil {
		t.Fatalf("BreakPair() error: %v", err)
	}
	if broke {
		t.Error("expected broke=false for mismatched pointers")
	}
	if rdb.Exists(ctx, PairPrefix+"2").Val() != 1 {
		t.Error("pair:2 was deleted despite mismatch")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil) != nil {
		t.Error("Wrap(nil) != nil")
	}
	if Wrap(redis.Nil) != nil {
		t.Error("Wrap(redis.Nil) != nil, key-absent is not an outage")
	}
	err := Wrap(errors.New("connection refused"))
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}
