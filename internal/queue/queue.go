// Package queue manages the global waiting list of users looking for a
// partner. The list is plain FIFO; priority ordering is applied by the
// matching engine, which hands the store script a pre-ordered candidate list.
package queue

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/veilchat/relay/internal/store"
)

// Queue is the Redis-backed waiting list.
type Queue struct {
	rdb *redis.Client
	max int // 0 means unbounded
}

// New creates a queue with the given capacity cap.
func New(rdb *redis.Client, max int) *Queue {
	return &Queue{rdb: rdb, max: max}
}

// Max returns the configured capacity cap.
func (q *Queue) Max() int { return q.max }

// Push appends a user to the queue tail. Returns store.ErrQueueFull at
// capacity. The user is removed first so a double push cannot duplicate an
// entry.
func (q *Queue) Push(ctx context.Context, id int64) error {
	member := strconv.FormatInt(id, 10)

	if err := q.rdb.LRem(ctx, store.QueueKey, 0, member).Err(); err != nil {
		return store.Wrap(err)
	}
	if q.max > 0 {
		n, err := q.rdb.LLen(ctx, store.QueueKey).Result()
		if err != nil {
			return store.Wrap(err)
		}
		if n >= int64(q.max) {
			return store.ErrQueueFull
		}
	}
	return store.Wrap(q.rdb.RPush(ctx, store.QueueKey, member).Err())
}

// PopFirst removes and returns the head of the queue. ok=false when empty.
func (q *Queue) PopFirst(ctx context.Context) (int64, bool, error) {
	v, err := q.rdb.LPop(ctx, store.QueueKey).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, store.Wrap(err)
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return id, true, nil
}

// Remove deletes every occurrence of a user from the queue and reports
// whether anything was removed.
func (q *Queue) Remove(ctx context.Context, id int64) (bool, error) {
	n, err := q.rdb.LRem(ctx, store.QueueKey, 0, strconv.FormatInt(id, 10)).Result()
	if err != nil {
		return false, store.Wrap(err)
	}
	return n > 0, nil
}

// Len returns the number of waiting users.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, store.QueueKey).Result()
	return n, store.Wrap(err)
}

// Snapshot returns the queue contents in FIFO order.
func (q *Queue) Snapshot(ctx context.Context) ([]int64, error) {
	members, err := q.rdb.LRange(ctx, store.QueueKey, 0, -1).Result()
	if err != nil {
		return nil, store.Wrap(err)
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		if id, err := strconv.ParseInt(m, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Contains reports whether a user is currently waiting.
func (q *Queue) Contains(ctx context.Context, id int64) (bool, error) {
	ids, err := q.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	for _, v := range ids {
		if v == id {
			return true, nil
		}
	}
	return false, nil
}
