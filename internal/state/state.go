// Package state tracks each user's position in the relay state machine:
// idle, waiting in the queue, or chatting. The truth lives entirely in Redis
// so any bot process can serve any user. An absent state key means idle.
package state

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veilchat/relay/internal/store"
)

// ActiveKey is a sorted set of users currently in a chat, scored by their
// last activity time. It is the inactivity sweeper's scan index.
const ActiveKey = "chats:active"

// Store reads and refreshes user state and pair pointers.
type Store struct {
	rdb     *redis.Client
	chatTTL time.Duration
}

// NewStore creates a state store. chatTTL bounds how long an untouched
// state or pair key survives.
func NewStore(rdb *redis.Client, chatTTL time.Duration) *Store {
	return &Store{rdb: rdb, chatTTL: chatTTL}
}

func uid(id int64) string { return strconv.FormatInt(id, 10) }

// Status returns the user's current status. Absent key means idle.
func (s *Store) Status(ctx context.Context, id int64) (string, error) {
	v, err := s.rdb.Get(ctx, store.StatePrefix+uid(id)).Result()
	if errors.Is(err, redis.Nil) {
		return store.StatusIdle, nil
	}
	if err != nil {
		return "", store.Wrap(err)
	}
	return v, nil
}

// Partner returns the user's current chat partner, reporting ok=false when
// the user is not paired.
func (s *Store) Partner(ctx context.Context, id int64) (int64, bool, error) {
	v, err := s.rdb.Get(ctx, store.PairPrefix+uid(id)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, store.Wrap(err)
	}
	p, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return p, true, nil
}

// Touch refreshes the state and pair TTLs for a chatting user and records
// the activity time in the active-chats index.
func (s *Store) Touch(ctx context.Context, id int64) error {
	now := float64(time.Now().Unix())
	pipe := s.rdb.Pipeline()
	pipe.Expire(ctx, store.StatePrefix+uid(id), s.chatTTL)
	pipe.Expire(ctx, store.PairPrefix+uid(id), s.chatTTL)
	pipe.ZAdd(ctx, ActiveKey, redis.Z{Score: now, Member: uid(id)})
	_, err := pipe.Exec(ctx)
	return store.Wrap(err)
}

// TrackActive adds both members of a new pair to the active-chats index.
func (s *Store) TrackActive(ctx context.Context, a, b int64) error {
	now := float64(time.Now().Unix())
	err := s.rdb.ZAdd(ctx, ActiveKey,
		redis.Z{Score: now, Member: uid(a)},
		redis.Z{Score: now, Member: uid(b)},
	).Err()
	return store.Wrap(err)
}

// Untrack removes users from the active-chats index after a pair breaks.
func (s *Store) Untrack(ctx context.Context, ids ...int64) error {
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = uid(id)
	}
	return store.Wrap(s.rdb.ZRem(ctx, ActiveKey, members...).Err())
}

// StaleActive returns users whose last activity is older than cutoff,
// oldest first.
func (s *Store) StaleActive(ctx context.Context, cutoff time.Time) ([]int64, error) {
	members, err := s.rdb.ZRangeByScore(ctx, ActiveKey, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
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

// ActiveCount returns the number of users in the active-chats index.
func (s *Store) ActiveCount(ctx context.Context) (int64, error) {
	n, err := s.rdb.ZCard(ctx, ActiveKey).Result()
	return n, store.Wrap(err)
}

// SetQueued marks a user as waiting. Used by queue reconciliation; the
// normal enqueue path goes through the join_or_match script.
func (s *Store) SetQueued(ctx context.Context, id int64) error {
	return store.Wrap(s.rdb.Set(ctx, store.StatePrefix+uid(id), store.StatusQueued, s.chatTTL).Err())
}

// ClearState deletes the state key, returning the user to idle.
func (s *Store) ClearState(ctx context.Context, id int64) error {
	return store.Wrap(s.rdb.Del(ctx, store.StatePrefix+uid(id)).Err())
}
