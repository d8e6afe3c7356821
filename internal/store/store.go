// Package store provides the Redis connection shared by every relay store
// and registers the two server-side scripts that cover the only multi-key
// mutations in the system: pair creation and pair teardown. All other state
// changes touch a single user and are safe as individual commands.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// StatePrefix is the Redis key prefix for per-user status strings.
	StatePrefix = "state:"

	// PairPrefix is the Redis key prefix for partner pointers.
	PairPrefix = "pair:"

	// QueueKey is the global waiting list of user IDs.
	QueueKey = "queue:waiting"

	// Status values stored under state:{uid}. An absent key means idle.
	StatusIdle     = "idle"
	StatusQueued   = "in_queue"
	StatusChatting = "in_chat"
)

// ErrUnavailable wraps any Redis failure so handlers can surface a single
// generic service notice instead of leaking command errors to users.
var ErrUnavailable = errors.New("store: unavailable")

// ErrQueueFull is returned when the waiting list is at capacity.
var ErrQueueFull = errors.New("store: queue full")

// Client wraps the Redis connection and the registered scripts.
type Client struct {
	rdb         *redis.Client
	joinOrMatch *redis.Script
	breakPair   *redis.Script
}

// New connects to Redis at addr and verifies the connection.
func New(addr string) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("store: redis connection failed: %w", err)
	}

	return NewWithClient(rdb), nil
}

// NewWithClient wraps an existing Redis client. Used by tests.
func NewWithClient(rdb *redis.Client) *Client {
	return &Client{
		rdb:         rdb,
		joinOrMatch: redis.NewScript(joinOrMatchLua),
		breakPair:   redis.NewScript(breakPairLua),
	}
}

// Redis returns the underlying client for the per-concern stores.
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Wrap classifies err as a store outage. redis.Nil (key absent) is not an
// outage and passes through as nil.
func Wrap(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// JoinOrMatch atomically claims the first candidate that is still on the
// waiting list. On a claim it sets both pair pointers and both states to
// in_chat and returns the partner ID. If no candidate survives it appends
// me to the queue tail, sets my state to in_queue, and reports queued=true.
// Candidates must arrive pre-filtered and in priority order; the script only
// guarantees the winner was still queued at decision time.
func (c *Client) JoinOrMatch(ctx context.Context, me int64, pairTTL time.Duration, maxQueue int, candidates []int64) (partner int64, queued bool, err error) {
	args := make([]interface{}, 0, len(candidates)+3)
	args = append(args, strconv.FormatInt(me, 10), int(pairTTL.Seconds()), maxQueue)
	for _, id := range candidates {
		args = append(args, strconv.FormatInt(id, 10))
	}

	res, err := c.joinOrMatch.Run(ctx, c.rdb, []string{QueueKey}, args...).Text()
	if err != nil {
		return 0, false, Wrap(err)
	}

	switch res {
	case "queued":
		return 0, true, nil
	case "full":
		return 0, false, ErrQueueFull
	}

	id, err := strconv.ParseInt(res, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("store: join_or_match returned %q: %w", res, err)
	}
	return id, false, nil
}

// BreakPair tears down the pair a<->b iff both pointers still agree. Both
// pair keys and both state keys are deleted in one atomic step (absent state
// means idle). Returns false when the pair no longer exists, which makes
// concurrent stop/next/ban races converge on a single winner.
func (c *Client) BreakPair(ctx context.Context, a, b int64) (bool, error) {
	res, err := c.breakPair.Run(ctx, c.rdb,
		[]string{PairPrefix + strconv.FormatInt(a, 10), PairPrefix + strconv.FormatInt(b, 10)},
		strconv.FormatInt(a, 10), strconv.FormatInt(b, 10)).Int()
	if err != nil {
		return false, Wrap(err)
	}
	return res == 1, nil
}

// joinOrMatchLua pops the first still-queued candidate and links the pair,
// or parks the caller on the queue tail. Single-instance key construction:
// the relay runs against one Redis, not a cluster.
const joinOrMatchLua = `
local queue = KEYS[1]
local me = ARGV[1]
local ttl = tonumber(ARGV[2])
local max_queue = tonumber(ARGV[3])

for i = 4, #ARGV do
    local cand = ARGV[i]
    if redis.call('LREM', queue, 1, cand) > 0 then
        redis.call('SET', 'pair:'..me, cand, 'EX', ttl)
        redis.call('SET', 'pair:'..cand, me, 'EX', ttl)
        redis.call('SET', 'state:'..me, 'in_chat', 'EX', ttl)
        redis.call('SET', 'state:'..cand, 'in_chat', 'EX', ttl)
        return cand
    end
end

redis.call('LREM', queue, 0, me)
if max_queue > 0 and redis.call('LLEN', queue) >= max_queue then
    return 'full'
end
redis.call('RPUSH', queue, me)
redis.call('SET', 'state:'..me, 'in_queue', 'EX', ttl)
return 'queued'
`

// breakPairLua deletes both pair pointers and both state keys iff the pair
// is still mutual.
const breakPairLua = `
local a = ARGV[1]
local b = ARGV[2]
if redis.call('GET', KEYS[1]) == b and redis.call('GET', KEYS[2]) == a then
    redis.call('DEL', KEYS[1], KEYS[2], 'state:'..a, 'state:'..b)
    return 1
end
return 0
`
