// Package ratelimit provides Redis-backed fixed-window rate limiting for
// commands and relayed messages. Counters live under ratelimit:{op}:{uid}
// with the window as TTL. On Redis errors the limiter fails open so a store
// outage does not block legitimate traffic.
package ratelimit

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

// Rule defines one limiting policy: the operation name, the maximum count
// per window, and the window duration.
type Rule struct {
	Op     string // "message", "chat", "next"
	Limit  int
	Window time.Duration
}

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client *redis.Client
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

func ruleKey(rule Rule, id int64) string {
	return keyPrefix + rule.Op + ":" + strconv.FormatInt(id, 10)
}

// Allow checks whether the user is within the rule's limit, incrementing the
// window counter. Returns true if the action is allowed.
func (l *Limiter) Allow(ctx context.Context, id int64, rule Rule) (bool, error) {
	key := ruleKey(rule, id)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[ratelimit] redis INCR error key=%s: %v (failing open)", key, err)
		return true, err
	}

	// The first increment defines the window boundary.
	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			log.Printf("[ratelimit] redis EXPIRE error key=%s: %v (failing open)", key, err)
			// The counter would otherwise persist forever; best effort delete.
			l.client.Del(ctx, key)
			return true, err
		}
	}

	return int(count) <= rule.Limit, nil
}

// RetryAfter returns how long until the user's window resets, for the
// cool-down hint in rate-limit notices. Zero when no window is active.
func (l *Limiter) RetryAfter(ctx context.Context, id int64, rule Rule) time.Duration {
	ttl, err := l.client.TTL(ctx, ruleKey(rule, id)).Result()
	if err != nil || ttl < 0 {
		return 0
	}
	return ttl
}
