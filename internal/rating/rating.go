// Package rating stores per-user feedback counters and derives the score
// that drives matching priority and the toxic-user gate. After every chat
// each participant may rate the other exactly once; the 24h feedback lock
// enforces at-most-one rating per rater/rated pair.
package rating

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veilchat/relay/internal/store"
)

const (
	RatingPrefix   = "rating:"
	FeedbackPrefix = "feedback:"
	PendingPrefix  = "pending_feedback:"

	// FeedbackLockTTL is how long a rater is locked out from re-rating the
	// same partner.
	FeedbackLockTTL = 24 * time.Hour

	// PendingTTL is how long after a chat ends a rating is still accepted.
	PendingTTL = 5 * time.Minute

	// NeutralScore is the derived score of a user with no ratings.
	NeutralScore = 50.0

	toxicBelow      = 30.0
	toxicMinVotes   = 5
	priorityAtLeast = 70.0
	priorityMinVotes = 3
)

// ErrAlreadyRated is returned when the feedback lock for this rater/rated
// pair is still live.
var ErrAlreadyRated = errors.New("rating: already rated this partner")

// Record is the stored rating state for one user.
type Record struct {
	Positive   int `redis:"positive"`
	Negative   int `redis:"negative"`
	TotalChats int `redis:"total_chats"`
}

// Score derives the 0..100 approval score. Unrated users sit at neutral.
func (r Record) Score() float64 {
	total := r.Positive + r.Negative
	if total == 0 {
		return NeutralScore
	}
	return float64(r.Positive) / float64(total) * 100
}

// Toxic reports whether the user is excluded from matching.
func (r Record) Toxic() bool {
	return r.Positive+r.Negative >= toxicMinVotes && r.Score() < toxicBelow
}

// Priority reports whether the user is matched ahead of neutral users.
func (r Record) Priority() bool {
	return r.Positive+r.Negative >= priorityMinVotes && r.Score() >= priorityAtLeast
}

// Store manages rating records in Redis.
type Store struct {
	rdb *redis.Client
}

// NewStore creates a rating store.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func key(prefix string, id int64) string {
	return prefix + strconv.FormatInt(id, 10)
}

// Get returns a user's rating record. A user who was never rated yields the
// zero Record.
func (s *Store) Get(ctx context.Context, id int64) (Record, error) {
	var r Record
	err := s.rdb.HGetAll(ctx, key(RatingPrefix, id)).Scan(&r)
	if err != nil {
		return Record{}, store.Wrap(err)
	}
	return r, nil
}

// IncrTotalChats bumps the chat counter for both members of a new pair.
func (s *Store) IncrTotalChats(ctx context.Context, a, b int64) error {
	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, key(RatingPrefix, a), "total_chats", 1)
	pipe.HIncrBy(ctx, key(RatingPrefix, b), "total_chats", 1)
	_, err := pipe.Exec(ctx)
	return store.Wrap(err)
}

// Rate records one feedback vote from rater about rated. The vote is
// rejected with ErrAlreadyRated while the 24h lock for this ordered pair is
// live. No notification reaches the rated user.
func (s *Store) Rate(ctx context.Context, rater, rated int64, positive bool) error {
	lock := FeedbackPrefix + strconv.FormatInt(rater, 10) + ":" + strconv.FormatInt(rated, 10)

	ok, err := s.rdb.SetNX(ctx, lock, "1", FeedbackLockTTL).Result()
	if err != nil {
		return store.Wrap(err)
	}
	if !ok {
		return ErrAlreadyRated
	}

	field := "negative"
	if positive {
		field = "positive"
	}
	return store.Wrap(s.rdb.HIncrBy(ctx, key(RatingPrefix, rated), field, 1).Err())
}

// SetPending points a recently unpaired user at the partner they may rate.
func (s *Store) SetPending(ctx context.Context, id, partner int64) error {
	return store.Wrap(s.rdb.Set(ctx, key(PendingPrefix, id), strconv.FormatInt(partner, 10), PendingTTL).Err())
}

// Pending returns the partner a user may still rate, ok=false when the
// window has passed.
func (s *Store) Pending(ctx context.Context, id int64) (int64, bool, error) {
	v, err := s.rdb.Get(ctx, key(PendingPrefix, id)).Result()
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

// ClearPending drops the pending-feedback pointer, if any.
func (s *Store) ClearPending(ctx context.Context, id int64) error {
	return store.Wrap(s.rdb.Del(ctx, key(PendingPrefix, id)).Err())
}
