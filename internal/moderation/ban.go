// Package moderation holds the enforcement state that gates every relay and
// enqueue operation: ban records, warnings, report counters, global filter
// toggles, blocked media types, and the text content filter. Enforcement is
// purely at-gate; the record's presence is checked by the router and by
// every command handler.
package moderation

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veilchat/relay/internal/store"
)

const (
	BanPrefix         = "ban:"
	BannedSetKey      = "bot:banned_users"
	WarningsPrefix    = "warnings:"
	WarningCountPrefix = "warning_count:"
	WarnedSetKey      = "bot:warning_list"
	ReportCountSuffix = ":report_count"
	reportCountPrefix = "stats:"

	// SystemActor marks auto-bans issued by the report threshold.
	SystemActor = "system"
)

// Ban reasons accepted by Ban and Warn.
const (
	ReasonNudity      = "nudity"
	ReasonSpam        = "spam"
	ReasonAbuse       = "abuse"
	ReasonFakeReports = "fake_reports"
	ReasonHarassment  = "harassment"
)

var validReasons = map[string]bool{
	ReasonNudity:      true,
	ReasonSpam:        true,
	ReasonAbuse:       true,
	ReasonFakeReports: true,
	ReasonHarassment:  true,
}

// ErrInvalidReason is returned for a reason outside the accepted set.
var ErrInvalidReason = errors.New("moderation: invalid reason")

// ValidReason reports whether reason is in the accepted set.
func ValidReason(reason string) bool { return validReasons[reason] }

// BanRecord is the stored detail of one ban.
type BanRecord struct {
	BannedBy    string `redis:"banned_by"`
	Reason      string `redis:"reason"`
	BannedAt    int64  `redis:"banned_at"`
	ExpiresAt   int64  `redis:"expires_at"` // 0 for permanent
	IsPermanent bool   `redis:"is_permanent"`
	IsAutoBan   bool   `redis:"is_auto_ban"`
}

// Store manages moderation state in Redis.
type Store struct {
	rdb              *redis.Client
	autoBanThreshold int
	autoBanDuration  time.Duration
}

// NewStore creates a moderation store. autoBanThreshold is the report count
// that triggers an automatic ban of autoBanDuration.
func NewStore(rdb *redis.Client, autoBanThreshold int, autoBanDuration time.Duration) *Store {
	return &Store{rdb: rdb, autoBanThreshold: autoBanThreshold, autoBanDuration: autoBanDuration}
}

func uid(id int64) string { return strconv.FormatInt(id, 10) }

// Ban records a ban for target. duration <= 0 means permanent. Temporary
// bans expire through the record's TTL; the banned set is pruned lazily.
func (s *Store) Ban(ctx context.Context, target int64, reason, by string, duration time.Duration, autoBan bool) error {
	if !validReasons[reason] {
		return ErrInvalidReason
	}

	now := time.Now()
	rec := map[string]interface{}{
		"banned_by":    by,
		"reason":       reason,
		"banned_at":    now.Unix(),
		"expires_at":   0,
		"is_permanent": duration <= 0,
		"is_auto_ban":  autoBan,
	}
	if duration > 0 {
		rec["expires_at"] = now.Add(duration).Unix()
	}

	key := BanPrefix + uid(target)
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, rec)
	if duration > 0 {
		pipe.Expire(ctx, key, duration)
	} else {
		pipe.Persist(ctx, key)
	}
	pipe.SAdd(ctx, BannedSetKey, uid(target))
	_, err := pipe.Exec(ctx)
	return store.Wrap(err)
}

// Unban lifts a ban. Unbanning a user who is not banned is a no-op; the
// return value reports whether a record existed.
func (s *Store) Unban(ctx context.Context, target int64) (bool, error) {
	pipe := s.rdb.Pipeline()
	del := pipe.Del(ctx, BanPrefix+uid(target))
	pipe.SRem(ctx, BannedSetKey, uid(target))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, store.Wrap(err)
	}
	return del.Val() > 0, nil
}

// IsBanned reports whether target is currently banned. Store errors fail
// open so a Redis outage does not lock every user out.
func (s *Store) IsBanned(ctx context.Context, target int64) (bool, error) {
	n, err := s.rdb.Exists(ctx, BanPrefix+uid(target)).Result()
	if err != nil {
		return false, store.Wrap(err)
	}
	if n == 0 {
		// Prune the listing set once the TTL has fired.
		s.rdb.SRem(ctx, BannedSetKey, uid(target))
		return false, nil
	}
	return true, nil
}

// Get returns the ban record for target, ok=false when not banned.
func (s *Store) Get(ctx context.Context, target int64) (BanRecord, bool, error) {
	cmd := s.rdb.HGetAll(ctx, BanPrefix+uid(target))
	if err := cmd.Err(); err != nil {
		return BanRecord{}, false, store.Wrap(err)
	}
	if len(cmd.Val()) == 0 {
		return BanRecord{}, false, nil
	}

	var rec BanRecord
	if err := cmd.Scan(&rec); err != nil {
		return BanRecord{}, false, store.Wrap(err)
	}
	return rec, true, nil
}

// ListBanned returns the IDs with live ban records, pruning expired entries
// from the listing set along the way.
func (s *Store) ListBanned(ctx context.Context) ([]int64, error) {
	members, err := s.rdb.SMembers(ctx, BannedSetKey).Result()
	if err != nil {
		return nil, store.Wrap(err)
	}

	var ids []int64
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		banned, err := s.IsBanned(ctx, id)
		if err != nil {
			return nil, err
		}
		if banned {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Warn appends a warning for target and tracks the user on the warning list.
func (s *Store) Warn(ctx context.Context, target int64, reason, by string) error {
	if !validReasons[reason] {
		return ErrInvalidReason
	}

	entry := reason + "|" + by + "|" + strconv.FormatInt(time.Now().Unix(), 10)
	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, WarningsPrefix+uid(target), entry)
	pipe.Incr(ctx, WarningCountPrefix+uid(target))
	pipe.SAdd(ctx, WarnedSetKey, uid(target))
	_, err := pipe.Exec(ctx)
	return store.Wrap(err)
}

// WarningCount returns how many warnings target has received.
func (s *Store) WarningCount(ctx context.Context, target int64) (int, error) {
	n, err := s.rdb.Get(ctx, WarningCountPrefix+uid(target)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, store.Wrap(err)
	}
	return n, nil
}

// Warnings returns the raw warning entries for target, oldest first.
func (s *Store) Warnings(ctx context.Context, target int64) ([]string, error) {
	entries, err := s.rdb.LRange(ctx, WarningsPrefix+uid(target), 0, -1).Result()
	return entries, store.Wrap(err)
}

// ListWarned returns every user that has at least one warning.
func (s *Store) ListWarned(ctx context.Context) ([]int64, error) {
	members, err := s.rdb.SMembers(ctx, WarnedSetKey).Result()
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

// RecordReport increments the report counter for target. When the counter
// reaches the auto-ban threshold and the user is not already banned, a
// temporary system ban is issued. Returns the new count and whether an
// auto-ban fired.
func (s *Store) RecordReport(ctx context.Context, target int64) (int64, bool, error) {
	key := reportCountPrefix + uid(target) + ReportCountSuffix
	count, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, false, store.Wrap(err)
	}

	if count < int64(s.autoBanThreshold) {
		return count, false, nil
	}

	banned, err := s.IsBanned(ctx, target)
	if err != nil || banned {
		return count, false, err
	}

	if err := s.Ban(ctx, target, ReasonAbuse, SystemActor, s.autoBanDuration, true); err != nil {
		return count, false, err
	}
	return count, true, nil
}

// ReportCount returns the current report counter for target.
func (s *Store) ReportCount(ctx context.Context, target int64) (int64, error) {
	n, err := s.rdb.Get(ctx, reportCountPrefix+uid(target)+ReportCountSuffix).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, store.Wrap(err)
}
