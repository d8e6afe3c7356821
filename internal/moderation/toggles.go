package moderation

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/veilchat/relay/internal/store"
)

const (
	GenderToggleKey   = "matching:gender_filter_enabled"
	RegionalToggleKey = "matching:regional_filter_enabled"
	BlockedMediaKey   = "moderation:blocked_media"
)

// GenderFilterEnabled reports the global gender-filter toggle. An absent key
// means enabled, for backward compatibility with pre-toggle deployments.
func (s *Store) GenderFilterEnabled(ctx context.Context) (bool, error) {
	return s.toggle(ctx, GenderToggleKey)
}

// RegionalFilterEnabled reports the global country-filter toggle.
func (s *Store) RegionalFilterEnabled(ctx context.Context) (bool, error) {
	return s.toggle(ctx, RegionalToggleKey)
}

// SetGenderFilter flips the global gender-filter toggle. Live pairs are
// never re-evaluated; the toggle affects new matches only.
func (s *Store) SetGenderFilter(ctx context.Context, enabled bool) error {
	return s.setToggle(ctx, GenderToggleKey, enabled)
}

// SetRegionalFilter flips the global country-filter toggle.
func (s *Store) SetRegionalFilter(ctx context.Context, enabled bool) error {
	return s.setToggle(ctx, RegionalToggleKey, enabled)
}

func (s *Store) toggle(ctx context.Context, key string) (bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return true, store.Wrap(err)
	}
	return v != "0", nil
}

func (s *Store) setToggle(ctx context.Context, key string, enabled bool) error {
	v := "0"
	if enabled {
		v = "1"
	}
	return store.Wrap(s.rdb.Set(ctx, key, v, 0).Err())
}

// BlockMedia adds a media type to the globally blocked set.
func (s *Store) BlockMedia(ctx context.Context, mediaType string) error {
	return store.Wrap(s.rdb.SAdd(ctx, BlockedMediaKey, mediaType).Err())
}

// UnblockMedia removes a media type from the blocked set.
func (s *Store) UnblockMedia(ctx context.Context, mediaType string) error {
	return store.Wrap(s.rdb.SRem(ctx, BlockedMediaKey, mediaType).Err())
}

// MediaBlocked reports whether a media type is globally blocked. Fails open
// on store errors.
func (s *Store) MediaBlocked(ctx context.Context, mediaType string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, BlockedMediaKey, mediaType).Result()
	if err != nil {
		return false, store.Wrap(err)
	}
	return ok, nil
}
