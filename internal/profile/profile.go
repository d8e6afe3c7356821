// Package profile is a read-only view over user profiles and matching
// preferences. Profile editing is a separate surface; the relay core only
// reads the fields that feed compatibility checks and the match card.
package profile

import (
	"context"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/veilchat/relay/internal/store"
)

const (
	ProfilePrefix     = "profile:"
	PreferencesPrefix = "preferences:"

	// FilterAny disables a preference dimension.
	FilterAny = "any"
)

// Profile holds the stored profile fields the core reads. Empty strings mean
// the user never set the field.
type Profile struct {
	Nickname string `redis:"nickname"`
	Gender   string `redis:"gender"` // male | female | other | ""
	Country  string `redis:"country"`
}

// Preferences holds a user's matching filters. Zero values mean "any".
type Preferences struct {
	GenderFilter  string `redis:"gender_filter"`
	CountryFilter string `redis:"country_filter"`
}

// Reader reads profiles and preferences from Redis.
type Reader struct {
	rdb *redis.Client
}

// NewReader creates a profile reader.
func NewReader(rdb *redis.Client) *Reader {
	return &Reader{rdb: rdb}
}

// Profile returns the stored profile for a user. A user with no profile
// yields the zero Profile.
func (r *Reader) Profile(ctx context.Context, id int64) (Profile, error) {
	var p Profile
	err := r.rdb.HGetAll(ctx, ProfilePrefix+strconv.FormatInt(id, 10)).Scan(&p)
	if err != nil {
		return Profile{}, store.Wrap(err)
	}
	return p, nil
}

// Preferences returns the stored filters for a user, defaulting both
// dimensions to "any".
func (r *Reader) Preferences(ctx context.Context, id int64) (Preferences, error) {
	var p Preferences
	err := r.rdb.HGetAll(ctx, PreferencesPrefix+strconv.FormatInt(id, 10)).Scan(&p)
	if err != nil {
		return Preferences{}, store.Wrap(err)
	}
	if p.GenderFilter == "" {
		p.GenderFilter = FilterAny
	}
	if p.CountryFilter == "" {
		p.CountryFilter = FilterAny
	}
	return p, nil
}

// Satisfies reports whether a stored attribute value passes a filter.
// "any" passes everything; a missing attribute passes only "any".
func Satisfies(value, filter string) bool {
	if strings.EqualFold(filter, FilterAny) || filter == "" {
		return true
	}
	if value == "" {
		return false
	}
	return strings.EqualFold(value, filter)
}

// Card renders the one-time partner introduction shown on match. It never
// contains the partner's ID or platform handle.
func (p Profile) Card() string {
	nickname := p.Nickname
	if nickname == "" {
		nickname = "Anonymous"
	}
	gender := p.Gender
	if gender == "" {
		gender = "not set"
	}
	country := p.Country
	if country == "" {
		country = "not set"
	}
	return "Partner found!\nNickname: " + nickname + "\nGender: " + gender + "\nCountry: " + country
}
