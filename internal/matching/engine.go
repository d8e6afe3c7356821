// Package matching pairs users under preference compatibility and
// rating-based priority. The engine reads its candidate view outside the
// store, then hands an ordered list to the join_or_match script, which
// guarantees the winner was still queued at decision time.
package matching

import (
	"context"
	"errors"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/veilchat/relay/internal/metrics"
	"github.com/veilchat/relay/internal/moderation"
	"github.com/veilchat/relay/internal/profile"
	"github.com/veilchat/relay/internal/queue"
	"github.com/veilchat/relay/internal/rating"
	"github.com/veilchat/relay/internal/state"
	"github.com/veilchat/relay/internal/store"
)

// RejectReason explains why FindPartner refused to act.
type RejectReason string

const (
	RejectBanned        RejectReason = "banned"
	RejectToxic         RejectReason = "toxic"
	RejectAlreadyActive RejectReason = "already_active"
	RejectQueueFull     RejectReason = "queue_full"
)

// Outcome discriminates Result.
type Outcome int

const (
	Matched Outcome = iota
	Queued
	Rejected
)

// Result is the outcome of one FindPartner call.
type Result struct {
	Outcome Outcome
	Partner int64        // set when Outcome == Matched
	Reason  RejectReason // set when Outcome == Rejected
}

// Engine implements partner search.
type Engine struct {
	store      *store.Client
	states     *state.Store
	queue      *queue.Queue
	profiles   *profile.Reader
	ratings    *rating.Store
	moderation *moderation.Store
	pairTTL    time.Duration
}

// NewEngine wires the matching engine.
func NewEngine(st *store.Client, states *state.Store, q *queue.Queue, profiles *profile.Reader,
	ratings *rating.Store, mod *moderation.Store, pairTTL time.Duration) *Engine {
	return &Engine{
		store:      st,
		states:     states,
		queue:      q,
		profiles:   profiles,
		ratings:    ratings,
		moderation: mod,
		pairTTL:    pairTTL,
	}
}

// candidate is one waiting user with everything compatibility needs.
type candidate struct {
	id     int64
	prof   profile.Profile
	prefs  profile.Preferences
	rec    rating.Record
	fifo   int // original queue position, the tie-break
}

// FindPartner tries to pair me with the best waiting candidate, parking me
// on the queue when none fits.
func (e *Engine) FindPartner(ctx context.Context, me int64) (Result, error) {
	banned, err := e.moderation.IsBanned(ctx, me)
	if err != nil {
		return Result{}, err
	}
	if banned {
		return Result{Outcome: Rejected, Reason: RejectBanned}, nil
	}

	myRec, err := e.ratings.Get(ctx, me)
	if err != nil {
		return Result{}, err
	}
	if myRec.Toxic() {
		return Result{Outcome: Rejected, Reason: RejectToxic}, nil
	}

	status, err := e.states.Status(ctx, me)
	if err != nil {
		return Result{}, err
	}
	if status != store.StatusIdle {
		return Result{Outcome: Rejected, Reason: RejectAlreadyActive}, nil
	}

	candidates, err := e.rankedCandidates(ctx, me)
	if err != nil {
		return Result{}, err
	}

	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}

	partner, queued, err := e.store.JoinOrMatch(ctx, me, e.pairTTL, e.queue.Max(), ids)
	if errors.Is(err, store.ErrQueueFull) {
		return Result{Outcome: Rejected, Reason: RejectQueueFull}, nil
	}
	if err != nil {
		return Result{}, err
	}
	if queued {
		e.stampQueuedAt(ctx, me)
		return Result{Outcome: Queued}, nil
	}
	e.observeWait(ctx, partner)
	return Result{Outcome: Matched, Partner: partner}, nil
}

// queuedAtPrefix keys record when a user joined the queue, feeding the
// match-wait histogram. Best effort: the key expires on its own if the user
// is never matched.
const (
	queuedAtPrefix = "queued_at:"
	queuedAtTTL    = time.Hour
)

func (e *Engine) stampQueuedAt(ctx context.Context, id int64) {
	key := queuedAtPrefix + strconv.FormatInt(id, 10)
	if err := e.store.Redis().Set(ctx, key, time.Now().Unix(), queuedAtTTL).Err(); err != nil {
		log.Printf("[matcher] stamp queued_at for %d: %v", id, err)
	}
}

func (e *Engine) observeWait(ctx context.Context, id int64) {
	key := queuedAtPrefix + strconv.FormatInt(id, 10)
	v, err := e.store.Redis().GetDel(ctx, key).Result()
	if err != nil {
		return
	}
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return
	}
	metrics.MatchWait.Observe(time.Since(time.Unix(sec, 0)).Seconds())
}

// rankedCandidates snapshots the queue, drops self/toxic/incompatible users,
// and orders the rest by rating tier (priority, neutral, low score), FIFO
// within a tier.
func (e *Engine) rankedCandidates(ctx context.Context, me int64) ([]candidate, error) {
	snapshot, err := e.queue.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if len(snapshot) == 0 {
		return nil, nil
	}

	genderOn, err := e.moderation.GenderFilterEnabled(ctx)
	if err != nil {
		return nil, err
	}
	regionalOn, err := e.moderation.RegionalFilterEnabled(ctx)
	if err != nil {
		return nil, err
	}

	myProf, err := e.profiles.Profile(ctx, me)
	if err != nil {
		return nil, err
	}
	myPrefs, err := e.profiles.Preferences(ctx, me)
	if err != nil {
		return nil, err
	}

	mine := candidate{id: me, prof: myProf, prefs: myPrefs}

	var out []candidate
	for i, id := range snapshot {
		if id == me {
			continue
		}

		rec, err := e.ratings.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec.Toxic() {
			continue
		}

		prof, err := e.profiles.Profile(ctx, id)
		if err != nil {
			return nil, err
		}
		prefs, err := e.profiles.Preferences(ctx, id)
		if err != nil {
			return nil, err
		}

		cand := candidate{id: id, prof: prof, prefs: prefs, rec: rec, fifo: i}
		if !compatible(mine, cand, genderOn, regionalOn) {
			continue
		}
		out = append(out, cand)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := tier(out[i].rec), tier(out[j].rec)
		if ti != tj {
			return ti < tj
		}
		return out[i].fifo < out[j].fifo
	})

	if len(out) > 0 {
		log.Printf("[matcher] user=%d candidates=%d (queue=%d)", me, len(out), len(snapshot))
	}
	return out, nil
}

// tier maps a rating record onto the priority ordering: priority users
// first, then neutral, then low-score.
func tier(r rating.Record) int {
	switch {
	case r.Priority():
		return 0
	case r.Score() >= rating.NeutralScore:
		return 1
	default:
		return 2
	}
}

// compatible applies the mutual preference check, modulated by the global
// toggles. Toxic users are filtered before this point.
func compatible(a, b candidate, genderOn, regionalOn bool) bool {
	if a.id == b.id {
		return false
	}
	if genderOn {
		if !profile.Satisfies(a.prof.Gender, b.prefs.GenderFilter) {
			return false
		}
		if !profile.Satisfies(b.prof.Gender, a.prefs.GenderFilter) {
			return false
		}
	}
	if regionalOn {
		if !profile.Satisfies(a.prof.Country, b.prefs.CountryFilter) {
			return false
		}
		if !profile.Satisfies(b.prof.Country, a.prefs.CountryFilter) {
			return false
		}
	}
	return true
}
