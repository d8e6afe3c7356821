// Package session owns the pair lifecycle: creation after a match, teardown
// from every cause, admin force-match, and the inactivity sweeper. All pair
// mutations go through the atomic store scripts, so a half-paired state is
// never observable.
package session

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/veilchat/relay/internal/events"
	"github.com/veilchat/relay/internal/metrics"
	"github.com/veilchat/relay/internal/moderation"
	"github.com/veilchat/relay/internal/profile"
	"github.com/veilchat/relay/internal/queue"
	"github.com/veilchat/relay/internal/rating"
	"github.com/veilchat/relay/internal/state"
	"github.com/veilchat/relay/internal/store"
	"github.com/veilchat/relay/internal/transport"
)

// Break causes, recorded on pair.broken events and driving the ending
// notification text.
const (
	CauseStop        = "stop"
	CauseNext        = "next"
	CauseBan         = "ban"
	CauseInactivity  = "inactivity"
	CauseUnreachable = "unreachable"
	CauseAdmin       = "admin"
)

// ErrConflictState is returned by ForceMatch when either user is already in
// a chat.
var ErrConflictState = errors.New("session: user already in a chat")

// ErrTargetBanned is returned by ForceMatch when either user is banned.
// Force-match bypasses compatibility and the queue, but bans still gate it:
// pairing a banned user would break the ban-monopoly invariant.
var ErrTargetBanned = errors.New("session: target is banned")

// Notifier is the transport surface the session manager needs.
type Notifier interface {
	transport.Sender
	SendRatingPrompt(ctx context.Context, userID int64) error
}

// Manager drives the pair lifecycle.
type Manager struct {
	store      *store.Client
	states     *state.Store
	queue      *queue.Queue
	ratings    *rating.Store
	profiles   *profile.Reader
	moderation *moderation.Store
	notifier   Notifier
	events     *events.Publisher
	chatTTL    time.Duration
}

// NewManager wires the session manager.
func NewManager(st *store.Client, states *state.Store, q *queue.Queue, ratings *rating.Store,
	profiles *profile.Reader, mod *moderation.Store, notifier Notifier, pub *events.Publisher,
	chatTTL time.Duration) *Manager {
	return &Manager{
		store:      st,
		states:     states,
		queue:      q,
		ratings:    ratings,
		profiles:   profiles,
		moderation: mod,
		notifier:   notifier,
		events:     pub,
		chatTTL:    chatTTL,
	}
}

// PairCreated runs the post-match flow: activity tracking, chat counters,
// stale feedback cleanup, and the one-time partner cards. The card shows
// nickname, gender, and country — never the partner's ID.
func (m *Manager) PairCreated(ctx context.Context, a, b int64, forced bool) {
	if err := m.states.TrackActive(ctx, a, b); err != nil {
		log.Printf("[session] track active %d/%d: %v", a, b, err)
	}
	if err := m.ratings.IncrTotalChats(ctx, a, b); err != nil {
		log.Printf("[session] incr total_chats %d/%d: %v", a, b, err)
	}
	_ = m.ratings.ClearPending(ctx, a)
	_ = m.ratings.ClearPending(ctx, b)

	m.sendCard(ctx, a, b, forced)
	m.sendCard(ctx, b, a, forced)

	m.events.MatchCreated(a, b, forced)
	origin := "queue"
	if forced {
		origin = "forced"
	}
	metrics.MatchesTotal.WithLabelValues(origin).Inc()
	log.Printf("[session] pair created %d<->%d forced=%v", a, b, forced)
}

func (m *Manager) sendCard(ctx context.Context, to, partner int64, forced bool) {
	prof, err := m.profiles.Profile(ctx, partner)
	if err != nil {
		log.Printf("[session] profile %d: %v", partner, err)
	}
	text := prof.Card()
	if forced {
		text = "✨ You have been specially matched!\n" + text
	}
	if err := m.notifier.SendText(ctx, to, text+"\nSay hi! Use /next to skip or /stop to end."); err != nil {
		log.Printf("[session] notify %d: %v", to, err)
	}
}

// Break tears down the initiator's current pair. Returns the partner and
// whether a pair was actually broken; a lost race with the partner's own
// break reports false with no side effects.
func (m *Manager) Break(ctx context.Context, initiator int64, cause string) (int64, bool, error) {
	partner, ok, err := m.states.Partner(ctx, initiator)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, nil
	}

	broke, err := m.store.BreakPair(ctx, initiator, partner)
	if err != nil {
		return 0, false, err
	}
	if !broke {
		return partner, false, nil
	}

	if err := m.states.Untrack(ctx, initiator, partner); err != nil {
		log.Printf("[session] untrack %d/%d: %v", initiator, partner, err)
	}
	if err := m.ratings.SetPending(ctx, initiator, partner); err != nil {
		log.Printf("[session] pending feedback %d: %v", initiator, err)
	}
	if err := m.ratings.SetPending(ctx, partner, initiator); err != nil {
		log.Printf("[session] pending feedback %d: %v", partner, err)
	}

	m.notifyBreak(ctx, initiator, partner, cause)
	m.events.PairBroken(initiator, partner, cause)
	log.Printf("[session] pair broken %d<->%d cause=%s", initiator, partner, cause)
	return partner, true, nil
}

// notifyBreak sends the cause-appropriate ending notifications and rating
// prompts. The banned side of a ban break gets its notice from the ban
// handler; the unreachable side of a transport failure gets nothing.
func (m *Manager) notifyBreak(ctx context.Context, initiator, partner int64, cause string) {
	notifyInitiator := func(text string) {
		if err := m.notifier.SendText(ctx, initiator, text); err != nil {
			log.Printf("[session] notify %d: %v", initiator, err)
		}
		_ = m.notifier.SendRatingPrompt(ctx, initiator)
	}
	notifyPartner := func(text string) {
		if err := m.notifier.SendText(ctx, partner, text); err != nil {
			log.Printf("[session] notify %d: %v", partner, err)
		}
		_ = m.notifier.SendRatingPrompt(ctx, partner)
	}

	switch cause {
	case CauseStop:
		notifyInitiator("You ended the chat.")
		notifyPartner("Your partner left the chat. Send /chat to find a new one.")
	case CauseNext:
		notifyPartner("Your partner left the chat. Send /chat to find a new one.")
	case CauseBan:
		notifyPartner("Your partner left the chat. Send /chat to find a new one.")
	case CauseInactivity:
		notifyInitiator("Chat ended due to inactivity.")
		notifyPartner("Chat ended due to inactivity.")
	case CauseUnreachable:
		notifyInitiator("Your partner is unreachable, the chat has ended. Send /chat to find a new one.")
	case CauseAdmin:
		notifyInitiator("The chat was ended by a moderator.")
		notifyPartner("The chat was ended by a moderator.")
	}
}

// LeaveQueue removes a waiting user from the queue and clears their state.
func (m *Manager) LeaveQueue(ctx context.Context, id int64) (bool, error) {
	removed, err := m.queue.Remove(ctx, id)
	if err != nil {
		return false, err
	}
	if removed {
		if err := m.states.ClearState(ctx, id); err != nil {
			return true, err
		}
	}
	return removed, nil
}

// ForceMatch pairs two specific users, bypassing compatibility and the
// queue. Both must be distinct, neither in a chat, and neither banned.
// Waiting users are pulled out of the queue first.
func (m *Manager) ForceMatch(ctx context.Context, a, b int64) error {
	if a == b {
		return ErrConflictState
	}

	for _, id := range []int64{a, b} {
		banned, err := m.moderation.IsBanned(ctx, id)
		if err != nil {
			return err
		}
		if banned {
			return ErrTargetBanned
		}
		status, err := m.states.Status(ctx, id)
		if err != nil {
			return err
		}
		if status == store.StatusChatting {
			return ErrConflictState
		}
	}

	if _, err := m.LeaveQueue(ctx, a); err != nil {
		return err
	}
	if _, err := m.LeaveQueue(ctx, b); err != nil {
		return err
	}

	if err := m.linkPair(ctx, a, b); err != nil {
		return err
	}
	m.PairCreated(ctx, a, b, true)
	return nil
}

// linkPair sets both pair pointers and both states in one transaction.
func (m *Manager) linkPair(ctx context.Context, a, b int64) error {
	as, bs := formatID(a), formatID(b)
	pipe := m.store.Redis().TxPipeline()
	pipe.Set(ctx, store.PairPrefix+as, bs, m.chatTTL)
	pipe.Set(ctx, store.PairPrefix+bs, as, m.chatTTL)
	pipe.Set(ctx, store.StatePrefix+as, store.StatusChatting, m.chatTTL)
	pipe.Set(ctx, store.StatePrefix+bs, store.StatusChatting, m.chatTTL)
	_, err := pipe.Exec(ctx)
	return store.Wrap(err)
}
