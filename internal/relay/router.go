// Package relay routes content messages from a sender to their current
// partner. Every message passes the gate chain — ban, blocked media,
// content filter, rate limit, pair lookup — before the transport copies it
// across. A coherent drop always tells the sender why.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/veilchat/relay/internal/events"
	"github.com/veilchat/relay/internal/metrics"
	"github.com/veilchat/relay/internal/moderation"
	"github.com/veilchat/relay/internal/ratelimit"
	"github.com/veilchat/relay/internal/session"
	"github.com/veilchat/relay/internal/state"
	"github.com/veilchat/relay/internal/transport"
)

// Router relays envelopes between paired users.
type Router struct {
	states      *state.Store
	moderation  *moderation.Store
	filter      *moderation.Filter
	limiter     *ratelimit.Limiter
	sessions    *session.Manager
	sender      transport.Sender
	pub         *events.Publisher
	messageRule ratelimit.Rule
}

// NewRouter wires the message router.
func NewRouter(states *state.Store, mod *moderation.Store, filter *moderation.Filter,
	limiter *ratelimit.Limiter, sessions *session.Manager, sender transport.Sender,
	pub *events.Publisher, messageRule ratelimit.Rule) *Router {
	return &Router{
		states:      states,
		moderation:  mod,
		filter:      filter,
		limiter:     limiter,
		sessions:    sessions,
		sender:      sender,
		pub:         pub,
		messageRule: messageRule,
	}
}

// Relay runs the gate chain for one inbound envelope and delivers it to the
// sender's partner. Returns an error only on store outages; gate drops are
// handled in place.
func (r *Router) Relay(ctx context.Context, senderID int64, env transport.Envelope) error {
	banned, err := r.moderation.IsBanned(ctx, senderID)
	if err != nil {
		return err
	}
	if banned {
		metrics.BlockedTotal.WithLabelValues("ban").Inc()
		r.reply(ctx, senderID, "You are banned and cannot send messages.")
		return nil
	}

	blocked, err := r.moderation.MediaBlocked(ctx, string(env.Type))
	if err != nil {
		return err
	}
	if blocked {
		metrics.BlockedTotal.WithLabelValues("media").Inc()
		r.pub.MessageBlocked(senderID, "blocked_media", string(env.Type))
		r.reply(ctx, senderID, fmt.Sprintf("Sending %s messages is currently disabled.", env.Type))
		return nil
	}

	if env.Type == transport.Text {
		if res := r.filter.Check(env.Text); res.Blocked {
			metrics.BlockedTotal.WithLabelValues("filter").Inc()
			r.pub.MessageBlocked(senderID, res.Reason, res.Term)
			r.reply(ctx, senderID, "Your message was blocked by the content filter.")
			return nil
		}
	}

	allowed, _ := r.limiter.Allow(ctx, senderID, r.messageRule)
	if !allowed {
		metrics.BlockedTotal.WithLabelValues("ratelimit").Inc()
		retry := r.limiter.RetryAfter(ctx, senderID, r.messageRule)
		r.reply(ctx, senderID, fmt.Sprintf("You are sending messages too fast. Try again in %ds.", int(retry.Seconds())+1))
		return nil
	}

	partner, ok, err := r.states.Partner(ctx, senderID)
	if err != nil {
		return err
	}
	if !ok {
		metrics.BlockedTotal.WithLabelValues("no_partner").Inc()
		r.reply(ctx, senderID, "You are not in a chat. Send /chat to find a partner.")
		return nil
	}

	if err := r.states.Touch(ctx, senderID); err != nil {
		log.Printf("[router] touch %d: %v", senderID, err)
	}

	r.deliver(ctx, senderID, partner, env)
	return nil
}

// deliver copies the envelope to the partner, retrying a transient failure
// once. An unreachable partner ends the session cleanly.
func (r *Router) deliver(ctx context.Context, senderID, partner int64, env transport.Envelope) {
	err := r.sender.Send(ctx, partner, env)
	if err != nil && errors.Is(transport.Classify(err), transport.ErrTransient) {
		err = r.sender.Send(ctx, partner, env)
	}
	if err == nil {
		metrics.MessagesTotal.WithLabelValues(string(env.Type)).Inc()
		return
	}

	log.Printf("[router] deliver %d->%d: %v", senderID, partner, err)
	// A repeated transient failure is treated as unreachable for this
	// recipient: break the pair and tell the sender.
	if _, _, berr := r.sessions.Break(ctx, senderID, session.CauseUnreachable); berr != nil {
		log.Printf("[router] break after delivery failure: %v", berr)
		r.reply(ctx, senderID, "Service temporarily unavailable, please try again.")
	}
}

func (r *Router) reply(ctx context.Context, id int64, text string) {
	if err := r.sender.SendText(ctx, id, text); err != nil {
		log.Printf("[router] reply %d: %v", id, err)
	}
}
