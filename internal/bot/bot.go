// Package bot is the command surface of the relay: it dispatches parsed
// updates to user commands, admin commands, feedback callbacks, or the
// message router. Every user-facing operation checks the ban gate first.
package bot

import (
	"context"
	"errors"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/veilchat/relay/internal/config"
	"github.com/veilchat/relay/internal/events"
	"github.com/veilchat/relay/internal/matching"
	"github.com/veilchat/relay/internal/moderation"
	"github.com/veilchat/relay/internal/profile"
	"github.com/veilchat/relay/internal/queue"
	"github.com/veilchat/relay/internal/ratelimit"
	"github.com/veilchat/relay/internal/rating"
	"github.com/veilchat/relay/internal/relay"
	"github.com/veilchat/relay/internal/session"
	"github.com/veilchat/relay/internal/state"
	"github.com/veilchat/relay/internal/store"
	"github.com/veilchat/relay/internal/transport"
)

// Transport is the platform surface the bot needs beyond plain sending.
type Transport interface {
	transport.Sender
	SendRatingPrompt(ctx context.Context, userID int64) error
	AnswerCallback(callbackID string)
}

// Bot wires every subsystem behind the update handler.
type Bot struct {
	cfg        config.Config
	rdb        *redis.Client
	states     *state.Store
	queue      *queue.Queue
	profiles   *profile.Reader
	ratings    *rating.Store
	moderation *moderation.Store
	limiter    *ratelimit.Limiter
	engine     *matching.Engine
	sessions   *session.Manager
	router     *relay.Router
	transport  Transport
	pub        *events.Publisher

	chatRule ratelimit.Rule
	nextRule ratelimit.Rule
}

// New assembles the bot.
func New(cfg config.Config, rdb *redis.Client, states *state.Store, q *queue.Queue,
	profiles *profile.Reader, ratings *rating.Store, mod *moderation.Store,
	limiter *ratelimit.Limiter, engine *matching.Engine, sessions *session.Manager,
	router *relay.Router, tr Transport, pub *events.Publisher) *Bot {
	return &Bot{
		cfg:        cfg,
		rdb:        rdb,
		states:     states,
		queue:      q,
		profiles:   profiles,
		ratings:    ratings,
		moderation: mod,
		limiter:    limiter,
		engine:     engine,
		sessions:   sessions,
		router:     router,
		transport:  tr,
		pub:        pub,
		chatRule:   ratelimit.Rule{Op: "chat", Limit: cfg.ChatLimit, Window: cfg.ChatWindow},
		nextRule:   ratelimit.Rule{Op: "next", Limit: cfg.NextLimit, Window: cfg.NextWindow},
	}
}

// HandleUpdate is the single entry point for every parsed update.
func (b *Bot) HandleUpdate(ctx context.Context, upd transport.Update) {
	switch {
	case upd.Callback != "":
		b.handleCallback(ctx, upd)
	case upd.IsCommand():
		b.handleCommand(ctx, upd)
	case upd.Message != nil:
		b.handleMessage(ctx, upd)
	}
}

func (b *Bot) handleMessage(ctx context.Context, upd transport.Update) {
	// An admin mid-flow types plain text as flow input, not chat.
	if b.cfg.IsAdmin(upd.UserID) && upd.Message.Type == transport.Text {
		handled, err := b.continueAdminFlow(ctx, upd.UserID, upd.Message.Text)
		if err != nil {
			b.serviceUnavailable(ctx, upd.UserID, err)
			return
		}
		if handled {
			return
		}
	}

	if err := b.router.Relay(ctx, upd.UserID, *upd.Message); err != nil {
		b.serviceUnavailable(ctx, upd.UserID, err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, upd transport.Update) {
	if isAdminCommand(upd.Command) {
		if !b.cfg.IsAdmin(upd.UserID) {
			b.say(ctx, upd.UserID, textUnknownCommand)
			return
		}
		b.handleAdminCommand(ctx, upd)
		return
	}

	banned, err := b.moderation.IsBanned(ctx, upd.UserID)
	if err != nil {
		b.serviceUnavailable(ctx, upd.UserID, err)
		return
	}
	if banned {
		b.sendBanNotice(ctx, upd.UserID)
		return
	}

	switch upd.Command {
	case "start":
		b.say(ctx, upd.UserID, textWelcome)
	case "chat":
		b.handleChat(ctx, upd.UserID)
	case "stop":
		b.handleStop(ctx, upd.UserID)
	case "next":
		b.handleNext(ctx, upd.UserID)
	case "help":
		b.say(ctx, upd.UserID, textHelp)
	case "report":
		b.handleReport(ctx, upd)
	case "profile":
		b.handleProfile(ctx, upd.UserID)
	case "preferences":
		b.handlePreferences(ctx, upd.UserID)
	case "rating":
		b.handleRating(ctx, upd.UserID)
	default:
		b.say(ctx, upd.UserID, textUnknownCommand)
	}
}

func (b *Bot) handleCallback(ctx context.Context, upd transport.Update) {
	defer b.transport.AnswerCallback(upd.CallbackID)

	banned, err := b.moderation.IsBanned(ctx, upd.UserID)
	if err != nil || banned {
		return
	}

	switch upd.Callback {
	case "fb:up":
		b.handleFeedback(ctx, upd.UserID, true)
	case "fb:down":
		b.handleFeedback(ctx, upd.UserID, false)
	case "fb:skip":
		_ = b.ratings.ClearPending(ctx, upd.UserID)
	}
}

func (b *Bot) handleFeedback(ctx context.Context, userID int64, positive bool) {
	partner, ok, err := b.ratings.Pending(ctx, userID)
	if err != nil {
		b.serviceUnavailable(ctx, userID, err)
		return
	}
	if !ok {
		b.say(ctx, userID, textFeedbackExpired)
		return
	}

	err = b.ratings.Rate(ctx, userID, partner, positive)
	switch {
	case errors.Is(err, rating.ErrAlreadyRated):
		b.say(ctx, userID, textFeedbackDuplicate)
	case err != nil:
		b.serviceUnavailable(ctx, userID, err)
		return
	default:
		b.say(ctx, userID, textFeedbackThanks)
	}
	_ = b.ratings.ClearPending(ctx, userID)
}

// say sends a plain text reply, logging delivery failures.
func (b *Bot) say(ctx context.Context, id int64, text string) {
	if err := b.transport.SendText(ctx, id, text); err != nil {
		log.Printf("[bot] send to %d: %v", id, err)
	}
}

// serviceUnavailable reports a store outage with a single generic notice.
// Pair mutations are atomic, so no partial state needs explaining.
func (b *Bot) serviceUnavailable(ctx context.Context, id int64, err error) {
	if errors.Is(err, store.ErrUnavailable) {
		log.Printf("[bot] store unavailable for %d: %v", id, err)
	} else {
		log.Printf("[bot] handler error for %d: %v", id, err)
	}
	b.say(ctx, id, textServiceUnavailable)
}

func (b *Bot) sendBanNotice(ctx context.Context, id int64) {
	rec, ok, err := b.moderation.Get(ctx, id)
	if err != nil || !ok {
		b.say(ctx, id, textBannedGeneric)
		return
	}
	b.say(ctx, id, banNoticeText(rec))
}
