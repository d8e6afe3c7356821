package bot

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/veilchat/relay/internal/events"
	"github.com/veilchat/relay/internal/matching"
	"github.com/veilchat/relay/internal/metrics"
	"github.com/veilchat/relay/internal/moderation"
	"github.com/veilchat/relay/internal/session"
	"github.com/veilchat/relay/internal/transport"
)

func (b *Bot) handleChat(ctx context.Context, userID int64) {
	allowed, _ := b.limiter.Allow(ctx, userID, b.chatRule)
	if !allowed {
		b.say(ctx, userID, rateLimitedText(b.limiter.RetryAfter(ctx, userID, b.chatRule)))
		return
	}
	b.findPartner(ctx, userID)
}

// findPartner runs the matching engine and reacts to its outcome. Shared by
// /chat and the rejoin leg of /next.
func (b *Bot) findPartner(ctx context.Context, userID int64) {
	res, err := b.engine.FindPartner(ctx, userID)
	if err != nil {
		b.serviceUnavailable(ctx, userID, err)
		return
	}

	switch res.Outcome {
	case matching.Matched:
		b.sessions.PairCreated(ctx, userID, res.Partner, false)
	case matching.Queued:
		n, err := b.queue.Len(ctx)
		if err != nil {
			b.say(ctx, userID, textWaiting)
			return
		}
		b.say(ctx, userID, fmt.Sprintf("%s\nUsers waiting: %d", textWaiting, n))
	case matching.Rejected:
		switch res.Reason {
		case matching.RejectBanned:
			b.sendBanNotice(ctx, userID)
		case matching.RejectToxic:
			b.say(ctx, userID, textToxicBlocked)
		case matching.RejectAlreadyActive:
			b.say(ctx, userID, textAlreadyActive)
		case matching.RejectQueueFull:
			b.say(ctx, userID, textQueueFull)
		}
	}
}

func (b *Bot) handleStop(ctx context.Context, userID int64) {
	_, broke, err := b.sessions.Break(ctx, userID, session.CauseStop)
	if err != nil {
		b.serviceUnavailable(ctx, userID, err)
		return
	}
	if broke {
		return // Break sent the notifications
	}

	left, err := b.sessions.LeaveQueue(ctx, userID)
	if err != nil {
		b.serviceUnavailable(ctx, userID, err)
		return
	}
	if left {
		b.say(ctx, userID, textLeftQueue)
		return
	}
	b.say(ctx, userID, textNotInChat)
}

func (b *Bot) handleNext(ctx context.Context, userID int64) {
	allowed, _ := b.limiter.Allow(ctx, userID, b.nextRule)
	if !allowed {
		b.say(ctx, userID, rateLimitedText(b.limiter.RetryAfter(ctx, userID, b.nextRule)))
		return
	}

	if _, _, err := b.sessions.Break(ctx, userID, session.CauseNext); err != nil {
		b.serviceUnavailable(ctx, userID, err)
		return
	}
	b.findPartner(ctx, userID)
}

// handleReport targets the current partner, a named user ID, or, within the
// post-chat grace window, the pending-feedback partner.
func (b *Bot) handleReport(ctx context.Context, upd transport.Update) {
	target, ok, err := b.reportTarget(ctx, upd)
	if err != nil {
		b.serviceUnavailable(ctx, upd.UserID, err)
		return
	}
	if !ok {
		b.say(ctx, upd.UserID, textNothingToReport)
		return
	}

	count, autoBanned, err := b.moderation.RecordReport(ctx, target)
	if err != nil {
		b.serviceUnavailable(ctx, upd.UserID, err)
		return
	}
	b.pub.ReportFiled(upd.UserID, target, count)
	b.say(ctx, upd.UserID, textReportRecorded)

	if autoBanned {
		metrics.BansTotal.WithLabelValues("auto").Inc()
		rec, _, _ := b.moderation.Get(ctx, target)
		b.pub.BanIssued(events.BanIssued{
			Target:    target,
			Reason:    rec.Reason,
			BannedBy:  moderation.SystemActor,
			AutoBan:   true,
			ExpiresAt: rec.ExpiresAt,
		})
		// Ban monopoly: a banned user cannot stay paired or queued.
		if _, _, err := b.sessions.Break(ctx, target, session.CauseBan); err != nil {
			log.Printf("[bot] break after auto-ban of %d: %v", target, err)
		}
		if _, err := b.sessions.LeaveQueue(ctx, target); err != nil {
			log.Printf("[bot] dequeue after auto-ban of %d: %v", target, err)
		}
		b.sendBanNotice(ctx, target)
	}
}

func (b *Bot) reportTarget(ctx context.Context, upd transport.Update) (int64, bool, error) {
	if len(upd.Args) > 0 {
		if id, err := strconv.ParseInt(upd.Args[0], 10, 64); err == nil && id != upd.UserID {
			return id, true, nil
		}
	}

	partner, ok, err := b.states.Partner(ctx, upd.UserID)
	if err != nil {
		return 0, false, err
	}
	if ok {
		return partner, true, nil
	}
	return b.ratings.Pending(ctx, upd.UserID)
}

func (b *Bot) handleProfile(ctx context.Context, userID int64) {
	prof, err := b.profiles.Profile(ctx, userID)
	if err != nil {
		b.serviceUnavailable(ctx, userID, err)
		return
	}

	nickname, gender, country := prof.Nickname, prof.Gender, prof.Country
	if nickname == "" {
		nickname = "not set"
	}
	if gender == "" {
		gender = "not set"
	}
	if country == "" {
		country = "not set"
	}
	b.say(ctx, userID, fmt.Sprintf("Your profile:\nNickname: %s\nGender: %s\nCountry: %s", nickname, gender, country))
}

func (b *Bot) handlePreferences(ctx context.Context, userID int64) {
	prefs, err := b.profiles.Preferences(ctx, userID)
	if err != nil {
		b.serviceUnavailable(ctx, userID, err)
		return
	}
	b.say(ctx, userID, fmt.Sprintf("Your matching preferences:\nGender: %s\nCountry: %s", prefs.GenderFilter, prefs.CountryFilter))
}

func (b *Bot) handleRating(ctx context.Context, userID int64) {
	rec, err := b.ratings.Get(ctx, userID)
	if err != nil {
		b.serviceUnavailable(ctx, userID, err)
		return
	}
	b.say(ctx, userID, fmt.Sprintf("Your rating: %.0f%%\n👍 %d  👎 %d\nChats: %d",
		rec.Score(), rec.Positive, rec.Negative, rec.TotalChats))
}
