package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/veilchat/relay/internal/events"
	"github.com/veilchat/relay/internal/metrics"
	"github.com/veilchat/relay/internal/moderation"
	"github.com/veilchat/relay/internal/session"
	"github.com/veilchat/relay/internal/transport"
)

var adminCommands = map[string]bool{
	"ban":             true,
	"unban":           true,
	"warn":            true,
	"checkban":        true,
	"bannedlist":      true,
	"warninglist":     true,
	"forcematch":      true,
	"enablegender":    true,
	"disablegender":   true,
	"enableregional":  true,
	"disableregional": true,
	"matchstatus":     true,
	"blockmedia":      true,
	"unblockmedia":    true,
}

func isAdminCommand(cmd string) bool { return adminCommands[cmd] }

func (b *Bot) handleAdminCommand(ctx context.Context, upd transport.Update) {
	switch upd.Command {
	case "ban":
		b.adminBan(ctx, upd)
	case "unban":
		b.adminUnban(ctx, upd)
	case "warn":
		b.adminWarn(ctx, upd)
	case "checkban":
		b.adminCheckBan(ctx, upd)
	case "bannedlist":
		b.adminBannedList(ctx, upd.UserID)
	case "warninglist":
		b.adminWarningList(ctx, upd.UserID)
	case "forcematch":
		b.adminForceMatch(ctx, upd)
	case "enablegender":
		b.adminSetToggle(ctx, upd.UserID, "gender", true)
	case "disablegender":
		b.adminSetToggle(ctx, upd.UserID, "gender", false)
	case "enableregional":
		b.adminSetToggle(ctx, upd.UserID, "regional", true)
	case "disableregional":
		b.adminSetToggle(ctx, upd.UserID, "regional", false)
	case "matchstatus":
		b.adminMatchStatus(ctx, upd.UserID)
	case "blockmedia":
		b.adminBlockMedia(ctx, upd, true)
	case "unblockmedia":
		b.adminBlockMedia(ctx, upd, false)
	}
}

// adminBan handles /ban <user_id> <reason> [duration]. With missing
// arguments it starts the multi-step flow instead.
func (b *Bot) adminBan(ctx context.Context, upd transport.Update) {
	if len(upd.Args) < 2 {
		if err := b.startAdminFlow(ctx, upd.UserID, flowBan, upd.Args); err != nil {
			b.serviceUnavailable(ctx, upd.UserID, err)
		}
		return
	}

	target, ok := parseUserID(upd.Args[0])
	if !ok {
		b.say(ctx, upd.UserID, "Usage: /ban <user_id> <reason> [duration, e.g. 24h]")
		return
	}
	reason := upd.Args[1]

	duration := time.Duration(0) // permanent
	if len(upd.Args) > 2 {
		d, err := time.ParseDuration(upd.Args[2])
		if err != nil {
			b.say(ctx, upd.UserID, "Bad duration. Use Go syntax, e.g. 24h or 30m.")
			return
		}
		duration = d
	}

	if err := b.applyBan(ctx, upd.UserID, target, reason, duration); err != nil {
		if errors.Is(err, moderation.ErrInvalidReason) {
			b.say(ctx, upd.UserID, reasonUsage)
			return
		}
		b.serviceUnavailable(ctx, upd.UserID, err)
		return
	}
	b.say(ctx, upd.UserID, fmt.Sprintf("Banned %d (%s).", target, reason))
}

// applyBan records a manual ban and enforces its consequences: the target's
// pair is broken, the target leaves the queue, and the target is notified.
func (b *Bot) applyBan(ctx context.Context, adminID, target int64, reason string, duration time.Duration) error {
	by := strconv.FormatInt(adminID, 10)
	if err := b.moderation.Ban(ctx, target, reason, by, duration, false); err != nil {
		return err
	}

	metrics.BansTotal.WithLabelValues("manual").Inc()
	ev := events.BanIssued{
		Target:    target,
		Reason:    reason,
		BannedBy:  by,
		Permanent: duration <= 0,
	}
	if duration > 0 {
		ev.ExpiresAt = time.Now().Add(duration).Unix()
	}
	b.pub.BanIssued(ev)

	if _, _, err := b.sessions.Break(ctx, target, session.CauseBan); err != nil {
		return err
	}
	if _, err := b.sessions.LeaveQueue(ctx, target); err != nil {
		return err
	}
	b.sendBanNotice(ctx, target)
	return nil
}

func (b *Bot) adminUnban(ctx context.Context, upd transport.Update) {
	target, ok := argUserID(upd.Args)
	if !ok {
		b.say(ctx, upd.UserID, "Usage: /unban <user_id>")
		return
	}
	existed, err := b.moderation.Unban(ctx, target)
	if err != nil {
		b.serviceUnavailable(ctx, upd.UserID, err)
		return
	}
	if existed {
		b.say(ctx, upd.UserID, fmt.Sprintf("Unbanned %d.", target))
	} else {
		b.say(ctx, upd.UserID, fmt.Sprintf("%d was not banned.", target))
	}
}

func (b *Bot) adminWarn(ctx context.Context, upd transport.Update) {
	if len(upd.Args) < 2 {
		if err := b.startAdminFlow(ctx, upd.UserID, flowWarn, upd.Args); err != nil {
			b.serviceUnavailable(ctx, upd.UserID, err)
		}
		return
	}

	target, ok := parseUserID(upd.Args[0])
	if !ok {
		b.say(ctx, upd.UserID, "Usage: /warn <user_id> <reason>")
		return
	}
	if err := b.applyWarn(ctx, upd.UserID, target, upd.Args[1]); err != nil {
		if errors.Is(err, moderation.ErrInvalidReason) {
			b.say(ctx, upd.UserID, reasonUsage)
			return
		}
		b.serviceUnavailable(ctx, upd.UserID, err)
	}
}

func (b *Bot) applyWarn(ctx context.Context, adminID, target int64, reason string) error {
	by := strconv.FormatInt(adminID, 10)
	if err := b.moderation.Warn(ctx, target, reason, by); err != nil {
		return err
	}
	b.pub.WarningIssued(target, reason, by)
	n, err := b.moderation.WarningCount(ctx, target)
	if err != nil {
		return err
	}
	b.say(ctx, target, fmt.Sprintf("⚠️ You received a warning: %s. Warnings: %d.", reason, n))
	b.say(ctx, adminID, fmt.Sprintf("Warned %d (%s). Total warnings: %d.", target, reason, n))
	return nil
}

func (b *Bot) adminCheckBan(ctx context.Context, upd transport.Update) {
	target, ok := argUserID(upd.Args)
	if !ok {
		b.say(ctx, upd.UserID, "Usage: /checkban <user_id>")
		return
	}

	rec, banned, err := b.moderation.Get(ctx, target)
	if err != nil {
		b.serviceUnavailable(ctx, upd.UserID, err)
		return
	}
	if !banned {
		b.say(ctx, upd.UserID, fmt.Sprintf("%d is not banned.", target))
		return
	}

	expiry := "permanent"
	if !rec.IsPermanent {
		expiry = time.Unix(rec.ExpiresAt, 0).UTC().Format(time.RFC3339)
	}
	kind := "manual"
	if rec.IsAutoBan {
		kind = "auto"
	}
	b.say(ctx, upd.UserID, fmt.Sprintf(
		"%d is banned.\nReason: %s\nBy: %s\nKind: %s\nExpires: %s",
		target, rec.Reason, rec.BannedBy, kind, expiry))
}

func (b *Bot) adminBannedList(ctx context.Context, adminID int64) {
	ids, err := b.moderation.ListBanned(ctx)
	if err != nil {
		b.serviceUnavailable(ctx, adminID, err)
		return
	}
	b.say(ctx, adminID, formatIDList("Banned users", ids))
}

func (b *Bot) adminWarningList(ctx context.Context, adminID int64) {
	ids, err := b.moderation.ListWarned(ctx)
	if err != nil {
		b.serviceUnavailable(ctx, adminID, err)
		return
	}
	b.say(ctx, adminID, formatIDList("Warned users", ids))
}

func (b *Bot) adminForceMatch(ctx context.Context, upd transport.Update) {
	if len(upd.Args) < 2 {
		b.say(ctx, upd.UserID, "Usage: /forcematch <user_id> <user_id>")
		return
	}
	a, okA := parseUserID(upd.Args[0])
	c, okC := parseUserID(upd.Args[1])
	if !okA || !okC {
		b.say(ctx, upd.UserID, "Usage: /forcematch <user_id> <user_id>")
		return
	}

	err := b.sessions.ForceMatch(ctx, a, c)
	switch {
	case errors.Is(err, session.ErrTargetBanned):
		b.say(ctx, upd.UserID, "Cannot force-match: one of the users is banned.")
	case errors.Is(err, session.ErrConflictState):
		b.say(ctx, upd.UserID, "Cannot force-match: users must be distinct and not already chatting.")
	case err != nil:
		b.serviceUnavailable(ctx, upd.UserID, err)
	default:
		b.say(ctx, upd.UserID, fmt.Sprintf("Matched %d with %d.", a, c))
	}
}

func (b *Bot) adminSetToggle(ctx context.Context, adminID int64, which string, enabled bool) {
	var err error
	if which == "gender" {
		err = b.moderation.SetGenderFilter(ctx, enabled)
	} else {
		err = b.moderation.SetRegionalFilter(ctx, enabled)
	}
	if err != nil {
		b.serviceUnavailable(ctx, adminID, err)
		return
	}

	verb := "disabled"
	if enabled {
		verb = "enabled"
	}
	b.say(ctx, adminID, fmt.Sprintf("The %s filter is now %s. Existing chats are unaffected.", which, verb))
}

func (b *Bot) adminMatchStatus(ctx context.Context, adminID int64) {
	waiting, err := b.queue.Len(ctx)
	if err != nil {
		b.serviceUnavailable(ctx, adminID, err)
		return
	}
	active, err := b.states.ActiveCount(ctx)
	if err != nil {
		b.serviceUnavailable(ctx, adminID, err)
		return
	}
	gender, _ := b.moderation.GenderFilterEnabled(ctx)
	regional, _ := b.moderation.RegionalFilterEnabled(ctx)

	b.say(ctx, adminID, fmt.Sprintf(
		"Matching status:\nWaiting: %d\nActive chats: %d\nGender filter: %s\nRegional filter: %s",
		waiting, active/2, onOff(gender), onOff(regional)))
}

func (b *Bot) adminBlockMedia(ctx context.Context, upd transport.Update, block bool) {
	if len(upd.Args) < 1 {
		b.say(ctx, upd.UserID, "Usage: /"+upd.Command+" <type> — one of: "+mediaTypeList())
		return
	}
	mt := strings.ToLower(upd.Args[0])
	if !validMediaType(mt) {
		b.say(ctx, upd.UserID, "Unknown media type. One of: "+mediaTypeList())
		return
	}

	var err error
	if block {
		err = b.moderation.BlockMedia(ctx, mt)
	} else {
		err = b.moderation.UnblockMedia(ctx, mt)
	}
	if err != nil {
		b.serviceUnavailable(ctx, upd.UserID, err)
		return
	}
	verb := "unblocked"
	if block {
		verb = "blocked"
	}
	b.say(ctx, upd.UserID, fmt.Sprintf("Media type %q is now %s.", mt, verb))
}

const reasonUsage = "Reason must be one of: nudity, spam, abuse, fake_reports, harassment."

func parseUserID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return id, err == nil && id > 0
}

func argUserID(args []string) (int64, bool) {
	if len(args) < 1 {
		return 0, false
	}
	return parseUserID(args[0])
}

func formatIDList(title string, ids []int64) string {
	if len(ids) == 0 {
		return title + ": none"
	}
	var sb strings.Builder
	sb.WriteString(title)
	sb.WriteString(" (")
	sb.WriteString(strconv.Itoa(len(ids)))
	sb.WriteString("):")
	for _, id := range ids {
		sb.WriteString("\n")
		sb.WriteString(strconv.FormatInt(id, 10))
	}
	return sb.String()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func validMediaType(s string) bool {
	for _, mt := range transport.MediaTypes {
		if string(mt) == s {
			return true
		}
	}
	return false
}

func mediaTypeList() string {
	parts := make([]string, len(transport.MediaTypes))
	for i, mt := range transport.MediaTypes {
		parts[i] = string(mt)
	}
	return strings.Join(parts, ", ")
}
