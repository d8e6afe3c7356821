package bot

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/veilchat/relay/internal/moderation"
	"github.com/veilchat/relay/internal/store"
)

// Multi-step /ban and /warn run as per-admin finite-state flows. Flow state
// lives in Redis under adminflow:{admin_id} with a short TTL, so an abandoned
// flow evaporates and any bot replica can continue a flow another one started.
const (
	adminFlowPrefix = "adminflow:"
	adminFlowTTL    = 5 * time.Minute

	flowBan  = "ban"
	flowWarn = "warn"

	stepTarget = "target"
	stepReason = "reason"
)

type adminFlow struct {
	Flow   string `redis:"flow"`
	Step   string `redis:"step"`
	Target int64  `redis:"target"`
}

func adminFlowKey(adminID int64) string {
	return adminFlowPrefix + strconv.FormatInt(adminID, 10)
}

// startAdminFlow begins a /ban or /warn flow from whatever arguments were
// given: no target yet asks for one, a target skips straight to the reason.
func (b *Bot) startAdminFlow(ctx context.Context, adminID int64, flow string, args []string) error {
	fl := adminFlow{Flow: flow, Step: stepTarget}
	prompt := "Which user? Send the numeric user ID. The flow expires in 5 minutes."

	if len(args) > 0 {
		target, ok := parseUserID(args[0])
		if !ok {
			b.say(ctx, adminID, "That is not a valid user ID.")
			return nil
		}
		fl.Target = target
		fl.Step = stepReason
		prompt = reasonPrompt(flow, target)
	}

	if err := b.saveAdminFlow(ctx, adminID, fl); err != nil {
		return err
	}
	b.say(ctx, adminID, prompt)
	return nil
}

// continueAdminFlow feeds one plain-text message into the admin's active
// flow. Returns false when no flow is active, so the message falls through
// to the relay.
func (b *Bot) continueAdminFlow(ctx context.Context, adminID int64, text string) (bool, error) {
	key := adminFlowKey(adminID)
	cmd := b.rdb.HGetAll(ctx, key)
	if err := cmd.Err(); err != nil {
		return false, store.Wrap(err)
	}
	if len(cmd.Val()) == 0 {
		return false, nil
	}

	var fl adminFlow
	if err := cmd.Scan(&fl); err != nil {
		return false, store.Wrap(err)
	}

	if text == "/cancel" || text == "cancel" {
		b.clearAdminFlow(ctx, adminID)
		b.say(ctx, adminID, "Cancelled.")
		return true, nil
	}

	switch fl.Step {
	case stepTarget:
		target, ok := parseUserID(text)
		if !ok {
			b.say(ctx, adminID, "That is not a valid user ID. Try again, or send cancel.")
			return true, nil
		}
		fl.Target = target
		fl.Step = stepReason
		if err := b.saveAdminFlow(ctx, adminID, fl); err != nil {
			return true, err
		}
		b.say(ctx, adminID, reasonPrompt(fl.Flow, target))

	case stepReason:
		if !moderation.ValidReason(text) {
			b.say(ctx, adminID, reasonUsage+" Try again, or send cancel.")
			return true, nil
		}
		b.clearAdminFlow(ctx, adminID)

		var err error
		if fl.Flow == flowBan {
			// Flow bans are permanent; use /ban with a duration for
			// temporary ones.
			err = b.applyBan(ctx, adminID, fl.Target, text, 0)
			if err == nil {
				b.say(ctx, adminID, fmt.Sprintf("Banned %d (%s).", fl.Target, text))
			}
		} else {
			err = b.applyWarn(ctx, adminID, fl.Target, text)
		}
		if err != nil {
			return true, err
		}
	}
	return true, nil
}

func (b *Bot) saveAdminFlow(ctx context.Context, adminID int64, fl adminFlow) error {
	key := adminFlowKey(adminID)
	pipe := b.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"flow":   fl.Flow,
		"step":   fl.Step,
		"target": fl.Target,
	})
	pipe.Expire(ctx, key, adminFlowTTL)
	_, err := pipe.Exec(ctx)
	return store.Wrap(err)
}

func (b *Bot) clearAdminFlow(ctx context.Context, adminID int64) {
	b.rdb.Del(ctx, adminFlowKey(adminID))
}

func reasonPrompt(flow string, target int64) string {
	verb := "warn"
	if flow == flowBan {
		verb = "ban"
	}
	return fmt.Sprintf("Why %s %d? Send one of: nudity, spam, abuse, fake_reports, harassment.", verb, target)
}
