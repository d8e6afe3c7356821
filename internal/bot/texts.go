package bot

import (
	"fmt"
	"time"

	"github.com/veilchat/relay/internal/moderation"
)

const (
	textWelcome = "👋 Welcome to the anonymous chat!\n" +
		"Send /chat to find a random partner. Your identity is never shared.\n" +
		"Use /help to see everything the bot can do."

	textHelp = "Commands:\n" +
		"/chat — find a partner\n" +
		"/next — skip to a new partner\n" +
		"/stop — end the chat or leave the queue\n" +
		"/report — report your partner\n" +
		"/profile — show your profile\n" +
		"/preferences — show your matching preferences\n" +
		"/rating — show your rating\n" +
		"Messages you send while paired are relayed to your partner anonymously."

	textWaiting = "⏳ Looking for a partner... You'll be notified when someone compatible joins."

	textAlreadyActive = "You are already in a chat or waiting in the queue. Use /stop first."

	textToxicBlocked = "You cannot start chats: your rating is too low. It recovers as other users rate you positively."

	textQueueFull = "The queue is full right now, please try again in a moment."

	textNotInChat = "You are not in a chat. Send /chat to find a partner."

	textLeftQueue = "You left the queue."

	textReportRecorded = "Report recorded. Thank you for keeping the chat safe."

	textNothingToReport = "There is no one to report. Reports target your current or most recent partner."

	textFeedbackThanks    = "Thanks for the feedback!"
	textFeedbackDuplicate = "You already rated this partner."
	textFeedbackExpired   = "The rating window for that chat has passed."

	textServiceUnavailable = "Service temporarily unavailable, please try again."

	textBannedGeneric = "🚫 You are banned from using this bot."

	textUnknownCommand = "Unknown command. Use /help to see what the bot can do."
)

func rateLimitedText(retry time.Duration) string {
	secs := int(retry.Seconds()) + 1
	return fmt.Sprintf("Slow down! Try again in %ds.", secs)
}

func banNoticeText(rec moderation.BanRecord) string {
	if rec.IsPermanent {
		return fmt.Sprintf("🚫 You are permanently banned.\nReason: %s", rec.Reason)
	}
	remaining := time.Until(time.Unix(rec.ExpiresAt, 0)).Round(time.Minute)
	if remaining < 0 {
		remaining = 0
	}
	return fmt.Sprintf("🚫 You are banned.\nReason: %s\nTime remaining: %s", rec.Reason, remaining)
}
