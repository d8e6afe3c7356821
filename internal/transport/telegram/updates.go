package telegram

import (
	"context"
	"log"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/veilchat/relay/internal/transport"
)

// Handler processes one parsed update.
type Handler func(ctx context.Context, upd transport.Update)

// Run long-polls the bot API and feeds parsed updates through a sharded
// worker pool. Updates are sharded by user ID so each user's commands and
// messages are handled in arrival order, while different users proceed
// concurrently. Blocks until ctx is cancelled.
func (c *Client) Run(ctx context.Context, workers int, handler Handler) {
	if workers < 1 {
		workers = 1
	}

	shards := make([]chan transport.Update, workers)
	var wg sync.WaitGroup
	for i := range shards {
		shards[i] = make(chan transport.Update, 64)
		wg.Add(1)
		go func(ch <-chan transport.Update) {
			defer wg.Done()
			for upd := range ch {
				handler(ctx, upd)
			}
		}(shards[i])
	}

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60
	updates := c.api.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			c.api.StopReceivingUpdates()
			for _, ch := range shards {
				close(ch)
			}
			wg.Wait()
			return
		case raw, ok := <-updates:
			if !ok {
				for _, ch := range shards {
					close(ch)
				}
				wg.Wait()
				return
			}
			upd, ok := parseUpdate(raw)
			if !ok {
				continue
			}
			shard := int(upd.UserID % int64(workers))
			if shard < 0 {
				shard = -shard
			}
			select {
			case shards[shard] <- upd:
			default:
				log.Printf("[telegram] shard %d full, dropping update from %d", shard, upd.UserID)
			}
		}
	}
}

// parseUpdate converts a raw bot API update into the transport model.
// Group messages, edits, and service messages are ignored.
func parseUpdate(raw tgbotapi.Update) (transport.Update, bool) {
	if raw.CallbackQuery != nil {
		return transport.Update{
			UserID:     raw.CallbackQuery.From.ID,
			Callback:   raw.CallbackQuery.Data,
			CallbackID: raw.CallbackQuery.ID,
		}, true
	}

	msg := raw.Message
	if msg == nil || msg.From == nil || !msg.Chat.IsPrivate() {
		return transport.Update{}, false
	}

	if msg.IsCommand() {
		var args []string
		if a := strings.TrimSpace(msg.CommandArguments()); a != "" {
			args = strings.Fields(a)
		}
		return transport.Update{
			UserID:  msg.From.ID,
			Command: msg.Command(),
			Args:    args,
		}, true
	}

	env, ok := parseEnvelope(msg)
	if !ok {
		return transport.Update{}, false
	}
	return transport.Update{UserID: msg.From.ID, Message: &env}, true
}

// parseEnvelope extracts the relayable payload from a content message.
func parseEnvelope(msg *tgbotapi.Message) (transport.Envelope, bool) {
	switch {
	case msg.Text != "":
		return transport.Envelope{Type: transport.Text, Text: msg.Text}, true
	case len(msg.Photo) > 0:
		// The last entry is the largest rendition.
		return transport.Envelope{Type: transport.Photo, FileID: msg.Photo[len(msg.Photo)-1].FileID, Text: msg.Caption}, true
	case msg.Video != nil:
		return transport.Envelope{Type: transport.Video, FileID: msg.Video.FileID, Text: msg.Caption}, true
	case msg.Sticker != nil:
		return transport.Envelope{Type: transport.Sticker, FileID: msg.Sticker.FileID, Emoji: msg.Sticker.Emoji}, true
	case msg.Voice != nil:
		return transport.Envelope{Type: transport.Voice, FileID: msg.Voice.FileID, Text: msg.Caption}, true
	case msg.Audio != nil:
		return transport.Envelope{Type: transport.Audio, FileID: msg.Audio.FileID, Text: msg.Caption}, true
	case msg.Animation != nil:
		return transport.Envelope{Type: transport.Animation, FileID: msg.Animation.FileID, Text: msg.Caption}, true
	case msg.Document != nil:
		return transport.Envelope{Type: transport.Document, FileID: msg.Document.FileID, Text: msg.Caption}, true
	case msg.VideoNote != nil:
		return transport.Envelope{Type: transport.VideoNote, FileID: msg.VideoNote.FileID}, true
	case msg.Location != nil:
		return transport.Envelope{Type: transport.Location, Latitude: msg.Location.Latitude, Longitude: msg.Location.Longitude}, true
	case msg.Contact != nil:
		name := strings.TrimSpace(msg.Contact.FirstName + " " + msg.Contact.LastName)
		return transport.Envelope{Type: transport.Contact, ContactName: name, ContactPhone: msg.Contact.PhoneNumber}, true
	}
	return transport.Envelope{}, false
}
