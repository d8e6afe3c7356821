// Package telegram adapts the Telegram Bot API to the transport boundary.
// Outbound envelopes are always re-sent as fresh messages built from the
// payload or file ID — never via the forward API — so the platform cannot
// attach the original sender's identity.
package telegram

import (
	"context"
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/veilchat/relay/internal/transport"
)

// Client wraps the bot API connection.
type Client struct {
	api *tgbotapi.BotAPI
}

// New authenticates against the bot API.
func New(token string) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Client{api: api}, nil
}

// Username returns the authenticated bot's username.
func (c *Client) Username() string {
	return c.api.Self.UserName
}

// RegisterCommands publishes the user-facing command menu.
func (c *Client) RegisterCommands() error {
	commands := []tgbotapi.BotCommand{
		{Command: "chat", Description: "Find a partner"},
		{Command: "next", Description: "Skip to a new partner"},
		{Command: "stop", Description: "End the chat"},
		{Command: "report", Description: "Report your partner"},
		{Command: "profile", Description: "Show your profile"},
		{Command: "preferences", Description: "Show your matching preferences"},
		{Command: "rating", Description: "Show your rating"},
		{Command: "help", Description: "How the bot works"},
	}
	_, err := c.api.Request(tgbotapi.NewSetMyCommands(commands...))
	return err
}

// SendText delivers a plain text message.
func (c *Client) SendText(ctx context.Context, userID int64, text string) error {
	return c.Send(ctx, userID, transport.Envelope{Type: transport.Text, Text: text})
}

// Send delivers an envelope with copy semantics: a new message is built
// from the envelope fields, preserving type and payload.
func (c *Client) Send(ctx context.Context, userID int64, env transport.Envelope) error {
	var msg tgbotapi.Chattable

	switch env.Type {
	case transport.Text:
		msg = tgbotapi.NewMessage(userID, env.Text)
	case transport.Photo:
		m := tgbotapi.NewPhoto(userID, tgbotapi.FileID(env.FileID))
		m.Caption = env.Text
		msg = m
	case transport.Video:
		m := tgbotapi.NewVideo(userID, tgbotapi.FileID(env.FileID))
		m.Caption = env.Text
		msg = m
	case transport.Sticker:
		msg = tgbotapi.NewSticker(userID, tgbotapi.FileID(env.FileID))
	case transport.Voice:
		m := tgbotapi.NewVoice(userID, tgbotapi.FileID(env.FileID))
		m.Caption = env.Text
		msg = m
	case transport.Audio:
		m := tgbotapi.NewAudio(userID, tgbotapi.FileID(env.FileID))
		m.Caption = env.Text
		msg = m
	case transport.Animation:
		m := tgbotapi.NewAnimation(userID, tgbotapi.FileID(env.FileID))
		m.Caption = env.Text
		msg = m
	case transport.Document:
		m := tgbotapi.NewDocument(userID, tgbotapi.FileID(env.FileID))
		m.Caption = env.Text
		msg = m
	case transport.VideoNote:
		msg = tgbotapi.NewVideoNote(userID, 0, tgbotapi.FileID(env.FileID))
	case transport.Location:
		msg = tgbotapi.NewLocation(userID, env.Latitude, env.Longitude)
	case transport.Contact:
		msg = tgbotapi.NewContact(userID, env.ContactPhone, env.ContactName)
	default:
		return &transport.SendError{Kind: transport.ErrInvalidRecipient,
			Err: errors.New("unsupported envelope type " + string(env.Type))}
	}

	if _, err := c.api.Send(msg); err != nil {
		return classify(err)
	}
	return nil
}

// SendRatingPrompt asks a recently unpaired user to rate their partner.
func (c *Client) SendRatingPrompt(ctx context.Context, userID int64) error {
	msg := tgbotapi.NewMessage(userID, "How was your chat?")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👍", "fb:up"),
			tgbotapi.NewInlineKeyboardButtonData("👎", "fb:down"),
			tgbotapi.NewInlineKeyboardButtonData("Skip", "fb:skip"),
		),
	)
	if _, err := c.api.Send(msg); err != nil {
		return classify(err)
	}
	return nil
}

// AnswerCallback acknowledges a callback query so the client stops showing
// the loading spinner.
func (c *Client) AnswerCallback(callbackID string) {
	_, _ = c.api.Request(tgbotapi.NewCallback(callbackID, ""))
}

// classify maps bot API failures onto the transport error kinds. A blocked
// bot or deactivated account means the recipient is gone for good; the
// router reacts by breaking the pair.
func classify(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 403:
			return &transport.SendError{Kind: transport.ErrUnreachable, Err: err}
		case apiErr.Code == 400 && strings.Contains(apiErr.Message, "chat not found"):
			return &transport.SendError{Kind: transport.ErrInvalidRecipient, Err: err}
		case apiErr.Code == 429:
			return &transport.SendError{Kind: transport.ErrTransient, Err: err}
		}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "blocked by the user"), strings.Contains(msg, "user is deactivated"):
		return &transport.SendError{Kind: transport.ErrUnreachable, Err: err}
	case strings.Contains(msg, "chat not found"):
		return &transport.SendError{Kind: transport.ErrInvalidRecipient, Err: err}
	}
	return &transport.SendError{Kind: transport.ErrTransient, Err: err}
}
