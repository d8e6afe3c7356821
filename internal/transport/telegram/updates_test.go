package telegram

import (
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/veilchat/relay/internal/transport"
)

func privateMessage(userID int64) *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: userID, Type: "private"},
	}
}

func TestParseUpdate_Command(t *testing.T) {
	msg := privateMessage(7)
	msg.Text = "/ban 42 spam"
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 4}}

	upd, ok := parseUpdate(tgbotapi.Update{Message: msg})
	if !ok {
		t.Fatal("expected a parsed update")
	}
	if upd.UserID != 7 || upd.Command != "ban" {
		t.Errorf("parsed %+v, want command ban from 7", upd)
	}
	if len(upd.Args) != 2 || upd.Args[0] != "42" || upd.Args[1] != "spam" {
		t.Errorf("args = %v, want [42 spam]", upd.Args)
	}
}

func TestParseUpdate_CommandWithoutArgs(t *testing.T) {
	msg := privateMessage(7)
	msg.Text = "/chat"
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 5}}

	upd, ok := parseUpdate(tgbotapi.Update{Message: msg})
	if !ok {
		t.Fatal("expected a parsed update")
	}
	if upd.Command != "chat" || upd.Args != nil {
		t.Errorf("parsed %+v, want bare chat command", upd)
	}
}

func TestParseUpdate_Text(t *testing.T) {
	msg := privateMessage(7)
	msg.Text = "hello"

	upd, ok := parseUpdate(tgbotapi.Update{Message: msg})
	if !ok {
		t.Fatal("expected a parsed update")
	}
	if upd.Message == nil || upd.Message.Type != transport.Text || upd.Message.Text != "hello" {
		t.Errorf("parsed %+v, want text envelope", upd)
	}
}

func TestParseUpdate_Callback(t *testing.T) {
	upd, ok := parseUpdate(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb9",
		From: &tgbotapi.User{ID: 7},
		Data: "fb:up",
	}})
	if !ok {
		t.Fatal("expected a parsed update")
	}
	if upd.UserID != 7 || upd.Callback != "fb:up" || upd.CallbackID != "cb9" {
		t.Errorf("parsed %+v", upd)
	}
}

func TestParseUpdate_IgnoresGroupMessages(t *testing.T) {
	msg := &tgbotapi.Message{
		From: &tgbotapi.User{ID: 7},
		Chat: &tgbotapi.Chat{ID: -100, Type: "group"},
		Text: "hello group",
	}
	if _, ok := parseUpdate(tgbotapi.Update{Message: msg}); ok {
		t.Error("group messages must be ignored")
	}
}

func TestParseUpdate_IgnoresServiceMessages(t *testing.T) {
	// No text and no media.
	if _, ok := parseUpdate(tgbotapi.Update{Message: privateMessage(7)}); ok {
		t.Error("service messages must be ignored")
	}
}

func TestParseEnvelope_PhotoPicksLargestRendition(t *testing.T) {
	msg := privateMessage(7)
	msg.Photo = []tgbotapi.PhotoSize{
		{FileID: "small", Width: 90},
		{FileID: "big", Width: 800},
	}
	msg.Caption = "look at this"

	env, ok := parseEnvelope(msg)
	if !ok {
		t.Fatal("expected an envelope")
	}
	if env.Type != transport.Photo || env.FileID != "big" || env.Text != "look at this" {
		t.Errorf("envelope = %+v", env)
	}
}

func TestParseEnvelope_AnimationBeforeDocument(t *testing.T) {
	// The bot API sets both fields for GIFs; animation must win.
	msg := privateMessage(7)
	msg.Animation = &tgbotapi.Animation{FileID: "anim1"}
	msg.Document = &tgbotapi.Document{FileID: "doc1"}

	env, ok := parseEnvelope(msg)
	if !ok {
		t.Fatal("expected an envelope")
	}
	if env.Type != transport.Animation || env.FileID != "anim1" {
		t.Errorf("envelope = %+v, want animation anim1", env)
	}
}

func TestParseEnvelope_Contact(t *testing.T) {
	msg := privateMessage(7)
	msg.Contact = &tgbotapi.Contact{FirstName: "Ann", LastName: "Lee", PhoneNumber: "+1555"}

	env, ok := parseEnvelope(msg)
	if !ok {
		t.Fatal("expected an envelope")
	}
	if env.Type != transport.Contact || env.ContactName != "Ann Lee" || env.ContactPhone != "+1555" {
		t.Errorf("envelope = %+v", env)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"forbidden", &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}, transport.ErrUnreachable},
		{"chat not found", &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}, transport.ErrInvalidRecipient},
		{"flood", &tgbotapi.Error{Code: 429, Message: "Too Many Requests"}, transport.ErrTransient},
		{"blocked string", errors.New("Forbidden: bot was blocked by the user"), transport.ErrUnreachable},
		{"deactivated string", errors.New("Forbidden: user is deactivated"), transport.ErrUnreachable},
		{"network", errors.New("dial tcp: i/o timeout"), transport.ErrTransient},
	}
	for _, tc := range cases {
		got := transport.Classify(classify(tc.err))
		if got != tc.want {
			t.Errorf("%s: classify = %v, want %v", tc.name, got, tc.want)
		}
	}
}
