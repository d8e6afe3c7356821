// Package transport defines the boundary between the relay core and the
// messaging platform. The core sends opaque envelopes to user IDs and
// receives parsed updates; everything platform-specific lives in the
// telegram subpackage.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// MediaType is the envelope's type discriminator.
type MediaType string

const (
	Text      MediaType = "text"
	Photo     MediaType = "photo"
	Video     MediaType = "video"
	Sticker   MediaType = "sticker"
	Voice     MediaType = "voice"
	Audio     MediaType = "audio"
	Animation MediaType = "animation"
	Document  MediaType = "document"
	VideoNote MediaType = "video_note"
	Location  MediaType = "location"
	Contact   MediaType = "contact"
)

// MediaTypes lists every supported envelope type.
var MediaTypes = []MediaType{
	Text, Photo, Video, Sticker, Voice, Audio,
	Animation, Document, VideoNote, Location, Contact,
}

// Envelope is one relayable message. FileID references media already stored
// on the platform, so relaying never downloads or transforms payloads.
// Relaying always constructs a fresh message from these fields (copy
// semantics); the sender's identity is never attached.
type Envelope struct {
	Type    MediaType
	Text    string // text body, or caption for media
	FileID  string // platform file reference for media types
	Emoji   string // sticker alternative text

	Latitude  float64
	Longitude float64

	ContactName  string
	ContactPhone string
}

// Update is one parsed inbound event. Exactly one of Command, Message, or
// Callback is set.
type Update struct {
	UserID     int64
	Command    string   // "chat", "stop", ... without the leading slash
	Args       []string
	Message    *Envelope
	Callback   string // callback payload, e.g. "fb:up"
	CallbackID string // platform ID for acknowledging the callback
}

// IsCommand reports whether the update is a slash command.
func (u Update) IsCommand() bool { return u.Command != "" }

// Sender delivers envelopes to users.
type Sender interface {
	// Send relays an envelope to a user with copy semantics.
	Send(ctx context.Context, userID int64, env Envelope) error

	// SendText is shorthand for Send with a text envelope.
	SendText(ctx context.Context, userID int64, text string) error
}

// Error kinds for failed sends. The router retries transient failures once
// and breaks the pair on unreachable recipients.
var (
	ErrTransient        = errors.New("transport: transient failure")
	ErrUnreachable      = errors.New("transport: recipient unreachable")
	ErrInvalidRecipient = errors.New("transport: invalid recipient")
)

// SendError wraps a platform error with its classification.
type SendError struct {
	Kind error // one of the sentinel errors above
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error { return e.Kind }

// Classify returns the sentinel kind of a send error, defaulting unknown
// errors to transient so they get one retry.
func Classify(err error) error {
	var se *SendError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ErrTransient
}
