package transport

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want error
	}{
		{&SendError{Kind: ErrUnreachable, Err: errors.New("blocked")}, ErrUnreachable},
		{&SendError{Kind: ErrInvalidRecipient, Err: errors.New("gone")}, ErrInvalidRecipient},
		{&SendError{Kind: ErrTransient, Err: errors.New("429")}, ErrTransient},
		{errors.New("some raw error"), ErrTransient}, // unknown defaults to transient
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestSendError_Unwrap(t *testing.T) {
	err := error(&SendError{Kind: ErrUnreachable, Err: errors.New("blocked")})
	if !errors.Is(err, ErrUnreachable) {
		t.Error("errors.Is should see the kind through Unwrap")
	}
	if errors.Is(err, ErrTransient) {
		t.Error("errors.Is matched the wrong kind")
	}
}

func TestUpdate_IsCommand(t *testing.T) {
	if (Update{}).IsCommand() {
		t.Error("empty update is not a command")
	}
	if !(Update{Command: "chat"}).IsCommand() {
		t.Error("update with a command should report true")
	}
}
