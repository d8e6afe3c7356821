package moderation

import (
	"context"
	"testing"
)

func TestToggles_DefaultEnabled(t *testing.T) {
	s, _ := newTestModeration(t, 5)
	ctx := context.Background()

	on, err := s.GenderFilterEnabled(ctx)
	if err != nil {
		t.Fatalf("GenderFilterEnabled() error: %v", err)
	}
	if !on {
		t.Error("gender filter should default to enabled")
	}

	on, err = s.RegionalFilterEnabled(ctx)
	if err != nil {
		t.Fatalf("RegionalFilterEnabled() error: %v", err)
	}
	if !on {
		t.Error("regional filter should default to enabled")
	}
}

func TestToggles_SetAndRead(t *testing.T) {
	s, _ := newTestModeration(t, 5)
	ctx := context.Background()

	if err := s.SetGenderFilter(ctx, false); err != nil {
		t.Fatalf("SetGenderFilter() error: %v", err)
	}
	if on, _ := s.GenderFilterEnabled(ctx); on {
		t.Error("gender filter still enabled after disable")
	}
	// The other toggle is untouched.
	if on, _ := s.RegionalFilterEnabled(ctx); !on {
		t.Error("regional filter changed unexpectedly")
	}

	if err := s.SetGenderFilter(ctx, true); err != nil {
		t.Fatalf("SetGenderFilter() error: %v", err)
	}
	if on, _ := s.GenderFilterEnabled(ctx); !on {
		t.Error("gender filter still disabled after enable")
	}
}

func TestBlockedMedia(t *testing.T) {
	s, _ := newTestModeration(t, 5)
	ctx := context.Background()

	if blocked, _ := s.MediaBlocked(ctx, "sticker"); blocked {
		t.Fatal("no media should be blocked initially")
	}

	if err := s.BlockMedia(ctx, "sticker"); err != nil {
		t.Fatalf("BlockMedia() error: %v", err)
	}
	if blocked, _ := s.MediaBlocked(ctx, "sticker"); !blocked {
		t.Error("sticker should be blocked")
	}
	if blocked, _ := s.MediaBlocked(ctx, "photo"); blocked {
		t.Error("photo should not be blocked")
	}

	if err := s.UnblockMedia(ctx, "sticker"); err != nil {
		t.Fatalf("UnblockMedia() error: %v", err)
	}
	if blocked, _ := s.MediaBlocked(ctx, "sticker"); blocked {
		t.Error("sticker still blocked after unblock")
	}
}
