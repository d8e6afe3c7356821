package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/veilchat/relay/internal/moderation"
	"github.com/veilchat/relay/internal/profile"
	"github.com/veilchat/relay/internal/queue"
	"github.com/veilchat/relay/internal/rating"
	"github.com/veilchat/relay/internal/state"
	"github.com/veilchat/relay/internal/store"
	"github.com/veilchat/relay/internal/transport"
)

// fakeNotifier records every outbound text and rating prompt.
type fakeNotifier struct {
	texts   map[int64][]string
	prompts map[int64]int
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{texts: make(map[int64][]string), prompts: make(map[int64]int)}
}

func (f *fakeNotifier) Send(ctx context.Context, userID int64, env transport.Envelope) error {
	f.texts[userID] = append(f.texts[userID], env.Text)
	return nil
}

func (f *fakeNotifier) SendText(ctx context.Context, userID int64, text string) error {
	f.texts[userID] = append(f.texts[userID], text)
	return nil
}

func (f *fakeNotifier) SendRatingPrompt(ctx context.Context, userID int64) error {
	f.prompts[userID]++
	return nil
}

func (f *fakeNotifier) received(userID int64, substr string) bool {
	for _, text := range f.texts[userID] {
		if strings.Contains(text, substr) {
			return true
		}
	}
	return false
}

type managerEnv struct {
	m       *Manager
	rdb     *redis.Client
	mr      *miniredis.Miniredis
	states  *state.Store
	queue   *queue.Queue
	ratings *rating.Store
	mod     *moderation.Store
	fake    *fakeNotifier
}

func newTestManager(t *testing.T) *managerEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	st := store.NewWithClient(rdb)
	states := state.NewStore(rdb, 10*time.Minute)
	q := queue.New(rdb, 100)
	ratings := rating.NewStore(rdb)
	profiles := profile.NewReader(rdb)
	mod := moderation.NewStore(rdb, 5, time.Hour)
	fake := newFakeNotifier()

	m := NewManager(st, states, q, ratings, profiles, mod, fake, nil, 10*time.Minute)
	return &managerEnv{m: m, rdb: rdb, mr: mr, states: states, queue: q, ratings: ratings, mod: mod, fake: fake}
}

func TestPairCreated(t *testing.T) {
	e := newTestManager(t)
	ctx := context.Background()

	e.m.PairCreated(ctx, 1, 2, false)

	if !e.fake.received(1, "Partner found!") || !e.fake.received(2, "Partner found!") {
		t.Error("both users should get a partner card")
	}
	if e.fake.received(1, "2") {
		t.Error("the card must not contain the partner's ID")
	}

	r, _ := e.ratings.Get(ctx, 1)
	if r.TotalChats != 1 {
		t.Errorf("expected total_chats=1, got %d", r.TotalChats)
	}
	if n, _ := e.states.ActiveCount(ctx); n != 2 {
		t.Errorf("expected 2 active entries, got %d", n)
	}
}

func TestPairCreated_ForcedCard(t *testing.T) {
	e := newTestManager(t)
	ctx := context.Background()

	e.m.PairCreated(ctx, 1, 2, true)
	if !e.fake.received(1, "specially matched") {
		t.Error("forced match card missing the special note")
	}
}

func TestBreak(t *testing.T) {
	e := newTestManager(t)
	ctx := context.Background()

	if err := e.m.linkPair(ctx, 1, 2); err != nil {
		t.Fatalf("linkPair() error: %v", err)
	}
	e.states.TrackActive(ctx, 1, 2)

	partner, broke, err := e.m.Break(ctx, 1, CauseStop)
	if err != nil {
		t.Fatalf("Break() error: %v", err)
	}
	if !broke || partner != 2 {
		t.Fatalf("Break() = (%d, %v), want (2, true)", partner, broke)
	}

	for _, id := range []int64{1, 2} {
		if status, _ := e.states.Status(ctx, id); status != store.StatusIdle {
			t.Errorf("user %d status = %q, want idle", id, status)
		}
	}
	if n, _ := e.states.ActiveCount(ctx); n != 0 {
		t.Errorf("active index not cleared: %d", n)
	}

	// Both sides may rate each other during the grace window.
	if p, ok, _ := e.ratings.Pending(ctx, 1); !ok || p != 2 {
		t.Errorf("pending(1) = (%d, %v), want (2, true)", p, ok)
	}
	if p, ok, _ := e.ratings.Pending(ctx, 2); !ok || p != 1 {
		t.Errorf("pending(2) = (%d, %v), want (1, true)", p, ok)
	}

	if !e.fake.received(1, "You ended the chat") {
		t.Error("initiator missing stop notice")
	}
	if !e.fake.received(2, "partner left") {
		t.Error("partner missing leave notice")
	}
	if e.fake.prompts[1] == 0 || e.fake.prompts[2] == 0 {
		t.Error("both sides should get a rating prompt")
	}
}

func TestBreak_NotPaired(t *testing.T) {
	e := newTestManager(t)
	ctx := context.Background()

	_, broke, err := e.m.Break(ctx, 1, CauseStop)
	if err != nil {
		t.Fatalf("Break() error: %v", err)
	}
	if broke {
		t.Error("expected broke=false for unpaired user")
	}
}

func TestBreak_LostRaceHasNoSideEffects(t *testing.T) {
	e := newTestManager(t)
	ctx := context.Background()

	if err := e.m.linkPair(ctx, 1, 2); err != nil {
		t.Fatalf("linkPair() error: %v", err)
	}
	if _, broke, _ := e.m.Break(ctx, 1, CauseStop); !broke {
		t.Fatal("first break should win")
	}

	before := len(e.fake.texts[2])
	_, broke, err := e.m.Break(ctx, 2, CauseStop)
	if err != nil {
		t.Fatalf("Break() error: %v", err)
	}
	if broke {
		t.Error("second break should lose the race")
	}
	if len(e.fake.texts[2]) != before {
		t.Error("losing break sent notifications")
	}
}

func TestLeaveQueue(t *testing.T) {
	e := newTestManager(t)
	ctx := context.Background()

	e.queue.Push(ctx, 1)
	e.states.SetQueued(ctx, 1)

	left, err := e.m.LeaveQueue(ctx, 1)
	if err != nil {
		t.Fatalf("LeaveQueue() error: %v", err)
	}
	if !left {
		t.Fatal("expected left=true")
	}
	if status, _ := e.states.Status(ctx, 1); status != store.StatusIdle {
		t.Errorf("status = %q, want idle", status)
	}

	left, err = e.m.LeaveQueue(ctx, 1)
	if err != nil {
		t.Fatalf("repeat LeaveQueue() error: %v", err)
	}
	if left {
		t.Error("expected left=false when not waiting")
	}
}

func TestForceMatch(t *testing.T) {
	e := newTestManager(t)
	ctx := context.Background()

	// 2 is waiting; force-match pulls them out of the queue first.
	e.queue.Push(ctx, 2)
	e.states.SetQueued(ctx, 2)

	if err := e.m.ForceMatch(ctx, 1, 2); err != nil {
		t.Fatalf("ForceMatch() error: %v", err)
	}

	p1, _, _ := e.states.Partner(ctx, 1)
	p2, _, _ := e.states.Partner(ctx, 2)
	if p1 != 2 || p2 != 1 {
		t.Errorf("pair pointers not mutual: 1->%d 2->%d", p1, p2)
	}
	if ok, _ := e.queue.Contains(ctx, 2); ok {
		t.Error("forced user still on the queue")
	}
	if !e.fake.received(1, "specially matched") {
		t.Error("forced match card missing")
	}
}

func TestForceMatch_Refusals(t *testing.T) {
	e := newTestManager(t)
	ctx := context.Background()

	if err := e.m.ForceMatch(ctx, 1, 1); !errors.Is(err, ErrConflictState) {
		t.Errorf("self-match: expected ErrConflictState, got %v", err)
	}

	e.mod.Ban(ctx, 2, moderation.ReasonSpam, "99", 0, false)
	if err := e.m.ForceMatch(ctx, 1, 2); !errors.Is(err, ErrTargetBanned) {
		t.Errorf("banned target: expected ErrTargetBanned, got %v", err)
	}

	if err := e.m.linkPair(ctx, 3, 4); err != nil {
		t.Fatalf("linkPair() error: %v", err)
	}
	if err := e.m.ForceMatch(ctx, 1, 3); !errors.Is(err, ErrConflictState) {
		t.Errorf("chatting target: expected ErrConflictState, got %v", err)
	}
}
