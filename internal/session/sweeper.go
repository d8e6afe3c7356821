package session

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/veilchat/relay/internal/metrics"
	"github.com/veilchat/relay/internal/store"
)

func formatID(id int64) string { return strconv.FormatInt(id, 10) }

// RunSweeper runs the background reconciliation loop until ctx is
// cancelled. Each tick it breaks pairs idle past the chat timeout and
// removes queue entries whose state no longer says in_queue. The tick is
// a tenth of the timeout so an idle chat ends close to its deadline.
func (m *Manager) RunSweeper(ctx context.Context) {
	interval := m.chatTTL / 10
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[sweeper] stopped")
			return
		case <-ticker.C:
			m.sweepIdlePairs(ctx)
			m.reconcileQueue(ctx)
			m.updateGauges(ctx)
		}
	}
}

// sweepIdlePairs ends chats whose last activity is older than the chat
// timeout. Breaking one side removes both from the active index, so the
// partner's own stale entry never double-fires.
func (m *Manager) sweepIdlePairs(ctx context.Context) {
	stale, err := m.states.StaleActive(ctx, time.Now().Add(-m.chatTTL))
	if err != nil {
		log.Printf("[sweeper] stale scan: %v", err)
		return
	}

	for _, id := range stale {
		_, broke, err := m.Break(ctx, id, CauseInactivity)
		if err != nil {
			log.Printf("[sweeper] break %d: %v", id, err)
			continue
		}
		if !broke {
			// No live pair behind the entry; drop it.
			if err := m.states.Untrack(ctx, id); err != nil {
				log.Printf("[sweeper] untrack %d: %v", id, err)
			}
		}
	}
}

// reconcileQueue drops queue entries whose state key expired or changed, so
// stale residents cannot be offered as candidates forever.
func (m *Manager) reconcileQueue(ctx context.Context) {
	ids, err := m.queue.Snapshot(ctx)
	if err != nil {
		log.Printf("[sweeper] queue snapshot: %v", err)
		return
	}

	removed := 0
	for _, id := range ids {
		status, err := m.states.Status(ctx, id)
		if err != nil {
			continue
		}
		if status != store.StatusQueued {
			if ok, err := m.queue.Remove(ctx, id); err == nil && ok {
				removed++
			}
		}
	}
	if removed > 0 {
		log.Printf("[sweeper] removed %d stale queue entries", removed)
	}
}

func (m *Manager) updateGauges(ctx context.Context) {
	if n, err := m.queue.Len(ctx); err == nil {
		metrics.QueueSize.Set(float64(n))
	}
	if n, err := m.states.ActiveCount(ctx); err == nil {
		metrics.ActivePairs.Set(float64(n) / 2)
	}
}
