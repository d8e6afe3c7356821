// Package metrics provides Prometheus instrumentation for the relay bot:
// gauges for queue depth and live pairs, counters for relayed and blocked
// messages, and histograms for match wait time.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueueSize tracks the current number of users waiting for a partner.
	QueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_queue_size",
		Help: "Current number of users in the waiting queue",
	})

	// ActivePairs tracks the current number of live chat pairs.
	ActivePairs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_active_pairs",
		Help: "Current number of active chat pairs",
	})

	// MessagesTotal counts relayed messages by envelope type.
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_messages_total",
		Help: "Total messages relayed to partners",
	}, []string{"type"})

	// BlockedTotal counts messages dropped at a router gate.
	BlockedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_blocked_messages_total",
		Help: "Total messages dropped by a gate",
	}, []string{"gate"}) // gate = "ban", "media", "filter", "ratelimit", "no_partner"

	// MatchesTotal counts created pairs, labeled by origin.
	MatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_matches_total",
		Help: "Total pairs created",
	}, []string{"origin"}) // origin = "queue", "forced"

	// BansTotal counts issued bans.
	BansTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_bans_total",
		Help: "Total bans issued",
	}, []string{"kind"}) // kind = "manual", "auto"

	// MatchWait records how long matched users spent waiting in the queue.
	MatchWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_match_wait_seconds",
		Help:    "Time from enqueue to match",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
)

func init() {
	prometheus.MustRegister(
		QueueSize,
		ActivePairs,
		MessagesTotal,
		BlockedTotal,
		MatchesTotal,
		BansTotal,
		MatchWait,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
