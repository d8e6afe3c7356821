// Package events publishes relay lifecycle events to NATS for the audit
// archiver and any other out-of-process consumer. Publishing is best
// effort: a NATS outage is logged and never surfaces to users.
package events

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// NATS subjects used across relay services.
const (
	SubjectMatchCreated   = "relay.match.created"
	SubjectPairBroken     = "relay.pair.broken"
	SubjectBanIssued      = "relay.ban.issued"
	SubjectWarningIssued  = "relay.warning.issued"
	SubjectReportFiled    = "relay.report.filed"
	SubjectMessageBlocked = "relay.message.blocked"
)

// MatchCreated is published when two users are paired.
type MatchCreated struct {
	MatchID string `json:"match_id"`
	UserA   int64  `json:"user_a"`
	UserB   int64  `json:"user_b"`
	Forced  bool   `json:"forced,omitempty"`
	Ts      int64  `json:"ts"`
}

// PairBroken is published when a pair ends, whatever the cause.
type PairBroken struct {
	UserA int64  `json:"user_a"`
	UserB int64  `json:"user_b"`
	Cause string `json:"cause"` // "stop", "next", "ban", "inactivity", "unreachable", "admin"
	Ts    int64  `json:"ts"`
}

// BanIssued is published for manual and automatic bans.
type BanIssued struct {
	Target    int64  `json:"target"`
	Reason    string `json:"reason"`
	BannedBy  string `json:"banned_by"`
	Permanent bool   `json:"permanent"`
	AutoBan   bool   `json:"auto_ban"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
	Ts        int64  `json:"ts"`
}

// WarningIssued is published when a moderator warns a user.
type WarningIssued struct {
	Target   int64  `json:"target"`
	Reason   string `json:"reason"`
	WarnedBy string `json:"warned_by"`
	Ts       int64  `json:"ts"`
}

// ReportFiled is published when a user reports their partner.
type ReportFiled struct {
	ReportID string `json:"report_id"`
	Reporter int64  `json:"reporter"`
	Target   int64  `json:"target"`
	Count    int64  `json:"count"`
	Ts       int64  `json:"ts"`
}

// MessageBlocked is published when the router drops a message at a gate.
type MessageBlocked struct {
	Sender int64  `json:"sender"`
	Reason string `json:"reason"` // "blocked_term", "spam_pattern", "blocked_media"
	Term   string `json:"term,omitempty"`
	Ts     int64  `json:"ts"`
}

// Publisher emits audit events. The nop value of Publisher is usable.
type Publisher struct {
	conn *nats.Conn
}

// Config holds NATS connection settings.
type Config struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	MaxReconnects int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "relay",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Connect establishes the NATS connection.
func Connect(cfg Config) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[events] disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[events] reconnected to %s", nc.ConnectedUrl())
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("events: nats connect: %w", err)
	}
	log.Printf("[events] connected to %s", nc.ConnectedUrl())
	return &Publisher{conn: nc}, nil
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		log.Printf("[events] drain: %v", err)
	}
}

// Subscribe registers a handler for a subject. Used by out-of-process
// consumers such as the audit archiver; supports wildcard subjects.
func (p *Publisher) Subscribe(subject string, fn func(subject string, data []byte)) (*nats.Subscription, error) {
	if p == nil || p.conn == nil {
		return nil, fmt.Errorf("events: not connected")
	}
	return p.conn.Subscribe(subject, func(msg *nats.Msg) {
		fn(msg.Subject, msg.Data)
	})
}

func (p *Publisher) publish(subject string, payload interface{}) {
	if p == nil || p.conn == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[events] marshal %s: %v", subject, err)
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		log.Printf("[events] publish %s: %v", subject, err)
	}
}

// MatchCreated emits a relay.match.created event with a fresh match ID.
func (p *Publisher) MatchCreated(a, b int64, forced bool) {
	p.publish(SubjectMatchCreated, MatchCreated{
		MatchID: uuid.New().String(),
		UserA:   a, UserB: b, Forced: forced,
		Ts: time.Now().Unix(),
	})
}

// PairBroken emits a relay.pair.broken event.
func (p *Publisher) PairBroken(a, b int64, cause string) {
	p.publish(SubjectPairBroken, PairBroken{UserA: a, UserB: b, Cause: cause, Ts: time.Now().Unix()})
}

// BanIssued emits a relay.ban.issued event.
func (p *Publisher) BanIssued(e BanIssued) {
	e.Ts = time.Now().Unix()
	p.publish(SubjectBanIssued, e)
}

// WarningIssued emits a relay.warning.issued event.
func (p *Publisher) WarningIssued(target int64, reason, by string) {
	p.publish(SubjectWarningIssued, WarningIssued{Target: target, Reason: reason, WarnedBy: by, Ts: time.Now().Unix()})
}

// ReportFiled emits a relay.report.filed event with a fresh report ID.
func (p *Publisher) ReportFiled(reporter, target, count int64) {
	p.publish(SubjectReportFiled, ReportFiled{
		ReportID: uuid.New().String(),
		Reporter: reporter, Target: target, Count: count,
		Ts: time.Now().Unix(),
	})
}

// MessageBlocked emits a relay.message.blocked event.
func (p *Publisher) MessageBlocked(sender int64, reason, term string) {
	p.publish(SubjectMessageBlocked, MessageBlocked{Sender: sender, Reason: reason, Term: term, Ts: time.Now().Unix()})
}
