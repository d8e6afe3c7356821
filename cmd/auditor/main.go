package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/veilchat/relay/internal/config"
	"github.com/veilchat/relay/internal/events"
	"github.com/veilchat/relay/internal/report"
)

func main() {
	log.Println("Starting VeilChat audit archiver...")

	cfg := config.Load()
	if cfg.PostgresURL == "" {
		log.Fatal("POSTGRES_URL is required")
	}

	// Postgres setup.
	if err := report.Migrate(cfg.PostgresURL); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}
	archive, err := report.Open(cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}

	// NATS setup.
	natsCfg := events.DefaultConfig()
	natsCfg.URL = cfg.NATSURL
	natsCfg.Name = "veilchat-auditor"
	bus, err := events.Connect(natsCfg)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	a := &archiver{store: archive}
	sub, err := bus.Subscribe("relay.>", a.handle)
	if err != nil {
		log.Fatalf("failed to subscribe: %v", err)
	}

	log.Printf("VeilChat audit archiver running")
	log.Printf("  nats_url: %s", cfg.NATSURL)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	sub.Unsubscribe()
	bus.Close()
	archive.Close()
}

type archiver struct {
	store *report.Store
}

// handle archives one audit event. Lifecycle subjects without a table
// (match.created, pair.broken, message.blocked) are logged only.
func (a *archiver) handle(subject string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch subject {
	case events.SubjectReportFiled:
		var e events.ReportFiled
		if err := json.Unmarshal(data, &e); err != nil {
			log.Printf("[auditor] bad %s payload: %v", subject, err)
			return
		}
		err := a.store.CreateReport(ctx, report.Report{
			ID:       e.ReportID,
			Reporter: e.Reporter,
			Target:   e.Target,
			Count:    e.Count,
			FiledAt:  time.Unix(e.Ts, 0),
		})
		if err != nil {
			log.Printf("[auditor] archive report: %v", err)
		}

	case events.SubjectBanIssued:
		var e events.BanIssued
		if err := json.Unmarshal(data, &e); err != nil {
			log.Printf("[auditor] bad %s payload: %v", subject, err)
			return
		}
		entry := report.BanEntry{
			Target:    e.Target,
			Reason:    e.Reason,
			BannedBy:  e.BannedBy,
			Permanent: e.Permanent,
			AutoBan:   e.AutoBan,
			IssuedAt:  time.Unix(e.Ts, 0),
		}
		if e.ExpiresAt > 0 {
			entry.ExpiresAt = time.Unix(e.ExpiresAt, 0)
		}
		if err := a.store.CreateBan(ctx, entry); err != nil {
			log.Printf("[auditor] archive ban: %v", err)
		}

	case events.SubjectWarningIssued:
		var e events.WarningIssued
		if err := json.Unmarshal(data, &e); err != nil {
			log.Printf("[auditor] bad %s payload: %v", subject, err)
			return
		}
		err := a.store.CreateWarning(ctx, report.WarningEntry{
			Target:   e.Target,
			Reason:   e.Reason,
			WarnedBy: e.WarnedBy,
			IssuedAt: time.Unix(e.Ts, 0),
		})
		if err != nil {
			log.Printf("[auditor] archive warning: %v", err)
		}

	default:
		log.Printf("[auditor] %s: %s", subject, data)
	}
}
