package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/veilchat/relay/internal/bot"
	"github.com/veilchat/relay/internal/config"
	"github.com/veilchat/relay/internal/events"
	"github.com/veilchat/relay/internal/matching"
	"github.com/veilchat/relay/internal/metrics"
	"github.com/veilchat/relay/internal/moderation"
	"github.com/veilchat/relay/internal/profile"
	"github.com/veilchat/relay/internal/queue"
	"github.com/veilchat/relay/internal/ratelimit"
	"github.com/veilchat/relay/internal/rating"
	"github.com/veilchat/relay/internal/relay"
	"github.com/veilchat/relay/internal/session"
	"github.com/veilchat/relay/internal/state"
	"github.com/veilchat/relay/internal/store"
	"github.com/veilchat/relay/internal/transport/telegram"
)

func main() {
	log.Println("Starting VeilChat relay bot...")

	cfg := config.Load()
	if cfg.BotToken == "" {
		log.Fatal("BOT_TOKEN is required")
	}

	// Redis setup.
	st, err := store.New(cfg.RedisAddr)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	rdb := st.Redis()

	// NATS setup. The audit bus is optional; without it events are dropped.
	var pub *events.Publisher
	natsCfg := events.DefaultConfig()
	natsCfg.URL = cfg.NATSURL
	natsCfg.Name = "veilchat-bot"
	pub, err = events.Connect(natsCfg)
	if err != nil {
		log.Printf("audit bus unavailable, events will be dropped: %v", err)
		pub = nil
	}

	// Telegram setup.
	tg, err := telegram.New(cfg.BotToken)
	if err != nil {
		log.Fatalf("failed to connect to Telegram: %v", err)
	}
	if err := tg.RegisterCommands(); err != nil {
		log.Printf("failed to register command menu: %v", err)
	}

	// Per-concern stores over the shared connection.
	states := state.NewStore(rdb, cfg.ChatTimeout)
	q := queue.New(rdb, cfg.MaxQueueSize)
	profiles := profile.NewReader(rdb)
	ratings := rating.NewStore(rdb)
	mod := moderation.NewStore(rdb, cfg.AutoBanThreshold, cfg.AutoBanDuration)
	filter := moderation.NewFilter(cfg.BlockedTerms)
	limiter := ratelimit.NewLimiter(rdb)

	engine := matching.NewEngine(st, states, q, profiles, ratings, mod, cfg.ChatTimeout)
	sessions := session.NewManager(st, states, q, ratings, profiles, mod, tg, pub, cfg.ChatTimeout)
	messageRule := ratelimit.Rule{Op: "message", Limit: cfg.MessageLimit, Window: cfg.MessageWindow}
	router := relay.NewRouter(states, mod, filter, limiter, sessions, tg, pub, messageRule)
	b := bot.New(cfg, rdb, states, q, profiles, ratings, mod, limiter, engine, sessions, router, tg, pub)

	ctx, cancel := context.WithCancel(context.Background())

	// Metrics endpoint.
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server: %v", err)
		}
	}()

	// Background reconciliation.
	go sessions.RunSweeper(ctx)

	log.Printf("VeilChat relay bot running as @%s", tg.Username())
	cfg.LogSummary()

	// Update loop, blocks until ctx is cancelled.
	done := make(chan struct{})
	go func() {
		defer close(done)
		tg.Run(ctx, cfg.Workers, b.HandleUpdate)
	}()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	cancel()
	<-done
	metricsSrv.Close()
	pub.Close()
	st.Close()
}
