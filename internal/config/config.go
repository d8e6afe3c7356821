// Package config loads the relay's settings from the environment. Every
// knob has a default so a bare deployment only needs BOT_TOKEN.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable of the relay processes.
type Config struct {
	BotToken    string
	RedisAddr   string
	PostgresURL string
	NATSURL     string
	MetricsAddr string

	ChatTimeout  time.Duration
	MaxQueueSize int
	Workers      int

	// Rate limits, calls per window.
	MessageLimit  int
	MessageWindow time.Duration
	ChatLimit     int
	ChatWindow    time.Duration
	NextLimit     int
	NextWindow    time.Duration

	AutoBanThreshold int
	AutoBanDuration  time.Duration

	AdminIDs     []int64
	BlockedTerms []string
}

// Load reads the configuration from the environment.
func Load() Config {
	cfg := Config{
		BotToken:    os.Getenv("BOT_TOKEN"),
		RedisAddr:   envString("REDIS_ADDR", "localhost:6379"),
		PostgresURL: envString("POSTGRES_URL", ""),
		NATSURL:     envString("NATS_URL", "nats://localhost:4222"),
		MetricsAddr: envString("METRICS_ADDR", ":9100"),

		ChatTimeout:  envDuration("CHAT_TIMEOUT", 600*time.Second),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 1000),
		Workers:      envInt("WORKER_POOL_SIZE", 16),

		MessageLimit:  envInt("MESSAGE_RATE_LIMIT", 20),
		MessageWindow: envDuration("MESSAGE_RATE_WINDOW", time.Minute),
		ChatLimit:     envInt("CHAT_RATE_LIMIT", 5),
		ChatWindow:    envDuration("CHAT_RATE_WINDOW", time.Minute),
		NextLimit:     envInt("NEXT_RATE_LIMIT", 3),
		NextWindow:    envDuration("NEXT_RATE_WINDOW", time.Minute),

		AutoBanThreshold: envInt("AUTO_BAN_THRESHOLD", 5),
		AutoBanDuration:  envDuration("AUTO_BAN_DURATION", 7*24*time.Hour),

		AdminIDs:     envInt64List("ADMIN_IDS"),
		BlockedTerms: envStringList("BLOCKED_TERMS"),
	}
	return cfg
}

// LogSummary prints the non-secret settings at startup.
func (c Config) LogSummary() {
	log.Printf("  redis_addr:        %s", c.RedisAddr)
	log.Printf("  nats_url:          %s", c.NATSURL)
	log.Printf("  metrics_addr:      %s", c.MetricsAddr)
	log.Printf("  chat_timeout:      %s", c.ChatTimeout)
	log.Printf("  max_queue_size:    %d", c.MaxQueueSize)
	log.Printf("  worker_pool:       %d", c.Workers)
	log.Printf("  auto_ban:          %d reports / %s", c.AutoBanThreshold, c.AutoBanDuration)
	log.Printf("  admins:            %d", len(c.AdminIDs))
	log.Printf("  blocked_terms:     %d", len(c.BlockedTerms))
}

// IsAdmin reports whether id is in the configured admin list.
func (c Config) IsAdmin(id int64) bool {
	for _, a := range c.AdminIDs {
		if a == id {
			return true
		}
	}
	return false
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		log.Printf("[config] invalid %s=%q, using %d", key, v, def)
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
		log.Printf("[config] invalid %s=%q, using %s", key, v, def)
	}
	return def
}

func envInt64List(key string) []int64 {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []int64
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			log.Printf("[config] invalid id in %s: %q", key, part)
			continue
		}
		out = append(out, id)
	}
	return out
}

func envStringList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
