package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every tunable the services need. It is built once at startup
// and passed by value to constructors; nothing mutates it afterwards.
type Config struct {
	HTTPAddr      string
	RedisAddr     string
	RedisPassword string
	DatabaseDSN   string

	PubNub PubNubConfig

	// Scheduler cadences.
	MatchInterval      time.Duration
	CleanupInterval    time.Duration
	ContinuityInterval time.Duration
	TickTimeout        time.Duration

	// Queue and grace-period expiry.
	QueueTTL time.Duration
	GraceTTL time.Duration

	// Wait estimate: WaitPerUser seconds per user ahead, capped at WaitCap.
	WaitPerUser time.Duration
	WaitCap     time.Duration

	// MatchingEnabled freezes the match and cleanup ticks when false.
	// Already-paired calls are unaffected.
	MatchingEnabled bool

	// AutoStartCalls moves a call to IN_PROGRESS right after pairing instead
	// of waiting for a participant start signal. Used by auto-recording setups.
	AutoStartCalls bool

	WorkerConcurrency int
}

type PubNubConfig struct {
	PublishKey   string
	SubscribeKey string
	SecretKey    string
	UUIDKey      string
	UUIDSubKey   string
}

// Load reads configuration from the environment, falling back to a local .env
// file when present.
func Load() (Config, error) {
	if os.Getenv("ENV_CHECK") == "" {
		// .env is optional; real deployments set the environment directly.
		_ = godotenv.Load()
	}

	cfg := Config{
		HTTPAddr:      envString("HTTP_ADDR", ":8081"),
		RedisAddr:     envString("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		DatabaseDSN:   os.Getenv("DATABASE_DSN"),
		PubNub: PubNubConfig{
			PublishKey:   os.Getenv("PN_PUBLISH_KEY"),
			SubscribeKey: os.Getenv("PN_SUBSCRIBE_KEY"),
			SecretKey:    os.Getenv("PN_SECRET_KEY"),
			UUIDKey:      envString("PN_UUID_KEY", "voicematch-server"),
			UUIDSubKey:   envString("PN_UUID_SUB_KEY", "voicematch-client"),
		},
	}

	var err error
	if cfg.MatchInterval, err = envDuration("MATCH_INTERVAL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.CleanupInterval, err = envDuration("CLEANUP_INTERVAL", 5*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.ContinuityInterval, err = envDuration("CONTINUITY_INTERVAL", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.TickTimeout, err = envDuration("TICK_TIMEOUT", 25*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.QueueTTL, err = envDuration("QUEUE_TTL", 600*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.GraceTTL, err = envDuration("GRACE_TTL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.WaitPerUser, err = envDuration("WAIT_PER_USER", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.WaitCap, err = envDuration("WAIT_CAP", 600*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.MatchingEnabled, err = envBool("MATCHING_ENABLED", true); err != nil {
		return Config{}, err
	}
	if cfg.AutoStartCalls, err = envBool("AUTO_START_CALLS", false); err != nil {
		return Config{}, err
	}
	if cfg.WorkerConcurrency, err = envInt("WORKER_CONCURRENCY", 10); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s=%q: %w", key, v, err)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s=%q: %w", key, v, err)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %s=%q: %w", key, v, err)
	}
	return b, nil
}
