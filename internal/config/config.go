// Package config defines service configuration structures and loading hooks.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/okian/highscore/internal/domain/leaderboard"
)

// Backend names accepted by RankedStore and RecordStore.
const (
	RankedStoreMemory = "memory"
	RankedStoreRedis  = "redis"
	RecordStoreBadger = "badger"
	RecordStoreMongo  = "mongo"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// PersonalLimit caps each personal leaderboard. GameLimit caps game
	// leaderboard reads.
	PersonalLimit int `koanf:"personal_limit"`
	GameLimit     int `koanf:"game_limit"`

	// WeekStart is monday or sunday. Timezone is an IANA zone name used to
	// cut day, week and month windows.
	WeekStart string `koanf:"week_start"`
	Timezone  string `koanf:"timezone"`

	// RankedStore is memory or redis.
	RankedStore string `koanf:"ranked_store"`
	RedisAddr   string `koanf:"redis_addr"`
	RedisDB     int    `koanf:"redis_db"`

	// RecordStore is badger or mongo. An empty BadgerDir keeps records in
	// memory.
	RecordStore   string `koanf:"record_store"`
	BadgerDir     string `koanf:"badger_dir"`
	MongoURI      string `koanf:"mongo_uri"`
	MongoDatabase string `koanf:"mongo_database"`

	// NotifyQueueSize bounds the notification queue; NotifyWorkers sets the
	// publisher pool size.
	NotifyQueueSize int `koanf:"notify_queue_size"`
	NotifyWorkers   int `koanf:"notify_workers"`

	// KafkaBrokers is a comma-separated broker list. Empty means
	// notifications are only logged.
	KafkaBrokers string `koanf:"kafka_brokers"`
	KafkaTopic   string `koanf:"kafka_topic"`

	// KafkaBatchTimeoutMS is how long the writer waits to fill a batch.
	KafkaBatchTimeoutMS int `koanf:"kafka_batch_timeout_ms"`

	// DedupeSize sets how many request ids are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// StoreTimeoutMS bounds a single ranked store round trip.
	StoreTimeoutMS int `koanf:"store_timeout_ms"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		PersonalLimit:       leaderboard.DefaultPersonalLimit,
		GameLimit:           leaderboard.DefaultGameLimit,
		WeekStart:           "monday",
		Timezone:            "UTC",
		RankedStore:         RankedStoreMemory,
		RedisAddr:           "localhost:6379",
		RecordStore:         RecordStoreBadger,
		MongoURI:            "mongodb://localhost:27017",
		MongoDatabase:       "highscore",
		NotifyQueueSize:     10_000,
		NotifyWorkers:       runtime.NumCPU(),
		KafkaTopic:          "highscore.scores",
		KafkaBatchTimeoutMS: 100,
		DedupeSize:          50_000,
		StoreTimeoutMS:      2000,
	}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.PersonalLimit < 1:
		return fmt.Errorf("%w: personal_limit must be positive, got %d", ErrInvalidConfig, c.PersonalLimit)
	case c.GameLimit < 1:
		return fmt.Errorf("%w: game_limit must be positive, got %d", ErrInvalidConfig, c.GameLimit)
	case c.NotifyQueueSize < 1:
		return fmt.Errorf("%w: notify_queue_size must be positive, got %d", ErrInvalidConfig, c.NotifyQueueSize)
	case c.StoreTimeoutMS < 1:
		return fmt.Errorf("%w: store_timeout_ms must be positive, got %d", ErrInvalidConfig, c.StoreTimeoutMS)
	case c.KafkaBatchTimeoutMS < 1:
		return fmt.Errorf("%w: kafka_batch_timeout_ms must be positive, got %d", ErrInvalidConfig, c.KafkaBatchTimeoutMS)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	}
	switch c.RankedStore {
	case RankedStoreMemory:
	case RankedStoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis_addr is required for the redis ranked store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: %w: ranked_store %q", ErrInvalidConfig, ErrUnknownBackend, c.RankedStore)
	}
	switch c.RecordStore {
	case RecordStoreBadger:
	case RecordStoreMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			return fmt.Errorf("%w: mongo_uri and mongo_database are required for the mongo record store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: %w: record_store %q", ErrInvalidConfig, ErrUnknownBackend, c.RecordStore)
	}
	if _, err := c.WeekStartDay(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// WeekStartDay parses WeekStart.
func (c *Config) WeekStartDay() (time.Weekday, error) {
	return leaderboard.ParseWeekStart(c.WeekStart)
}

// Location loads Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// StoreTimeout returns StoreTimeoutMS as a duration.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutMS) * time.Millisecond
}

// KafkaBatchTimeout returns KafkaBatchTimeoutMS as a duration.
func (c *Config) KafkaBatchTimeout() time.Duration {
	return time.Duration(c.KafkaBatchTimeoutMS) * time.Millisecond
}

// Brokers splits KafkaBrokers into addresses.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
