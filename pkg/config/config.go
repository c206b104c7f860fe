package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds server configuration.
type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// PacksDir holds extra capability packs; empty uses the built-ins only.
	PacksDir string `env:"READINESS_PACKS_DIR"`
	// ProfilesDir holds destination profile_<code>.yaml files.
	ProfilesDir string `env:"READINESS_PROFILES_DIR"`
	// TripsDir holds *.json trip contexts saved into the repository at startup.
	TripsDir string `env:"READINESS_TRIPS_DIR"`

	// DatabaseURL selects the Postgres trip repository; empty keeps trips in memory.
	DatabaseURL string `env:"DATABASE_URL"`
	// RedisAddr selects the Redis repair ledger; empty keeps the ledger in memory.
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	RepairTTL     time.Duration `env:"READINESS_REPAIR_TTL" envDefault:"720h"`

	// EvidenceDB is the SQLite path for evidence task snapshots; empty keeps them in memory.
	EvidenceDB      string        `env:"READINESS_EVIDENCE_DB"`
	EvidenceRate    float64       `env:"READINESS_EVIDENCE_RATE" envDefault:"20"`
	EvidenceBurst   int           `env:"READINESS_EVIDENCE_BURST" envDefault:"5"`
	EvidenceTimeout time.Duration `env:"READINESS_EVIDENCE_TIMEOUT" envDefault:"30s"`
	EvidenceLatency time.Duration `env:"READINESS_EVIDENCE_LATENCY" envDefault:"50ms"`

	// ArchiveBackend is fs, s3 or gcs; empty disables report archiving.
	ArchiveBackend  string `env:"READINESS_ARCHIVE_BACKEND"`
	ArchiveDir      string `env:"READINESS_ARCHIVE_DIR" envDefault:"data/reports"`
	ArchiveBucket   string `env:"READINESS_ARCHIVE_BUCKET"`
	ArchivePrefix   string `env:"READINESS_ARCHIVE_PREFIX"`
	ArchiveEndpoint string `env:"READINESS_ARCHIVE_ENDPOINT"`
	AWSRegion       string `env:"AWS_REGION" envDefault:"us-east-1"`

	PackConcurrency   int           `env:"READINESS_PACK_CONCURRENCY" envDefault:"0"`
	RateLimitRPS      float64       `env:"READINESS_RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst    int           `env:"READINESS_RATE_LIMIT_BURST" envDefault:"20"`
	OTelEnabled       bool          `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint      string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	Environment       string        `env:"READINESS_ENV" envDefault:"development"`
	ShutdownTimeout   time.Duration `env:"READINESS_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	ReadHeaderTimeout time.Duration `env:"READINESS_READ_HEADER_TIMEOUT" envDefault:"5s"`
}

// Load reads an optional .env file and parses configuration from the environment.
// Variables already set in the environment win over .env entries.
func Load(dotenvFiles ...string) (*Config, error) {
	if err := godotenv.Load(dotenvFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.EvidenceRate < 0 || cfg.RateLimitRPS < 0 {
		return nil, fmt.Errorf("parse env: rate limits must not be negative")
	}
	return cfg, nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
