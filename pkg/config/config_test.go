package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripnara/readiness/pkg/config"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults
// when no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	os.Unsetenv("PORT")
	t.Setenv("LOG_LEVEL", "")
	os.Unsetenv("LOG_LEVEL")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Empty(t, cfg.DatabaseURL, "trips default to memory")
	assert.Equal(t, 720*time.Hour, cfg.RepairTTL)
	assert.Equal(t, 30*time.Second, cfg.EvidenceTimeout)
	assert.False(t, cfg.OTelEnabled)
	assert.Empty(t, cfg.ArchiveBackend, "report archiving is off by default")
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

// TestLoad_Overrides verifies that environment variables override defaults.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://production:5432/trips")
	t.Setenv("READINESS_EVIDENCE_TIMEOUT", "5s")
	t.Setenv("OTEL_ENABLED", "true")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, "postgres://production:5432/trips", cfg.DatabaseURL)
	assert.Equal(t, 5*time.Second, cfg.EvidenceTimeout)
	assert.True(t, cfg.OTelEnabled)
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("READINESS_PACKS_DIR=/etc/readiness/packs\nPORT=7000\n"), 0o600))
	t.Setenv("PORT", "7100")
	t.Setenv("READINESS_PACKS_DIR", "")
	os.Unsetenv("READINESS_PACKS_DIR")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/etc/readiness/packs", cfg.PacksDir)
	assert.Equal(t, "7100", cfg.Port, "process env wins over .env")
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}
