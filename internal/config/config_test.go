package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"

[server]
port = 9001

[oracle]
min_milestones = 5
overdue_grace = "168h"
accounts = ["0x1111111111111111111111111111111111111111"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Oracle.MinMilestones)
	assert.Equal(t, 7*24*time.Hour, cfg.Oracle.OverdueGrace.Duration)
	require.Len(t, cfg.OracleAddresses(), 1)

	// Untouched sections keep their defaults.
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 5432, cfg.Postgres.Port)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9001
`)
	t.Setenv("INFRABOND_SERVER_PORT", "9002")
	t.Setenv("INFRABOND_STORAGE_DRIVER", "postgres")
	t.Setenv("INFRABOND_POSTGRES_PASSWORD", "hunter2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9002, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "loud"
	cfg.Server.Port = 0
	cfg.Storage.Driver = "sqlite"
	cfg.Oracle.MinMilestones = 0
	cfg.Oracle.Accounts = []string{"not-an-address"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "port")
	assert.Contains(t, err.Error(), "driver")
	assert.Contains(t, err.Error(), "min_milestones")
	assert.Contains(t, err.Error(), "not-an-address")
}

func TestValidateRateLimitRequiresRedis(t *testing.T) {
	cfg := Defaults()
	cfg.Server.RateLimitEnabled = true
	cfg.Redis.Enabled = false

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "secret"
	cfg.Redis.Password = "secret"
	cfg.S3.SecretKey = "secret"
	cfg.Notify.TelegramToken = "secret"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// Original untouched.
	assert.Equal(t, "secret", cfg.Postgres.Password)
}
