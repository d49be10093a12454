package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "bot:\n  account_id: \"10001\"\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "10001", cfg.Bot.AccountID)
	assert.Equal(t, 4*time.Second, cfg.Recall.GracePeriod)
	assert.Equal(t, 10*time.Second, cfg.Recall.Window)
	assert.Equal(t, 5, cfg.Recall.Limit)
	assert.EqualValues(t, 4, cfg.Generation.MaxConcurrent)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Same(t, cfg, Get())
}

func TestLoadOverridesAndSettings(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
recall:
  grace_period: 2s
  commands: ["delete_msg"]
components:
  enable_verbose_debug: true
models:
  m1:
    base_url: "https://api.example.com"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Recall.GracePeriod)
	assert.Equal(t, []string{"delete_msg"}, cfg.Recall.Commands)
	assert.True(t, VerboseDebug(Settings()))
	assert.Equal(t, "https://api.example.com", Settings().GetString("models.m1.base_url"))
}

func TestLoadBotIDFromEnv(t *testing.T) {
	t.Setenv("BOT_ACCOUNT_ID", "20002")
	cfg, err := Load(writeConfig(t, "log:\n  level: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, "20002", cfg.Bot.AccountID)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
