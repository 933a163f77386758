package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  log_level: DEBUG
store:
  driver: memory
execution:
  max_retries: 5
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.App.LogLevel)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 5, cfg.Execution.MaxRetries)

	// Untouched sections keep their defaults
	assert.Equal(t, 5000, cfg.Queue.WorkerIntervalMs)
	assert.Equal(t, "@every 5m", cfg.Reconcile.SyncSchedule)
	assert.Equal(t, 30*time.Second, cfg.Execution.MonitorBudget())
}

func TestLoadConfig_ExpandsEnvVars(t *testing.T) {
	t.Setenv("WEBHOOK_TOKEN", "tok-123")

	path := writeConfig(t, `
store:
  driver: memory
webhook:
  enabled: true
  url: https://hooks.example.com
  auth_token: ${WEBHOOK_TOKEN}
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "tok-123", cfg.Webhook.AuthToken.Reveal())
}

func TestLoadConfig_ValidationFailures(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantMsg string
	}{
		{
			"bad log level",
			"app:\n  log_level: LOUD\nstore:\n  driver: memory\n",
			"app.log_level",
		},
		{
			"sqlite without path",
			"store:\n  driver: sqlite\n  path: \"\"\n",
			"store.path",
		},
		{
			"unknown store driver",
			"store:\n  driver: postgres\n",
			"store.driver",
		},
		{
			"webhook enabled without url",
			"store:\n  driver: memory\nwebhook:\n  enabled: true\n",
			"webhook.url",
		},
		{
			"per hour below per minute",
			"store:\n  driver: memory\nrate_limits:\n  \"create_order:engine\":\n    per_minute: 100\n    per_hour: 10\n",
			"per_hour",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestDefaultConfig_IsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestSecret_RedactsEverywhere(t *testing.T) {
	s := Secret("super-secret-token")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, `"[REDACTED]"`, fmt.Sprintf("%#v", s))
	assert.Equal(t, "super-secret-token", s.Reveal())

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `"[REDACTED]"`, string(out))

	yml, err := yaml.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(yml), "super-secret-token")
}

func TestConfig_StringMasksSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Webhook.AuthToken = "do-not-print"

	out := cfg.String()
	assert.NotContains(t, out, "do-not-print")
	assert.Contains(t, out, "log_level")
}
