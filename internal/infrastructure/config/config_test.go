package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8600", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	assert.Equal(t, "apps.yaml", cfg.Apps.File)

	assert.Equal(t, 60*time.Second, cfg.Exec.ActionTimeout)
	assert.Equal(t, 120*time.Second, cfg.Exec.UpdateTimeout)
	assert.Equal(t, 5*time.Second, cfg.Exec.GracePeriod)
	assert.Equal(t, 30*time.Second, cfg.Exec.LockWait)
	assert.Equal(t, 2*1024*1024, cfg.Exec.CaptureBytes)

	assert.Equal(t, 50, cfg.Logs.DefaultLines)
	assert.Equal(t, 500, cfg.Logs.MaxLines)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	assert.True(t, cfg.RateLimit.Enabled)

	assert.NoError(t, cfg.Validate())
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"APPMAN_PORT":           "9000",
		"APPMAN_HOST":           "127.0.0.1",
		"APPMAN_APPS_FILE":      "/etc/appman/apps.yaml",
		"APPMAN_ACTION_TIMEOUT": "30s",
		"APPMAN_GRACE_PERIOD":   "2s",
		"APPMAN_LOCK_WAIT":      "5s",
		"APPMAN_LOG_LEVEL":      "debug",
		"APPMAN_LOG_DEV":        "true",
		"APPMAN_LOG_NOISE":      "poll,/ping",
		"APPMAN_ADMIN_TOKENS":   "root-token",
		"APPMAN_ALLOWED_TOKENS": "a,b",
		"APPMAN_WEBHOOK_URL":    "http://hooks.local/appman",
	}
	for key, value := range envVars {
		os.Setenv(key, value)
	}
	defer func() {
		for key := range envVars {
			os.Unsetenv(key)
		}
	}()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "/etc/appman/apps.yaml", cfg.Apps.File)
	assert.Equal(t, 30*time.Second, cfg.Exec.ActionTimeout)
	assert.Equal(t, 2*time.Second, cfg.Exec.GracePeriod)
	assert.Equal(t, 5*time.Second, cfg.Exec.LockWait)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, []string{"poll", "/ping"}, cfg.Logs.Noise)
	assert.Equal(t, []string{"root-token"}, cfg.Auth.AdminTokens)
	assert.Equal(t, []string{"a", "b"}, cfg.Auth.AllowedTokens)
	assert.Equal(t, "http://hooks.local/appman", cfg.Notify.WebhookURL)
}

func TestValidateRejectsBadBounds(t *testing.T) {
	cfg := Default()
	cfg.Exec.ActionTimeout = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Exec.CaptureBytes = -1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Logs.MaxLines = 10
	cfg.Logs.DefaultLines = 50
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Apps.File = ""
	assert.Error(t, cfg.Validate())
}
