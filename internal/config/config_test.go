package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := config.Default()

	require.Equal(t, "http://localhost:8080/api/v1", cfg.GetAuthBaseURL())
	require.Equal(t, zerolog.InfoLevel, cfg.GetLogLevel())
	require.Equal(t, 30*time.Second, cfg.GetHTTPTimeout())
	require.Equal(t, 3, cfg.GetRetryAttempts())
	require.Equal(t, time.Second, cfg.GetRetryDelay())
	rps, _ := cfg.GetRateLimit()
	require.Zero(t, rps)

	require.Equal(t, 5*time.Minute, cfg.GetRefreshInterval())
	require.Equal(t, 30*time.Minute, cfg.GetIdleTimeout())
	require.Equal(t, 2*time.Minute, cfg.GetWarningWindow())
	require.True(t, cfg.GetAutoRefresh())
	require.True(t, cfg.GetTrackActivity())

	require.Equal(t, config.BackendBolt, cfg.GetStorageBackend())
	require.Empty(t, cfg.GetSealKey())
	require.False(t, cfg.SSOEnabled())
}

func TestFromMap(t *testing.T) {
	cfg, err := config.FromMap(map[string]string{
		"AUTH_BASE_URL":          "https://api.example.com/api/v1",
		"LOG_LEVEL":              "debug",
		"HTTP_TIMEOUT":           "5s",
		"HTTP_RETRY_ATTEMPTS":    "5",
		"HTTP_RATE_LIMIT_RPS":    "2.5",
		"HTTP_RATE_LIMIT_BURST":  "4",
		"SESSION_IDLE_TIMEOUT":   "10m",
		"SESSION_TRACK_ACTIVITY": "false",
		"STORAGE_BACKEND":        "redis",
		"STORAGE_REDIS_URL":      "redis://cache:6379/2",
		"SSO_ISSUER_URL":         "https://idp.example.com",
		"SSO_CLIENT_ID":          "client",
	})
	require.NoError(t, err)

	require.Equal(t, "https://api.example.com/api/v1", cfg.GetAuthBaseURL())
	require.Equal(t, zerolog.DebugLevel, cfg.GetLogLevel())
	require.Equal(t, 5*time.Second, cfg.GetHTTPTimeout())
	require.Equal(t, 5, cfg.GetRetryAttempts())
	rps, burst := cfg.GetRateLimit()
	require.Equal(t, 2.5, rps)
	require.Equal(t, 4, burst)
	require.Equal(t, 10*time.Minute, cfg.GetIdleTimeout())
	require.False(t, cfg.GetTrackActivity())
	require.Equal(t, config.BackendRedis, cfg.GetStorageBackend())
	require.Equal(t, "redis://cache:6379/2", cfg.GetRedisURL())
	require.True(t, cfg.SSOEnabled())
}

func TestInvalid(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown backend": {"STORAGE_BACKEND": "sqlite"},
		"bad duration":    {"HTTP_TIMEOUT": "soon"},
		"zero attempts":   {"HTTP_RETRY_ATTEMPTS": "0"},
		"not a bool":      {"SESSION_AUTO_REFRESH": "perhaps"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := config.FromMap(vars)
			require.Error(t, err)
		})
	}
}

func TestUnknownLogLevel(t *testing.T) {
	cfg, err := config.FromMap(map[string]string{"LOG_LEVEL": "chatty"})
	require.NoError(t, err)
	require.Equal(t, zerolog.InfoLevel, cfg.GetLogLevel())
}

func TestLoad_DotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("AUTH_BASE_URL=http://dotenv.test/api/v1\n"), 0o600))
	t.Setenv("AUTH_BASE_URL", "")
	require.NoError(t, os.Unsetenv("AUTH_BASE_URL"))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "http://dotenv.test/api/v1", cfg.GetAuthBaseURL())
}
