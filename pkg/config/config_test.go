package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.True(t, cfg.Storage.CacheEnabled)
	assert.Equal(t, 4096, cfg.Storage.CacheSize)

	assert.Empty(t, cfg.Schema.Dir)
	assert.True(t, cfg.Schema.Watch)

	assert.Equal(t, 30*time.Second, cfg.Feed.Timeout)
	assert.Equal(t, "@every 1h", cfg.Feed.SweepSchedule)

	assert.Equal(t, "info", cfg.Observability.LogLevel)
	assert.True(t, cfg.Observability.MetricsEnabled)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("MANAGE_PORT", "8888")
	t.Setenv("MANAGE_READ_TIMEOUT", "5s")
	t.Setenv("MANAGE_STORAGE_TYPE", "postgres")
	t.Setenv("MANAGE_POSTGRES_URL", "postgres://localhost/manage")
	t.Setenv("MANAGE_POSTGRES_MAX_CONNS", "50")
	t.Setenv("MANAGE_CACHE_ENABLED", "false")
	t.Setenv("MANAGE_SCHEMA_DIR", "/etc/manage/schemas")
	t.Setenv("MANAGE_PUSH_ENDPOINT", "https://engine.example.org/push")
	t.Setenv("MANAGE_FEED_URL", "https://mds.edugain.org/edugain-v2.xml")
	t.Setenv("MANAGE_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8888", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "postgres", cfg.Storage.Type)
	assert.Equal(t, "postgres://localhost/manage", cfg.Storage.PostgresURL)
	assert.Equal(t, 50, cfg.Storage.PostgresMaxConns)
	assert.False(t, cfg.Storage.CacheEnabled)
	assert.Equal(t, "/etc/manage/schemas", cfg.Schema.Dir)
	assert.Equal(t, "https://engine.example.org/push", cfg.Push.Endpoint)
	assert.Equal(t, "https://mds.edugain.org/edugain-v2.xml", cfg.Feed.URL)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
}

func TestLoadConfigInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("MANAGE_WRITE_TIMEOUT", "not-a-duration")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "colliding ports",
			env:     map[string]string{"MANAGE_PORT": "9090"},
			wantErr: "server port and health port must be different",
		},
		{
			name:    "postgres without URL",
			env:     map[string]string{"MANAGE_STORAGE_TYPE": "postgres"},
			wantErr: "postgres URL is required",
		},
		{
			name:    "unknown storage type",
			env:     map[string]string{"MANAGE_STORAGE_TYPE": "cassandra"},
			wantErr: "invalid storage type",
		},
		{
			name: "token URL without credentials",
			env: map[string]string{
				"MANAGE_OIDC_BASE_URL":  "https://oidc.example.org",
				"MANAGE_OIDC_TOKEN_URL": "https://oidc.example.org/token",
			},
			wantErr: "OIDC client credentials are required",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for key, value := range tc.env {
				t.Setenv(key, value)
			}
			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
