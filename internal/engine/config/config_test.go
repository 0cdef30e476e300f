package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "apistatus.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
upstream: http://backend:9000
redis:
  host: redis.internal
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "127.0.0.1:9090", cfg.AdminListen)
	assert.Equal(t, int64(600), cfg.ExpiredSeconds)
	assert.True(t, cfg.Breaker.Enabled)
	assert.Equal(t, "fuse_rules", cfg.Breaker.FuseRules)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "redis.internal", cfg.Redis.Host)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: ":8888"
upstream: https://api.example.com
expired_seconds: 1200
redis:
  host: r1
  port: 6380
  pool_size: 50
breaker:
  enabled: false
rate_limit:
  enabled: true
  rate_rules: device_rules
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8888", cfg.Listen)
	assert.Equal(t, int64(1200), cfg.ExpiredSeconds)
	assert.False(t, cfg.Breaker.Enabled)
	assert.Equal(t, "device_rules", cfg.RateLimit.RateRules)
	assert.Equal(t, 6380, cfg.Redis.Port)
	assert.Equal(t, "api.example.com", cfg.UpstreamURL().Host)
}

func TestLoadEnvAuthOverride(t *testing.T) {
	t.Setenv("REDIS_AUTH", "s3cret")
	path := writeConfig(t, `
upstream: http://backend:9000
redis:
  host: r1
  auth: file-auth
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Redis.Auth)
}

func TestLoadValidation(t *testing.T) {
	for name, content := range map[string]string{
		"missing upstream":   "redis:\n  host: r1\n",
		"relative upstream":  "upstream: backend\nredis:\n  host: r1\n",
		"missing redis host": "upstream: http://b:1\n",
		"bad retention":      "upstream: http://b:1\nexpired_seconds: -5\nredis:\n  host: r1\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "upstream: http://b:1\nredis:\n  host: r1\ntypo_key: true\n"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}
