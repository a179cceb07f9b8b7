package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/project-service/internal/auth"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "test-secret")
	t.Setenv("AUTH_HASH_CONCURRENCY", "")
	t.Setenv("AUTH_PASSWORD_ITERATIONS", "")
	t.Setenv("AUTH_MEMBERSHIP_CACHE_BACKEND", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "project-service", cfg.App.Name)
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, 30*time.Second, cfg.App.RequestTimeout())
	assert.Equal(t, "pbkdf2-sha256", cfg.Auth.PasswordAlgorithm)
	assert.Equal(t, 150_000, cfg.Auth.PasswordIterations)
	assert.Equal(t, 5*time.Minute, cfg.Auth.MembershipCacheTTL())
	assert.Equal(t, time.Hour, cfg.Auth.AccessTokenTTL())
	assert.Equal(t, CacheBackendMemory, cfg.Auth.MembershipCacheBackend)
	assert.Positive(t, cfg.Auth.HashConcurrency)
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("AUTH_JWT_SECRET", "")

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "AUTH_JWT_SECRET")
}

func TestLoad_RefusesUnparsableHashConcurrency(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "test-secret")
	t.Setenv("AUTH_HASH_CONCURRENCY", "abc")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_HASH_CONCURRENCY")
}

func TestLoad_RefusesIterationsBelowFloor(t *testing.T) {
	t.Setenv("AUTH_PASSWORD_ITERATIONS", "1000")

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "AUTH_PASSWORD_ITERATIONS")
}

func TestLoad_RefusesUnparsableIterations(t *testing.T) {
	t.Setenv("AUTH_PASSWORD_ITERATIONS", "lots")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_AcceptsUnderscoreSeparatedIterations(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "test-secret")
	t.Setenv("AUTH_PASSWORD_ITERATIONS", "200_000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 200_000, cfg.Auth.PasswordIterations)
}

func TestAuthConfigValidate(t *testing.T) {
	valid := AuthConfig{
		JWTSecret:                 "secret",
		AccessTokenTTLMinutes:     60,
		PasswordAlgorithm:         "pbkdf2-sha256",
		PasswordIterations:        auth.MinIterations,
		HashConcurrency:           2,
		MembershipCacheTTLSeconds: 300,
		MembershipCacheBackend:    CacheBackendRedis,
	}

	tests := []struct {
		name    string
		mutate  func(*AuthConfig)
		wantErr bool
	}{
		{name: "valid", mutate: func(*AuthConfig) {}},
		{name: "empty secret", mutate: func(c *AuthConfig) { c.JWTSecret = "  " }, wantErr: true},
		{name: "zero token ttl", mutate: func(c *AuthConfig) { c.AccessTokenTTLMinutes = 0 }, wantErr: true},
		{name: "unknown algorithm", mutate: func(c *AuthConfig) { c.PasswordAlgorithm = "md5" }, wantErr: true},
		{name: "iterations below floor", mutate: func(c *AuthConfig) { c.PasswordIterations = auth.MinIterations - 1 }, wantErr: true},
		{name: "no hash workers", mutate: func(c *AuthConfig) { c.HashConcurrency = 0 }, wantErr: true},
		{name: "zero cache ttl", mutate: func(c *AuthConfig) { c.MembershipCacheTTLSeconds = 0 }, wantErr: true},
		{name: "unknown cache backend", mutate: func(c *AuthConfig) { c.MembershipCacheBackend = "memcached" }, wantErr: true},
		{name: "bootstrap email without password", mutate: func(c *AuthConfig) { c.BootstrapAdminEmail = "root@example.com" }, wantErr: true},
		{name: "bootstrap admin", mutate: func(c *AuthConfig) {
			c.BootstrapAdminEmail = "root@example.com"
			c.BootstrapAdminPassword = "Secret123!"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
