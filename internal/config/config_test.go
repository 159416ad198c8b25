package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "ride_contract", cfg.Database.DBName)
	assert.Equal(t, uint64(2), cfg.Contract.MaxEscrowMultiplier)
	assert.True(t, cfg.Contract.WriteOnceRatings)
	assert.Zero(t, cfg.Contract.MaxDisputeAttempts)
	assert.Equal(t, 10*time.Second, cfg.Contract.LockTTL)
	assert.Equal(t, "X-Caller-ID", cfg.Auth.CallerHeader)
	assert.Empty(t, cfg.Auth.JWTSecret)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("CONTRACT_MAX_ESCROW_MULTIPLIER", "4")
	t.Setenv("CONTRACT_WRITE_ONCE_RATINGS", "false")
	t.Setenv("CONTRACT_MAX_DISPUTE_ATTEMPTS", "2")
	t.Setenv("CONTRACT_LOCK_TTL", "3s")
	t.Setenv("AUTH_JWT_SECRET", "s3cret")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, uint64(4), cfg.Contract.MaxEscrowMultiplier)
	assert.False(t, cfg.Contract.WriteOnceRatings)
	assert.Equal(t, 2, cfg.Contract.MaxDisputeAttempts)
	assert.Equal(t, 3*time.Second, cfg.Contract.LockTTL)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
}

func TestInvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("REDIS_DB", "one")
	t.Setenv("CONTRACT_MAX_ESCROW_MULTIPLIER", "-1")
	t.Setenv("NEW_RELIC_ENABLED", "maybe")
	t.Setenv("SERVER_READ_TIMEOUT", "soon")

	cfg := Load()

	assert.Zero(t, cfg.Redis.DB)
	assert.Equal(t, uint64(2), cfg.Contract.MaxEscrowMultiplier)
	assert.False(t, cfg.NewRelic.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
}
