package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("ENV_FILE", "does-not-exist.env")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_DRIVER", "sqlite3")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadSQLite(t *testing.T) {
	t.Setenv("ENV_FILE", "does-not-exist.env")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("APP_PORT", "9090")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "moderation.notifications", cfg.NotificationQueue)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("ENV_FILE", "does-not-exist.env")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_DRIVER", "postgres")
	_, err := Load()
	assert.Error(t, err)
}

func TestPolicyDefaults(t *testing.T) {
	pc, err := LoadPolicyConfig()
	require.NoError(t, err)
	p := pc.Policy()
	assert.Equal(t, 3, p.StrikesPerSuspension)
	assert.Equal(t, 3, p.SuspensionsBeforeBan)
	assert.Equal(t, 7*24*time.Hour, p.SuspensionDuration)
	assert.False(t, p.AdminSuspendEscalates)
	assert.True(t, pc.DegradedViolations)
	assert.False(t, pc.AuditStrict)
}

func TestPolicyOverrides(t *testing.T) {
	t.Setenv("MODERATION_SUSPENSION_DURATION", "72h")
	t.Setenv("MODERATION_ADMIN_SUSPEND_ESCALATES", "true")
	pc, err := LoadPolicyConfig()
	require.NoError(t, err)
	assert.Equal(t, 72*time.Hour, pc.SuspensionDuration)
	assert.True(t, pc.AdminSuspendEscalates)

	t.Setenv("MODERATION_STRIKES_PER_SUSPENSION", "0")
	_, err = LoadPolicyConfig()
	assert.Error(t, err)
}

func TestRateLimitBudgetsPerRole(t *testing.T) {
	t.Setenv("RATE_LIMIT_USER_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_SYSTEM_CAPACITY", "5000")
	t.Setenv("RATE_LIMIT_WINDOW", "10ms")
	rl := LoadRateLimitConfig()
	assert.Equal(t, 1, rl.Capacity("USER"))
	assert.Equal(t, 1, rl.Capacity(""))
	assert.Equal(t, 300, rl.Capacity("ADMIN"))
	assert.Equal(t, 5000, rl.Capacity("system"))
	assert.Equal(t, time.Second, rl.Window)
	assert.Equal(t, 2*time.Second, rl.TTL())
}

func TestCacheTTLFloor(t *testing.T) {
	cc := LoadCacheConfig()
	assert.True(t, cc.Enabled)
	assert.Equal(t, 5*time.Minute, cc.TTL)
	assert.Equal(t, "cache", cc.Prefix)

	t.Setenv("CACHE_TTL", "0s")
	assert.Equal(t, time.Second, LoadCacheConfig().TTL)
}
