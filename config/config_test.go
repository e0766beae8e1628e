package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 10, cfg.Database.MaxConns)
	assert.Equal(t, 24, cfg.JWT.ExpireHours)
	assert.Equal(t, 12, cfg.Session.TTLHours)
	assert.Equal(t, 6, cfg.Session.CodeLength)
	assert.Equal(t, "1s", cfg.Playback.AdvanceLead.String())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("PLAYBACK_ADVANCE_LEAD_MS", "1500")
	t.Setenv("SESSION_CODE_LENGTH", "8")
	t.Setenv("DB_MAX_CONNS", "25")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "1.5s", cfg.Playback.AdvanceLead.String())
	assert.Equal(t, 8, cfg.Session.CodeLength)
	assert.Equal(t, 25, cfg.Database.MaxConns)
}

func TestDSNPrefersURL(t *testing.T) {
	c := DatabaseConfig{
		URL:  "postgres://somewhere:5432/app?sslmode=disable",
		Host: "ignored",
	}
	assert.Equal(t, "postgres://somewhere:5432/app?sslmode=disable", c.DSN())
}

func TestDSNBuildsFromComponents(t *testing.T) {
	c := DatabaseConfig{
		Host:     "db",
		Port:     "5433",
		User:     "app",
		Password: "secret",
		DBName:   "queue",
		SSLMode:  "require",
	}
	assert.Equal(t, "postgres://app:secret@db:5433/queue?sslmode=require", c.DSN())
}
