package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadGameServer(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Contains(t, cfg.DSN(), "postgres://goban:")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gameserver.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"port: 9999\nlog_level: debug\ndatabase:\n  host: db.example\n  max_conns: 8\n"), 0o644))

	cfg, err := LoadGameServer(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Contains(t, cfg.DSN(), "db.example")
	assert.Contains(t, cfg.DSN(), "pool_max_conns=8")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env@db/goban")
	t.Setenv("PORT", "7777")

	cfg, err := LoadGameServer(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Port)
	assert.Equal(t, "postgres://env@db/goban", cfg.DSN())
}

func TestBadPortEnv(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	_, err := LoadGameServer(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
