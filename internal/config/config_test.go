package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "DATABASE_URL", "COUNTDOWN_SECONDS", "CHAT_TIMEOUT", "LOBBY_IDLE_TTL", "ALLOWED_ORIGINS", "REDIS_ADDR", "REDIS_DB"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8000", cfg.Addr())
	assert.Equal(t, 3*time.Second, cfg.Countdown)
	assert.Equal(t, 5*time.Second, cfg.ChatTimeout)
	assert.Equal(t, 2*time.Hour, cfg.LobbyIdleTTL)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9001")
	t.Setenv("COUNTDOWN_SECONDS", "5")
	t.Setenv("CHAT_TIMEOUT", "750ms")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:3000, https://example.com")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9001", cfg.Addr())
	assert.Equal(t, 5*time.Second, cfg.Countdown)
	assert.Equal(t, 750*time.Millisecond, cfg.ChatTimeout)
	assert.Equal(t, []string{"http://localhost:3000", "https://example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 2, cfg.RedisDB)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Setenv("COUNTDOWN_SECONDS", "soon")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("COUNTDOWN_SECONDS", "3")
	t.Setenv("LOBBY_IDLE_TTL", "forever")
	_, err = Load()
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	cfg := &Config{DBHost: "db", DBPort: "5432", DBUser: "u", DBPassword: "p", DBName: "n", DBSSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", cfg.DSN())

	cfg.DatabaseURL = "postgres://u:p@db/n"
	assert.Equal(t, "postgres://u:p@db/n", cfg.DSN())
}
