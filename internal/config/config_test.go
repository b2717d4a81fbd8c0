package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Addr())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Bot.Enabled)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, "/media", cfg.Media.URLPrefix)
	assert.Equal(t, "Europe/Moscow", cfg.Location().String())
	assert.Empty(t, cfg.AdminIDs())
	assert.Empty(t, cfg.CallbackURL())
}

func TestLoadFromEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PORT", "9000")
	t.Setenv("ADMIN_TELEGRAM_IDS", " 1, 2,,2 ,300")
	t.Setenv("ADMIN_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("PUBLIC_BASE_URL", "https://api.example/")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("ENABLE_BOT", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []int64{1, 2, 300}, cfg.AdminIDs())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins())
	assert.Equal(t, "https://api.example/make/callback", cfg.CallbackURL())
	assert.Equal(t, time.UTC, cfg.Location())
	assert.False(t, cfg.Bot.Enabled)
}

func TestLoadReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "custom.env")
	require.NoError(t, os.WriteFile(path, []byte("MAKE_BEARER_TOKEN=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("MAKE_BEARER_TOKEN") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Make.BearerToken)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad admin id", "ADMIN_TELEGRAM_IDS", "12,abc"},
		{"bad timezone", "TIMEZONE", "Mars/Olympus"},
		{"bad port", "PORT", "70000"},
		{"bad media prefix", "MEDIA_URL_PREFIX", "media"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			t.Setenv(tt.key, tt.val)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}
