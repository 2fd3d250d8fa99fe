package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/linkup-social/linkup/models"
)

func TestLoadFromRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := LoadFrom(t.TempDir())
	require.Error(t, err)
}

func TestLoadFromDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "")
	t.Setenv("APP_PORT", "")

	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "s3cret", cfg.JWTSecret)
	require.Equal(t, "5000", cfg.AppPort)
	require.Equal(t, 7*24*time.Hour, cfg.TokenTTL)
	require.Equal(t, int64(5*1024*1024), cfg.UploadMaxBytes)
	require.Equal(t, "local", cfg.UploadBackend)
	require.Len(t, cfg.News, 4)
	require.False(t, cfg.IsDevelopment())
}

func TestLoadFromYAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	yamlDoc := `
app:
  Port: "8080"
  Env: development
  JWTSecret: from-file
  TokenTTLHours: 2
  AllowedOrigins: ["https://linkup.example"]
database:
  Driver: sqlite
  DatabaseURI: "file::memory:"
news:
  - id: 9
    title: Only headline
    timeAgo: 1h ago
    readers: 12
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yamlDoc), 0o644))
	t.Setenv("JWT_SECRET", "")
	t.Setenv("PORT", "")
	t.Setenv("APP_PORT", "9090")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.AppPort)
	require.Equal(t, "from-file", cfg.JWTSecret)
	require.Equal(t, 2*time.Hour, cfg.TokenTTL)
	require.Equal(t, []string{"https://linkup.example"}, cfg.AllowedOrigins)
	require.Equal(t, "sqlite", cfg.DBDriver)
	require.True(t, cfg.IsDevelopment())
	require.Equal(t, []NewsItem{{ID: 9, Title: "Only headline", TimeAgo: "1h ago", Readers: 12}}, cfg.News)
}

func TestLoadFromRejectsBadInteger(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "lots")
	_, err := LoadFrom(t.TempDir())
	require.ErrorContains(t, err, "RATE_LIMIT_PER_MINUTE")
}

func TestOpenDatabaseSQLite(t *testing.T) {
	db, err := OpenDatabase(AppConfig{DBDriver: "sqlite", DatabaseURI: "file::memory:", LogLevel: "silent"}, models.All()...)
	require.NoError(t, err)
	defer CloseDatabase(db)

	for _, table := range []string{"users", "posts", "comments", "post_likes", "connections", "connection_requests"} {
		require.True(t, db.Migrator().HasTable(table), table)
	}
}

func TestOpenDatabaseUnknownDriver(t *testing.T) {
	_, err := OpenDatabase(AppConfig{DBDriver: "oracle"})
	require.ErrorContains(t, err, "unsupported database driver")
}
