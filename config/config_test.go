package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.HTTPPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "mongodb", cfg.StoreBackend)
	assert.Equal(t, "users", cfg.MongoUsersDB)
	assert.Equal(t, "products", cfg.MongoProductsDB)
	assert.Equal(t, "redis", cfg.CacheBackend)
	assert.Equal(t, 60, cfg.CacheExpireMinutes)
	assert.Equal(t, 60, cfg.JWTExpireMinutes)
	assert.Equal(t, 30, cfg.RateLimitAnonymous)
	assert.False(t, cfg.GoogleEnabled())
	assert.Empty(t, cfg.AllowedOrigins())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("CACHE_BACKEND", "memory")
	t.Setenv("JWT_EXPIRE_MINUTES", "15")
	t.Setenv("RATE_LIMIT_SELLERS", "0")
	t.Setenv("GOOGLE_CLIENT_ID", "id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret")
	t.Setenv("GOOGLE_REDIRECT_URL", "http://localhost:8000/api/v1/auth/google/callback")
	t.Setenv("CORS_ORIGINS", "http://a.example, http://b.example ,")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, 15, cfg.JWTExpireMinutes)
	assert.Equal(t, 0, cfg.RateLimitSellers)
	assert.True(t, cfg.GoogleEnabled())
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins())
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(
		"HTTP_PORT: \"7000\"\nREDIS_ADDR: redis:6379\nCACHE_EXPIRE_MINUTES: 5\n"), 0o600))

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	cfg, err := load(v)
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.HTTPPort)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 5, cfg.CacheExpireMinutes)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	_, err := LoadConfig()
	assert.ErrorContains(t, err, "STORE_BACKEND")

	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("JWT_EXPIRE_MINUTES", "0")
	_, err = LoadConfig()
	assert.Error(t, err)
}
