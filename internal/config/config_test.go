package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("fails without DB_DSN", func(t *testing.T) {
		t.Setenv("DB_DSN", "")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("applies defaults", func(t *testing.T) {
		t.Setenv("DB_DSN", "postgres://localhost/traffic")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "development", cfg.Environment)
		assert.Equal(t, "0.0.0.0", cfg.HTTP.Host)
		assert.Equal(t, 8080, cfg.HTTP.Port)
		assert.Equal(t, 5*time.Second, cfg.Routing.Timeout)
		assert.Equal(t, 5000, cfg.Routing.CacheCapacity)
		assert.NotEmpty(t, cfg.Routing.OSRMBaseURL)
	})

	t.Run("reads overrides from the environment", func(t *testing.T) {
		t.Setenv("DB_DSN", "postgres://localhost/traffic")
		t.Setenv("HTTP_PORT", "9090")
		t.Setenv("OSRM_BASE_URL", "http://osrm.internal:5000")
		t.Setenv("OSRM_TIMEOUT", "2s")
		t.Setenv("ROUTE_CACHE_CAPACITY", "100")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 9090, cfg.HTTP.Port)
		assert.Equal(t, "http://osrm.internal:5000", cfg.Routing.OSRMBaseURL)
		assert.Equal(t, 2*time.Second, cfg.Routing.Timeout)
		assert.Equal(t, 100, cfg.Routing.CacheCapacity)
	})
}
