package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("IMAGE_CHECKER_URL", "http://image-checker:8085")
		t.Setenv("IMAGE_BASE_DIR", "/srv/evidence")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "mysql", cfg.DBHost)
		assert.Equal(t, 3306, cfg.DBPort)
		assert.Equal(t, 25, cfg.DBMaxOpenConns)
		assert.Equal(t, 5, cfg.DBMaxIdleConns)
		assert.Equal(t, 5*time.Minute, cfg.DBConnMaxLifetime)
		assert.Equal(t, "redis:6379", cfg.RedisAddr)
		assert.Equal(t, "http://image-checker:8085", cfg.ImageCheckerURL)
		assert.Equal(t, "/srv/evidence", cfg.EvidenceBaseDir)
		assert.Equal(t, "8080", cfg.HTTPPort)
		assert.Equal(t, "9090", cfg.MetricsPort)
	})

	t.Run("MissingImageCheckerURL", func(t *testing.T) {
		t.Setenv("IMAGE_CHECKER_URL", "")
		t.Setenv("IMAGE_BASE_DIR", "/srv/evidence")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "IMAGE_CHECKER_URL")
	})

	t.Run("PoolSettings", func(t *testing.T) {
		t.Setenv("IMAGE_CHECKER_URL", "http://image-checker:8085")
		t.Setenv("IMAGE_BASE_DIR", "/srv/evidence")
		t.Setenv("DB_MAX_OPEN_CONNS", "50")
		t.Setenv("DB_MAX_IDLE_CONNS", "10")
		t.Setenv("DB_CONN_MAX_LIFETIME_MINUTES", "15")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 50, cfg.DBMaxOpenConns)
		assert.Equal(t, 10, cfg.DBMaxIdleConns)
		assert.Equal(t, 15*time.Minute, cfg.DBConnMaxLifetime)
	})

	t.Run("InvalidDBPort", func(t *testing.T) {
		t.Setenv("IMAGE_CHECKER_URL", "http://image-checker:8085")
		t.Setenv("IMAGE_BASE_DIR", "/srv/evidence")
		t.Setenv("DB_PORT", "not-a-port")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DB_PORT")
	})

	t.Run("InvalidPoolSetting", func(t *testing.T) {
		t.Setenv("IMAGE_CHECKER_URL", "http://image-checker:8085")
		t.Setenv("IMAGE_BASE_DIR", "/srv/evidence")
		t.Setenv("DB_MAX_OPEN_CONNS", "many")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DB_MAX_OPEN_CONNS")
	})
}
