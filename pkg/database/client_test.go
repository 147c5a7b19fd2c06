package database

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnv(t *testing.T) {
	envKeys := []string{
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
		"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS",
	}
	clearEnv := func(t *testing.T) {
		for _, key := range envKeys {
			t.Setenv(key, "")
		}
	}

	t.Run("defaults", func(t *testing.T) {
		clearEnv(t)
		cfg, err := LoadConfigFromEnv()
		require.NoError(t, err)

		assert.Equal(t, "localhost", cfg.Host)
		assert.Equal(t, 5432, cfg.Port)
		assert.Equal(t, "jobsift", cfg.User)
		assert.Equal(t, "jobsift", cfg.Database)
		assert.Equal(t, "disable", cfg.SSLMode)
		assert.Equal(t, 10, cfg.MaxOpenConns)
		assert.Equal(t, 5, cfg.MaxIdleConns)
	})

	t.Run("custom values", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DB_HOST", "db.example.com")
		t.Setenv("DB_PORT", "5433")
		t.Setenv("DB_USER", "pipeline")
		t.Setenv("DB_PASSWORD", "secret")
		t.Setenv("DB_NAME", "production")
		t.Setenv("DB_SSLMODE", "require")

		cfg, err := LoadConfigFromEnv()
		require.NoError(t, err)

		assert.Equal(t, "db.example.com", cfg.Host)
		assert.Equal(t, 5433, cfg.Port)
		assert.Equal(t, "pipeline", cfg.User)
		assert.Equal(t, "secret", cfg.Password)
		assert.Equal(t, "production", cfg.Database)
		assert.Equal(t, "require", cfg.SSLMode)
	})

	t.Run("invalid port", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DB_PORT", "not-a-port")
		_, err := LoadConfigFromEnv()
		assert.ErrorContains(t, err, "invalid DB_PORT")
	})
}

func TestHasEmbeddedMigrations(t *testing.T) {
	ok, err := hasEmbeddedMigrations()
	require.NoError(t, err)
	assert.True(t, ok, "migration files must be embedded in the binary")
}

func TestHealth(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	t.Run("healthy", func(t *testing.T) {
		mock.ExpectPing()

		health, err := Health(context.Background(), db)
		require.NoError(t, err)
		assert.Equal(t, "healthy", health.Status)
		assert.GreaterOrEqual(t, health.ResponseTime, int64(0))
	})

	t.Run("json uses millisecond fields", func(t *testing.T) {
		mock.ExpectPing()

		health, err := Health(context.Background(), db)
		require.NoError(t, err)

		body, err := json.Marshal(health)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(body, &decoded))
		assert.Contains(t, decoded, "response_time_ms")
		assert.Contains(t, decoded, "wait_duration_ms")
		assert.Contains(t, decoded, "open_connections")
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewClientFromDB(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	client := NewClientFromDB(db)
	require.NotNil(t, client)
	assert.Equal(t, "pgx", client.DB.DriverName())
}
