package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 4100\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4100, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "0 0 * * *", cfg.Scheduler.MaintenanceCron)
	assert.Equal(t, 10, cfg.Scheduler.DueCommentsBatch)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 10*time.Second, cfg.Proxy.CheckTimeout)
	assert.True(t, cfg.YouTube.AllowUnproxied)
	assert.Contains(t, cfg.Google.Scopes, "https://www.googleapis.com/auth/youtube.force-ssl")
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o644))

	t.Setenv("YTAGENT_AUTH_JWT_SECRET", "s3cret")
	t.Setenv("YTAGENT_DATABASE_DRIVER", "postgres")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Auth:     AuthConfig{JWTSecret: "x"},
		Google:   GoogleConfig{ClientID: "id", ClientSecret: "secret"},
		Database: DatabaseConfig{Driver: "sqlite"},
	}
	require.NoError(t, cfg.Validate())

	cfg.Database.Driver = "mysql"
	assert.Error(t, cfg.Validate())

	cfg.Database.Driver = "sqlite"
	cfg.Auth.JWTSecret = ""
	assert.Error(t, cfg.Validate())
}
