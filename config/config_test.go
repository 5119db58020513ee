package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoback/reward-engine/config"
)

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWhenFileHasNothing(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "ecoback.db", cfg.Database.Path)
	assert.Equal(t, 720*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NotEmpty(t, cfg.CORS.AllowedOrigins)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	// GIVEN: A file setting port 9000 and the memory driver
	// WHEN: ECOBACK_LOG_LEVEL is set
	// THEN: File values and the env value both win over defaults

	path := writeConfig(t, `
server:
  port: 9000
database:
  driver: memory
auth:
  token_ttl: 1h
`)
	t.Setenv("ECOBACK_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_ProductionRequiresSecret(t *testing.T) {
	path := writeConfig(t, "server:\n  env: production\n")

	_, err := config.Load(path)
	assert.ErrorContains(t, err, "jwt_secret")

	t.Setenv("ECOBACK_AUTH_JWT_SECRET", "s3cret")
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	_, err := config.Load(writeConfig(t, "database:\n  driver: mongo\n"))
	assert.ErrorContains(t, err, "database.driver")
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
