package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvDatabase, EnvMatchBatchSize, EnvProgressEvery, EnvProgressInterval, EnvCreateOrphans} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestNew_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "", cfg.DatabaseURL)
	assert.Equal(t, 1000, cfg.MatchBatchSize)
	assert.Equal(t, 100, cfg.ProgressEvery)
	assert.Equal(t, 5*time.Minute, cfg.ProgressInterval)
	assert.False(t, cfg.CreateOrphans)
	assert.ErrorIs(t, cfg.RequireDatabase(), ErrNoDatabase)
}

func TestNew_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvDatabase, "postgres://localhost/regeindary")
	t.Setenv(EnvMatchBatchSize, "250")
	t.Setenv(EnvProgressEvery, "10")
	t.Setenv(EnvProgressInterval, "30s")
	t.Setenv(EnvCreateOrphans, "true")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/regeindary", cfg.DatabaseURL)
	assert.Equal(t, 250, cfg.MatchBatchSize)
	assert.Equal(t, 10, cfg.ProgressEvery)
	assert.Equal(t, 30*time.Second, cfg.ProgressInterval)
	assert.True(t, cfg.CreateOrphans)
	assert.NoError(t, cfg.RequireDatabase())
}

func TestNew_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{EnvMatchBatchSize, "lots"},
		{EnvMatchBatchSize, "0"},
		{EnvProgressEvery, "-5"},
		{EnvProgressInterval, "5"},
		{EnvProgressInterval, "-1m"},
		{EnvCreateOrphans, "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := New()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("REGEINDARY_DATABASE=registry.db\nREGEINDARY_PROGRESS_EVERY=7\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv(EnvDatabase)
		os.Unsetenv(EnvProgressEvery)
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "registry.db", cfg.DatabaseURL)
	assert.Equal(t, 7, cfg.ProgressEvery)
}

func TestLoad_EnvironmentWinsOverFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvDatabase, "from-env.db")
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("REGEINDARY_DATABASE=from-file.db\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.DatabaseURL)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.MatchBatchSize)
}
