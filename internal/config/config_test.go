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
	for _, k := range []string{"SERVER_ADDRESS", "DATABASE_DSN", "LOG_LEVEL", "RATE_LIMIT_RPS",
		"RATE_LIMIT_BURST", "TLS_CERT", "TLS_KEY", "SHUTDOWN_TIMEOUT", "CONFIG"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestParse_Defaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	opts, err := Parse([]string{"-d", "postgres://localhost/farm"})
	require.NoError(t, err)
	assert.Equal(t, "localhost:8080", opts.Address)
	assert.Equal(t, "info", opts.LogLevel)
	assert.Equal(t, 50.0, opts.RateLimitRPS)
	assert.Equal(t, 100, opts.RateLimitBurst)
	assert.Equal(t, 10*time.Second, opts.ShutdownTimeout)
	assert.False(t, opts.TLSEnabled())
}

func TestParse_Priority(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "server.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"address":":7000","database_dsn":"postgres://file/db","log_level":"warn","rate_limit_burst":5}`), 0o600))

	t.Setenv("LOG_LEVEL", "debug")

	opts, err := Parse([]string{"-c", path, "-a", ":9000"})
	require.NoError(t, err)
	assert.Equal(t, ":9000", opts.Address, "flag beats file")
	assert.Equal(t, "debug", opts.LogLevel, "env beats file")
	assert.Equal(t, "postgres://file/db", opts.DatabaseDSN)
	assert.Equal(t, 5, opts.RateLimitBurst)
	assert.Equal(t, path, opts.Config)
}

func TestParse_EnvOnly(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("SERVER_ADDRESS", ":8443")
	t.Setenv("DATABASE_DSN", "postgres://env/db")

	opts, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, ":8443", opts.Address)
	assert.Equal(t, "postgres://env/db", opts.DatabaseDSN)
}

func TestParse_Errors(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	_, err := Parse(nil)
	assert.ErrorContains(t, err, "DSN is required")

	_, err = Parse([]string{"-d", "x", "-c", "missing.json"})
	assert.ErrorContains(t, err, "missing.json")

	_, err = Parse([]string{"-d", "x", "-tls-cert", "server.crt"})
	assert.ErrorContains(t, err, "must be set together")

	_, err = Parse([]string{"-unknown"})
	assert.Error(t, err)
}
