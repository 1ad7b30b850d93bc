package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 300*time.Second, cfg.RefreshMargin())
	assert.Equal(t, 10240, cfg.Stream.BufferMaxSize)
	assert.Equal(t, DefaultAnthropicVersion, cfg.Anthropic.Version)
}

func TestLoadYAMLWithEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 8081
upstream:
  endpoint: https://example.test/
auth:
  refresh_margin_seconds: 60
stream:
  buffer_max_size: 4096
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("AMAZONQ_ENDPOINT", "")
	t.Setenv("TOKEN_REFRESH_MARGIN", "120")
	t.Setenv("AMAZONQ_CREDENTIALS", `{"refresh_token":"r"}`)
	t.Setenv("ANTHROPIC_VERSION", "2024-01-01")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "https://example.test", cfg.Upstream.Endpoint)
	assert.Equal(t, 120, cfg.Auth.RefreshMarginSeconds)
	assert.Equal(t, `{"refresh_token":"r"}`, cfg.Auth.CredentialsJSON)
	assert.Equal(t, 4096, cfg.Stream.BufferMaxSize)
	assert.Equal(t, 1024, cfg.Stream.ChunkSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "2024-01-01", cfg.Anthropic.Version)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Run("unknown storage", func(t *testing.T) {
		cfg := Defaults()
		cfg.Storage.Type = "redis"
		assert.ErrorContains(t, cfg.Validate(), "storage.type")
	})

	t.Run("postgres without dsn", func(t *testing.T) {
		cfg := Defaults()
		cfg.Storage.Type = "Postgres"
		assert.ErrorContains(t, cfg.Validate(), "storage.postgres.dsn")
	})

	t.Run("buffer smaller than chunk", func(t *testing.T) {
		cfg := Defaults()
		cfg.Stream.BufferMaxSize = 10
		assert.ErrorContains(t, cfg.Validate(), "buffer_max_size")
	})

	t.Run("bad token url", func(t *testing.T) {
		cfg := Defaults()
		cfg.Upstream.TokenURL = "oidc.local"
		assert.ErrorContains(t, cfg.Validate(), "upstream.token_url")
	})
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func clearTLSEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"AMAZONQ_CA_BUNDLE", "AWS_CA_BUNDLE", "REQUESTS_CA_BUNDLE",
		"DISABLE_AMAZONQ_SSL_VERIFY", "DISABLE_OIDC_SSL_VERIFY", "DISABLE_SSL_VERIFY",
		"AMAZONQ_SSL_VERIFY", "OIDC_SSL_VERIFY",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadZeroRefreshMargin(t *testing.T) {
	t.Setenv("TOKEN_REFRESH_MARGIN", "0")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.RefreshMargin())
}

func TestLoadTLSOverrides(t *testing.T) {
	t.Run("defaults verify", func(t *testing.T) {
		clearTLSEnv(t)
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, TLSConfig{}, cfg.Upstream.TLS)
	})

	t.Run("first ca bundle wins", func(t *testing.T) {
		clearTLSEnv(t)
		t.Setenv("AWS_CA_BUNDLE", "/etc/aws.pem")
		t.Setenv("REQUESTS_CA_BUNDLE", "/etc/requests.pem")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "/etc/aws.pem", cfg.Upstream.TLS.CABundle)
	})

	t.Run("disable verify", func(t *testing.T) {
		clearTLSEnv(t)
		t.Setenv("DISABLE_OIDC_SSL_VERIFY", "yes")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.True(t, cfg.Upstream.TLS.InsecureSkipVerify)
	})

	t.Run("verify false", func(t *testing.T) {
		clearTLSEnv(t)
		t.Setenv("DISABLE_SSL_VERIFY", "false")
		t.Setenv("OIDC_SSL_VERIFY", "off")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.True(t, cfg.Upstream.TLS.InsecureSkipVerify)
	})

	t.Run("verify true beats yaml", func(t *testing.T) {
		clearTLSEnv(t)
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("upstream:\n  tls:\n    insecure_skip_verify: true\n"), 0600))
		t.Setenv("AMAZONQ_SSL_VERIFY", "1")
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.False(t, cfg.Upstream.TLS.InsecureSkipVerify)
	})
}

func TestLoadLoggingKnobs(t *testing.T) {
	t.Setenv("LOG_REQUESTS", "off")
	t.Setenv("LOG_RESPONSES", "")
	t.Setenv("MAX_LOG_LENGTH", "80")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Logging.LogRequests)
	assert.True(t, cfg.Logging.LogResponses)
	assert.Equal(t, 80, cfg.Logging.MaxLogLength)

	cfg.Logging.MaxLogLength = -1
	assert.ErrorContains(t, cfg.Validate(), "max_log_length")
}
