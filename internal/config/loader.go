package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dvcrn/amazonq-proxy/internal/env"
	"gopkg.in/yaml.v3"
)

// Load builds the configuration from defaults, an optional YAML file and the
// environment. An empty configPath falls back to AMAZONQ_PROXY_CONFIG; when
// neither is set only defaults and environment are used.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if configPath == "" {
		configPath, _ = env.Get("AMAZONQ_PROXY_CONFIG")
	}
	if configPath != "" {
		if err := loadYAMLFile(configPath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", configPath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// loadYAMLFile reads a YAML file into cfg. ${VAR} references are expanded and
// fields absent from the file keep their defaults.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg)
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := env.Get("PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v, ok := env.Get("AMAZONQ_ENDPOINT"); ok && v != "" {
		cfg.Upstream.Endpoint = v
	}
	if v, ok := env.Get("AMAZONQ_TOKEN_URL"); ok && v != "" {
		cfg.Upstream.TokenURL = v
	}
	if v, ok := env.Get("UPSTREAM_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Upstream.Timeout = d
		}
	}
	if v := firstEnv("AMAZONQ_CA_BUNDLE", "AWS_CA_BUNDLE", "REQUESTS_CA_BUNDLE"); v != "" {
		cfg.Upstream.TLS.CABundle = v
	}
	if disable, ok := parseFlag(firstEnv("DISABLE_AMAZONQ_SSL_VERIFY", "DISABLE_OIDC_SSL_VERIFY", "DISABLE_SSL_VERIFY")); ok && disable {
		cfg.Upstream.TLS.InsecureSkipVerify = true
	} else if verify, ok := parseFlag(firstEnv("AMAZONQ_SSL_VERIFY", "OIDC_SSL_VERIFY")); ok {
		cfg.Upstream.TLS.InsecureSkipVerify = !verify
	}
	if v, ok := env.Get("TOKEN_REFRESH_MARGIN"); ok {
		if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Auth.RefreshMarginSeconds = secs
		}
	}
	if v, ok := env.Get("AMAZONQ_CREDENTIALS"); ok && v != "" {
		cfg.Auth.CredentialsJSON = v
	}
	if v, ok := env.Get("STORAGE_TYPE"); ok && v != "" {
		cfg.Storage.Type = v
	}
	if v, ok := env.Get("STORAGE_PATH"); ok && v != "" {
		cfg.Storage.Path = v
	}
	if v, ok := env.Get("DATABASE_URL"); ok && v != "" {
		cfg.Storage.Postgres.DSN = v
	}
	if v, ok := env.Get("ANTHROPIC_VERSION"); ok && v != "" {
		cfg.Anthropic.Version = v
	}
	if v, ok := env.Get("LOG_LEVEL"); ok && v != "" {
		cfg.Logging.Level = v
	}
	if v, ok := parseFlag(firstEnv("LOG_REQUESTS")); ok {
		cfg.Logging.LogRequests = v
	}
	if v, ok := parseFlag(firstEnv("LOG_RESPONSES")); ok {
		cfg.Logging.LogResponses = v
	}
	if v, ok := env.Get("MAX_LOG_LENGTH"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Logging.MaxLogLength = n
		}
	}
	if v, ok := env.Get("METRICS_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
}

// firstEnv returns the first non-empty value among names.
func firstEnv(names ...string) string {
	for _, name := range names {
		if v, ok := env.Get(name); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// parseFlag accepts 1/true/yes/on and 0/false/no/off. ok is false for
// anything else, including the empty string.
func parseFlag(v string) (value bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}
