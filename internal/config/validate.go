package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration and normalizes a few fields in place.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	for name, raw := range map[string]string{
		"upstream.endpoint":  c.Upstream.Endpoint,
		"upstream.token_url": c.Upstream.TokenURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("%s must be an http(s) URL, got %q", name, raw))
		}
	}
	c.Upstream.Endpoint = strings.TrimRight(c.Upstream.Endpoint, "/")
	if c.Upstream.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("upstream.timeout must be positive"))
	}
	if c.Auth.RefreshMarginSeconds < 0 {
		errs = append(errs, fmt.Errorf("auth.refresh_margin_seconds must not be negative"))
	}
	if strings.TrimSpace(c.Auth.StoreKey) == "" {
		errs = append(errs, fmt.Errorf("auth.store_key is required"))
	}

	c.Storage.Type = strings.ToLower(strings.TrimSpace(c.Storage.Type))
	switch c.Storage.Type {
	case StorageMemory, StorageFS, StorageKV:
	case StoragePostgres:
		if c.Storage.Postgres.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be one of memory, fs, postgres, kv, got %q", c.Storage.Type))
	}

	if c.Stream.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("stream.chunk_size must be positive"))
	}
	if c.Stream.BufferMaxSize < c.Stream.ChunkSize {
		errs = append(errs, fmt.Errorf("stream.buffer_max_size must be at least stream.chunk_size"))
	}
	if c.Stream.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("stream.queue_size must be positive"))
	}
	if c.Logging.MaxLogLength < 0 {
		errs = append(errs, fmt.Errorf("logging.max_log_length must not be negative"))
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path must start with /"))
	}

	return errors.Join(errs...)
}
