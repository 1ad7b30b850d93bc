// Package config holds the gateway configuration.
//
// Configuration is loaded in layers:
//  1. Built-in defaults
//  2. YAML config file (explicit path or AMAZONQ_PROXY_CONFIG)
//  3. Environment variable overrides
//  4. Validation
//
// The resulting value is passed into each component's constructor.
package config

import "time"

const (
	DefaultUpstreamEndpoint = "https://codewhisperer.us-east-1.amazonaws.com"
	DefaultTokenURL         = "https://oidc.us-east-1.amazonaws.com/token"
	DefaultAnthropicVersion = "2023-06-01"
	DefaultStoreKey         = "amazonq-credentials"
)

// Storage backends accepted by storage.type.
const (
	StorageMemory   = "memory"
	StorageFS       = "fs"
	StoragePostgres = "postgres"
	StorageKV       = "kv"
)

// Config holds all configuration for the gateway.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	Stream    StreamConfig    `yaml:"stream"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type ServerConfig struct {
	Port int `yaml:"port"` // default: 9880
}

// UpstreamConfig points at the vendor chat endpoint and its OIDC token endpoint.
type UpstreamConfig struct {
	Endpoint string        `yaml:"endpoint"`
	TokenURL string        `yaml:"token_url"`
	Timeout  time.Duration `yaml:"timeout"` // bounds both refresh and chat calls, default: 120s
	TLS      TLSConfig     `yaml:"tls"`
}

// TLSConfig adjusts certificate verification for the OIDC token exchange.
// A CA bundle takes precedence over disabling verification.
type TLSConfig struct {
	CABundle           string `yaml:"ca_bundle"` // PEM file appended to the system roots
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

type AuthConfig struct {
	RefreshMarginSeconds int    `yaml:"refresh_margin_seconds"` // default: 300
	CredentialsJSON      string `yaml:"credentials_json"`       // fallback blob when the store is empty
	StoreKey             string `yaml:"store_key"`
	// BackgroundRefresh enables periodic proactive refresh (native builds only). Zero disables.
	BackgroundRefresh time.Duration `yaml:"background_refresh"`
}

type StorageConfig struct {
	Type     string         `yaml:"type"` // memory, fs, postgres or kv
	Path     string         `yaml:"path"` // directory for the fs store
	Postgres PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
}

// StreamConfig bounds the per-request stream translation.
type StreamConfig struct {
	ChunkSize     int `yaml:"chunk_size"`      // upstream read size, default: 1024
	BufferMaxSize int `yaml:"buffer_max_size"` // extractor buffer bound, default: 10240
	QueueSize     int `yaml:"queue_size"`      // producer/consumer queue depth, default: 16
}

type AnthropicConfig struct {
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level           string `yaml:"level"`
	LogTokenRefresh bool   `yaml:"log_token_refresh"`
	LogRequests     bool   `yaml:"log_requests"`   // log a preview of each forwarded prompt
	LogResponses    bool   `yaml:"log_responses"`  // log a preview of each reply
	MaxLogLength    int    `yaml:"max_log_length"` // preview length in bytes, 0 for no limit, default: 500
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// RefreshMargin returns the token refresh safety margin as a duration.
func (c *Config) RefreshMargin() time.Duration {
	return time.Duration(c.Auth.RefreshMarginSeconds) * time.Second
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 9880,
		},
		Upstream: UpstreamConfig{
			Endpoint: DefaultUpstreamEndpoint,
			TokenURL: DefaultTokenURL,
			Timeout:  120 * time.Second,
		},
		Auth: AuthConfig{
			RefreshMarginSeconds: 300,
			StoreKey:             DefaultStoreKey,
		},
		Storage: StorageConfig{
			Type: StorageMemory,
			Postgres: PostgresConfig{
				MaxConns: 4,
			},
		},
		Stream: StreamConfig{
			ChunkSize:     1024,
			BufferMaxSize: 10240,
			QueueSize:     16,
		},
		Anthropic: AnthropicConfig{
			Version: DefaultAnthropicVersion,
		},
		Logging: LoggingConfig{
			Level:           "info",
			LogTokenRefresh: true,
			LogRequests:     true,
			LogResponses:    true,
			MaxLogLength:    500,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
