package app

import (
	"fmt"

	"github.com/dvcrn/amazonq-proxy/internal/amazonq"
	"github.com/dvcrn/amazonq-proxy/internal/auth"
	"github.com/dvcrn/amazonq-proxy/internal/config"
	"github.com/dvcrn/amazonq-proxy/internal/credentials"
	"github.com/dvcrn/amazonq-proxy/internal/httpclient"
	"github.com/dvcrn/amazonq-proxy/internal/server"
	"github.com/rs/zerolog"
)

// NewServer wires the token manager, the upstream client and the HTTP surface
// around the given credential store. The manager is returned so the caller
// can load credentials eagerly or start background refresh.
func NewServer(cfg *config.Config, store credentials.Store, logger zerolog.Logger) (*server.Server, *auth.Manager, error) {
	client := httpclient.New(cfg.Upstream.Timeout)

	tlsCfg := cfg.Upstream.TLS
	tokenClient, err := httpclient.NewWithTLS(cfg.Upstream.Timeout, httpclient.TLSOptions{
		CABundle:           tlsCfg.CABundle,
		InsecureSkipVerify: tlsCfg.InsecureSkipVerify,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to configure OIDC transport: %w", err)
	}
	switch {
	case tlsCfg.CABundle != "":
		logger.Info().Str("ca_bundle", tlsCfg.CABundle).Msg("🔐 Using custom CA bundle for OIDC token requests")
	case tlsCfg.InsecureSkipVerify:
		logger.Warn().Msg("⚠️  TLS verification disabled for OIDC token requests, use only for debugging")
	}

	var fallback []byte
	if cfg.Auth.CredentialsJSON != "" {
		fallback = []byte(cfg.Auth.CredentialsJSON)
	}

	margin := cfg.RefreshMargin()
	manager := auth.NewManager(auth.Options{
		Store:         store,
		Key:           cfg.Auth.StoreKey,
		Fallback:      fallback,
		RefreshMargin: &margin,
		TokenURL:      cfg.Upstream.TokenURL,
		HTTPClient:    tokenClient,
		Logger:        &logger,
		LogRefresh:    cfg.Logging.LogTokenRefresh,
	})

	upstream := amazonq.NewClient(cfg.Upstream.Endpoint, client, manager)
	return server.New(logger, cfg, manager, upstream), manager, nil
}
