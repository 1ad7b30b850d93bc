package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/dvcrn/amazonq-proxy/internal/app"
	"github.com/dvcrn/amazonq-proxy/internal/auth"
	"github.com/dvcrn/amazonq-proxy/internal/config"
	"github.com/dvcrn/amazonq-proxy/internal/credentials"
	"github.com/dvcrn/amazonq-proxy/internal/logger"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	storageType := flag.String("storage", "", "Credential storage: memory, fs or postgres (overrides config)")
	storagePath := flag.String("storage-path", "", "Directory for fs credential storage (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err == nil && (*storageType != "" || *storagePath != "") {
		if *storageType != "" {
			cfg.Storage.Type = *storageType
		}
		if *storagePath != "" {
			cfg.Storage.Path = *storagePath
		}
		err = cfg.Validate()
	}
	if err != nil {
		boot := logger.New("info")
		boot.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(cfg.Logging.Level)

	store, closeStore, err := openStore(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("storage", cfg.Storage.Type).Msg("Failed to open credential store")
	}
	defer closeStore()

	srv, manager, err := app.NewServer(cfg, store, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}
	defer manager.Close()

	validateCredentialsAtStartup(manager, log)

	if cfg.Auth.BackgroundRefresh > 0 {
		manager.StartBackgroundRefresh(cfg.Auth.BackgroundRefresh)
		log.Info().Dur("interval", cfg.Auth.BackgroundRefresh).Msg("🔄 Background token refresh enabled")
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info().Str("addr", addr).Msg("Starting server")
	log.Fatal().Err(http.ListenAndServe(addr, srv)).Msg("Server failed to start")
}

func openStore(cfg *config.Config, log zerolog.Logger) (credentials.Store, func(), error) {
	noop := func() {}
	switch cfg.Storage.Type {
	case config.StorageFS:
		dir := cfg.Storage.Path
		if dir == "" {
			dir = credentials.DefaultStoreDir()
		}
		log.Info().Str("path", dir).Msg("📄 Using filesystem credential store")
		return credentials.NewFSStore(dir), noop, nil
	case config.StoragePostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := credentials.NewPostgresStore(ctx, cfg.Storage.Postgres.DSN, cfg.Storage.Postgres.MaxConns)
		if err != nil {
			return nil, noop, err
		}
		log.Info().Msg("🐘 Using PostgreSQL credential store")
		return store, store.Close, nil
	case config.StorageMemory, "":
		log.Info().Msg("📝 Using in-memory credential store")
		return credentials.NewMemoryStore(), noop, nil
	default:
		return nil, noop, fmt.Errorf("storage type %q is not available in this build", cfg.Storage.Type)
	}
}

func validateCredentialsAtStartup(manager *auth.Manager, log zerolog.Logger) {
	ctx := context.Background()
	if err := manager.Load(ctx); err != nil {
		log.Error().Err(err).Msg("⚠️  Failed to read stored credentials at startup")
	}

	st := manager.Status(ctx)
	if !st.HasCredentials {
		log.Warn().Msg("⚠️  No credentials configured yet, POST them to /credentials")
		return
	}
	log.Info().
		Bool("has_access_token", st.HasAccessToken).
		Bool("has_profile_arn", manager.ProfileARN(ctx) != "").
		Msg("✅ Credentials loaded successfully")

	if st.TokenExpiry == nil {
		if !st.HasAccessToken {
			log.Info().Msg("No access token yet, will refresh on first request")
		}
		return
	}

	minutesUntilExpiry := int64(time.Until(*st.TokenExpiry).Minutes())
	if minutesUntilExpiry <= 0 {
		log.Warn().
			Int64("minutes_expired", -minutesUntilExpiry).
			Msg("⚠️  Token is already expired, will attempt refresh on first request")
	} else if minutesUntilExpiry <= 60 {
		log.Warn().
			Int64("minutes_until_expiry", minutesUntilExpiry).
			Msg("⚠️  Token expires soon, will refresh shortly")
	} else {
		log.Info().
			Int64("minutes_until_expiry", minutesUntilExpiry).
			Msg("✅ Token is valid and not expiring soon")
	}
}
