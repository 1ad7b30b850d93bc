//go:build js && wasm

package main

import (
	"github.com/dvcrn/amazonq-proxy/internal/app"
	"github.com/dvcrn/amazonq-proxy/internal/config"
	"github.com/dvcrn/amazonq-proxy/internal/credentials"
	"github.com/dvcrn/amazonq-proxy/internal/logger"
	"github.com/syumai/workers"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		boot := logger.New("info")
		boot.Fatal().Err(err).Msg("Failed to load configuration")
	}
	cfg.Storage.Type = config.StorageKV
	// Prometheus scraping is not available on Workers.
	cfg.Metrics.Enabled = false

	log := logger.New(cfg.Logging.Level)

	log.Info().Str("binding", credentials.KVBinding).Msg("📦 Using Cloudflare KV credential store")
	store, err := credentials.NewCloudflareKVStore(credentials.KVBinding)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Cloudflare KV store")
	}

	// Credentials load lazily on the first request; Workers forbid I/O at
	// global scope.
	srv, _, err := app.NewServer(cfg, store, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	workers.Serve(srv)
}
