// main is the entry point of the Scout discovery service: it wires the
// configuration, logger, settings storage, GeoIP provider and the discovery
// service, then serves the launcher UI API until interrupted.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openfrag/scout/internal/browser"
	"github.com/openfrag/scout/internal/config"
	"github.com/openfrag/scout/internal/geoip"
	"github.com/openfrag/scout/internal/logger"
	"github.com/openfrag/scout/internal/netscan"
	"github.com/openfrag/scout/internal/oneshot"
	"github.com/openfrag/scout/internal/query"
	"github.com/openfrag/scout/internal/server"
	"github.com/openfrag/scout/internal/storage"
)

func main() {
	cfg := config.Parse()

	logger.Setup(cfg.Logger)
	log.Info().Msg("Starting scout service...")

	// GeoIP (best effort, country flags only)
	var geoProvider *geoip.Provider
	if !cfg.GeoIP.Disable {
		if err := geoip.EnsureDB(cfg.GeoIP.Path, cfg.GeoIP.URL, cfg.GeoIP.Interval); err != nil {
			log.Error().Err(err).Msg("Failed to download GeoIP database")
		}

		var err error
		geoProvider, err = geoip.Open(cfg.GeoIP.Path)
		if err != nil {
			log.Error().Err(err).Msg("Failed to open GeoIP database, country detection disabled")
			geoProvider = nil
		} else {
			defer func() {
				if err := geoProvider.Close(); err != nil {
					log.Error().Err(err).Msg("Error closing GeoIP provider")
				}
			}()
		}
	}

	// Settings database
	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize settings database")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing settings database")
		}
	}()

	// Persisted scan configuration overrides the flag defaults.
	scanCfg := cfg.Scan.Configuration()
	if persisted, ok, err := store.LoadScanConfig(); err != nil {
		log.Error().Err(err).Msg("Failed to load persisted scan configuration, using flags")
	} else if ok {
		scanCfg = persisted
		if scanCfg.Interval <= 0 {
			scanCfg.Interval = cfg.Scan.Interval
		}
	}

	probeMode, err := query.ParseProbeMode(cfg.Scan.Probe)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid probe mode")
	}

	// The LAN scanner probes with a tight per-host timeout; master and
	// custom entries sit on the WAN and get their own slower client.
	client := query.New(scanCfg.Timeout, query.WithProbeMode(probeMode))
	wanClient := query.New(cfg.Master.Timeout, query.WithProbeMode(probeMode))

	scanner, err := netscan.NewScanner(client, scanCfg,
		netscan.WithProbeRate(cfg.Scan.ProbeRate),
		netscan.WithInterfaceTTL(cfg.Scan.InterfaceTTL),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid scan configuration")
	}

	svc := browser.New(wanClient, scanner, store, geoProvider, browser.Options{
		MasterHost:     cfg.Master.Host,
		MasterPort:     cfg.Master.Port,
		MasterInterval: cfg.Master.Interval,
		LocalInterval:  scanCfg.Interval,
	})

	// One-shot command modes
	if oneshot.Run(cfg, svc, store) {
		return
	}

	// Background refresh timers
	svc.Start()

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      server.New(svc, store, cfg).Run(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("API listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("API server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("API server forced to shutdown")
	}

	// Stop refresh timers (waits for in-flight cycles)
	svc.Stop()

	log.Info().Msg("Service exited")
}
