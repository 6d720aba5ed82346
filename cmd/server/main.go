package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sync-player/server/internal/bsl"
	"github.com/sync-player/server/internal/clock"
	"github.com/sync-player/server/internal/config"
	"github.com/sync-player/server/internal/cryptofp"
	"github.com/sync-player/server/internal/events"
	"github.com/sync-player/server/internal/httpapi"
	"github.com/sync-player/server/internal/probe"
	"github.com/sync-player/server/internal/ratelimit"
	"github.com/sync-player/server/internal/rooms"
	"github.com/sync-player/server/internal/store"
	"github.com/sync-player/server/internal/wsserver"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	configPath := os.Getenv("SYNC_CONFIG_FILE")
	if configPath == "" {
		configPath = "sync-player.conf"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	key, err := cryptofp.LoadOrCreateKey(os.Getenv("SYNC_ENCRYPTION_KEY"), cfg.DataDir+"/fingerprint.key")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load or derive encryption key")
	}

	st, err := store.Open(cfg.DataDir+"/store.json", key)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open persistent store")
	}

	registry := rooms.NewRegistry(ctx, rooms.Options{
		Clock:         clock.RealClock{},
		BSLMode:       bsl.Mode(cfg.BSLS2Mode),
		BSLAdvanced:   cfg.BSLAdvancedMatch,
		BSLThreshold:  cfg.BSLAdvancedMatchThreshold,
		VideoAutoplay: cfg.VideoAutoplay,
	})

	if !cfg.ServerMode {
		registry.CreateLegacyRoom()
	}

	dispatcher := &events.Dispatcher{
		Registry: registry,
		Store:    st,
		Config:   cfg,
		Prober:   probe.FFProbe{},
		Limiter:  ratelimit.EventRouterLimiter(),
	}

	srv := &httpapi.Server{
		Config:   cfg,
		Registry: registry,
		Store:    st,
		Prober:   probe.FFProbe{},
		WS:       &wsserver.Server{Dispatcher: dispatcher},
	}

	router := httpapi.NewRouter(ctx, srv)
	addr := fmt.Sprintf(":%d", cfg.Port)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info().Str("module", "main").Str("addr", addr).Bool("tls", cfg.UseHTTPS).Msg("sync-player server starting")
		var serveErr error
		if cfg.UseHTTPS && cfg.TLSCert != "" && cfg.TLSKey != "" {
			httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			serveErr = httpServer.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			serveErr = httpServer.ListenAndServe()
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			log.Fatal().Err(serveErr).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Str("module", "main").Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Str("module", "main").Msg("server forced to shutdown")
	}
	registry.Shutdown(5 * time.Second)
	dispatcher.Limiter.Stop()

	log.Info().Str("module", "main").Msg("server exited gracefully")
}
