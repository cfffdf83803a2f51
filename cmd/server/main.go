package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/SFU/internal/adapters/http"
	"github.com/dkeye/SFU/internal/adapters/rtc"
	"github.com/dkeye/SFU/internal/adapters/store"
	"github.com/dkeye/SFU/internal/app"
	"github.com/dkeye/SFU/internal/app/orch"
	"github.com/dkeye/SFU/internal/config"
	"github.com/dkeye/SFU/internal/core"
	"github.com/dkeye/SFU/internal/telemetry"
)

func setupLogger(cfg *config.Config) {
	if cfg.LogFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, using info")
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)
	if err := cfg.CheckTLS(); err != nil {
		log.Fatal().Err(err).Msg("tls material missing")
	}

	newWorker := func(ctx context.Context) (core.Worker, error) {
		return rtc.NewWorker(ctx, rtc.WorkerSettings{
			MinPort:          cfg.RTC.MinPort,
			MaxPort:          cfg.RTC.MaxPort,
			LogLevel:         cfg.RTC.LogLevel,
			LogTags:          cfg.RTC.LogTags,
			ListenIP:         cfg.RTC.ListenIP,
			AnnouncedIP:      cfg.RTC.AnnouncedIP,
			HandshakeTimeout: cfg.RTC.HandshakeTimeout,
		})
	}
	gateway, err := app.StartGateway(ctx, newWorker, app.GatewayConfig{
		Codecs:                          cfg.MediaCodecs(),
		ListenIPs:                       cfg.ListenIPs(),
		MaxIncomingBitrate:              cfg.RTC.MaxIncomingBitrate,
		InitialAvailableOutgoingBitrate: cfg.RTC.InitialOutgoingBitrate,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start media engine")
	}
	defer gateway.Close()

	if cfg.MetricsEnabled {
		telemetry.Init(gateway.Worker().ID())
	}

	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Hub:      app.NewBroadcaster(),
		Gateway:  gateway,
	}
	if cfg.Redis.Addr != "" {
		rdb, err := store.Connect(ctx, cfg.Redis.Addr)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, producer directory disabled")
		} else {
			defer rdb.Close()
			dir := store.NewRedisDirectory(rdb, cfg.Redis.Prefix)
			if err := dir.Reset(ctx); err != nil {
				log.Warn().Err(err).Msg("reset producer directory")
			}
			o.Directory = dir
		}
	}

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router.SetupRouter(ctx, cfg, o),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Bool("tls", cfg.TLSEnabled).Msg("SFU server started")
		var err error
		if cfg.TLSEnabled {
			err = srv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return app.NewMonitor(gateway.Worker()).Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
	}
	log.Info().Msg("Server exited gracefully")
}
