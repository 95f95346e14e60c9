package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Chat/internal/adapters/http"
	"github.com/dkeye/Chat/internal/adapters/socket"
	"github.com/dkeye/Chat/internal/adapters/stream"
	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/config"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/metrics"
	"github.com/dkeye/Chat/internal/storage"
)

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
	setupLogging(cfg)

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("Server exited gracefully")
}

func setupLogging(cfg *config.Config) {
	if cfg.Mode != "debug" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func run(ctx context.Context, cfg *config.Config) error {
	store, closeStore, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer closeStore()

	bus := core.NewRoomBus(cfg.QueueSize)
	metrics.RegisterSubscriptionGauge(bus.Total)

	opts := []app.Option{app.WithPolicy(app.PolicyByName(cfg.SlowConsumer))}
	if len(cfg.AllowedRooms) > 0 {
		opts = append(opts, app.WithDirectory(app.NewRoomAllowlist(cfg.AllowedRooms)))
		log.Info().Ints64("rooms", cfg.AllowedRooms).Msg("room allowlist enabled")
	}
	pub := app.NewPublisher(store, bus, opts...)

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Messages: pub,
		Stats:    bus,
		Socket: socket.NewController(pub, bus, socket.Options{
			ReadLimit:       cfg.ReadLimit,
			PingPeriod:      cfg.PingPeriod,
			PongWait:        cfg.PongWait,
			WriteWait:       cfg.WriteWait,
			SendBuffer:      cfg.SendBuffer,
			PublishLimit:    cfg.PublishLimit,
			PublishInterval: cfg.PublishInterval,
		}),
		Stream: stream.NewController(bus, pub, cfg.PingPeriod),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("storage", cfg.Storage.Driver).Msg("Chat server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
			return srv.Close()
		}
		return nil
	})
	return g.Wait()
}
