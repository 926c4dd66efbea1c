package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hwctl-rmgr/hwctl/rmgr"
	"hwctl-rmgr/hwctl/rmgr/domain"
	"hwctl-rmgr/hwctl/rmgr/infra"

	"github.com/mattn/go-isatty"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := readConfig()
	if err != nil {
		newLogger(os.Stderr, "error", "").Fatal().Err(err).Msg("config error")
	}
	log := newLogger(os.Stdout, cfg.logLevel, cfg.logFormat)

	var statsStore domain.StatsStore
	if cfg.statsRedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.statsRedisAddr,
			Password: cfg.statsRedisPassword,
			DB:       cfg.statsRedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.statsRedisAddr).Msg("redis stats ping error")
		}

		statsStore = infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.statsPrefix),
			infra.WithStatsTTL(cfg.statsTTL),
			infra.WithStatsBucket(cfg.statsBucket),
			infra.WithStatsTrackPipes(cfg.statsTrackPipes),
		)
	}

	m, err := rmgr.New(cfg.rmgr, log, statsStore)
	if err != nil {
		log.Fatal().Err(err).Msg("resource manager init error")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           rmgr.NewHandler(m, rmgr.Options{RetryAfter: cfg.retryAfter}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	r := cfg.rmgr
	log.Info().Str("addr", cfg.listenAddr).Msg("rmgrd listening")
	log.Info().Ints("lut_long", r.LUTLong).Ints("lut_short", r.LUTShort).
		Uint32("ibuf_size", r.IBuf.Size).Int("ibuf_handles", r.IBuf.MaxHandles).Uint32("ibuf_align", r.IBuf.Align).
		Ints("dma_channels", r.DMAChannels).Ints("sids", r.SIDs).
		Dur("acquire_timeout", r.AcquireTimeout).Msg("isys")
	log.Info().Int("pipes", r.Pipes).Int("flip_depth", r.FlipDepth).Float64("refresh_hz", r.RefreshHz).Msg("display")
	log.Info().Bool("redis", statsStore != nil).Str("bucket", cfg.statsBucket).Dur("ttl", cfg.statsTTL).
		Bool("track_pipes", cfg.statsTrackPipes).Msg("stats")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server error")
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	_ = m.Close(closeCtx)
	log.Info().Msg("rmgrd stopped")
}

// newLogger monta o logger:
//   - format: vazio (detecta suporte a cor), color, json, text
//   - level: disabled, trace, debug, info, warn, error...
func newLogger(w io.Writer, level, format string) zerolog.Logger {
	if format != "json" {
		console := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
		switch format {
		case "text":
			console.NoColor = true
		case "color":
			console.NoColor = false
		default:
			if f, ok := w.(*os.File); ok {
				console.NoColor = !isatty.IsTerminal(f.Fd())
			} else {
				console.NoColor = true
			}
		}
		w = console
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
