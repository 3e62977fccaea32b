package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	osignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lchou/Shopwatch/internal/adapters/gateway"
	"github.com/lchou/Shopwatch/internal/adapters/httpapi"
	"github.com/lchou/Shopwatch/internal/adapters/metrics"
	"github.com/lchou/Shopwatch/internal/adapters/player"
	"github.com/lchou/Shopwatch/internal/adapters/render"
	"github.com/lchou/Shopwatch/internal/adapters/rtc"
	"github.com/lchou/Shopwatch/internal/adapters/signal"
	"github.com/lchou/Shopwatch/internal/app/playback"
	"github.com/lchou/Shopwatch/internal/app/session"
	"github.com/lchou/Shopwatch/internal/config"
	"github.com/lchou/Shopwatch/internal/core"
	"github.com/lchou/Shopwatch/internal/domain"
)

func main() {
	ctx, cancel := osignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	gw, err := gateway.NewClient(cfg.GatewayURL, cfg.Token)
	if err != nil {
		log.Fatal().Err(err).Msg("bad gateway url")
	}

	m := metrics.New()

	// Live path.
	cache := session.NewConfigCache(gw)
	dialer := signal.NewDialer(gw.WatchURL)
	sampler := session.NewQualitySampler(cfg.QualityInterval, m)
	newMedia := func(rc domain.RelayConfig) (core.MediaConnection, error) {
		return rtc.NewSession(rc)
	}
	coord := session.NewCoordinator(cache, dialer, newMedia, sampler, m)

	// Playback path.
	sink, closeSink, err := openSink(cfg.SinkPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.SinkPath).Msg("cannot open playback sink")
	}
	defer closeSink()

	board := render.NewBoard()
	pl := player.New(gw, sink, true)
	corr := playback.NewCorrelator(gw, pl, board, m)
	poller := playback.NewPoller(gw, corr, cfg.PollInterval)
	go poller.Run(ctx)

	if cfg.Token != "" {
		go bootstrap(ctx, cfg, coord, corr)
	}

	r := httpapi.SetupRouter(cfg, httpapi.Deps{
		Gateway:     gw,
		Coordinator: coord,
		Correlator:  corr,
		Board:       board,
		Metrics:     m,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Shopwatch viewer started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	coord.Stop()
	pl.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Viewer exited gracefully")
}

// bootstrap brings up the configured camera's live session and today's
// timeline. Failures are surfaced in state, not fatal; the control API can
// retry either path.
func bootstrap(ctx context.Context, cfg *config.Config, coord *session.Coordinator, corr *playback.Correlator) {
	camera, err := domain.NewCameraID(cfg.CameraID)
	if err != nil {
		log.Error().Err(err).Str("camera_id", cfg.CameraID).Msg("bad configured camera id")
		return
	}
	if err := coord.Start(ctx, camera); err != nil {
		log.Warn().Err(err).Msg("initial session failed")
	}
	if err := corr.LoadDate(ctx, domain.DateOf(time.Now()), camera); err != nil {
		log.Warn().Err(err).Msg("initial timeline load failed")
	}
}

func openSink(path string) (io.Writer, func(), error) {
	if path == "" {
		return io.Discard, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}
