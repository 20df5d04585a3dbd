package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/adapters/engine"
	router "github.com/dkeye/Meet/internal/adapters/http"
	signaladapter "github.com/dkeye/Meet/internal/adapters/signal"
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/core"
)

func codecCapabilities(cfg *config.Config) []webrtc.RTPCodecCapability {
	out := make([]webrtc.RTPCodecCapability, 0, len(cfg.Codecs))
	for _, c := range cfg.Codecs {
		out = append(out, webrtc.RTPCodecCapability{
			MimeType:  c.MimeType,
			ClockRate: c.ClockRate,
			Channels:  c.Channels,
		})
	}
	return out
}

func transportOptions(cfg *config.Config) core.TransportOptions {
	opts := core.TransportOptions{
		ListenIP:    cfg.RTC.ListenIP,
		AnnouncedIP: cfg.RTC.AnnouncedIP,
		PreferUDP:   cfg.RTC.PreferUDP,
	}
	for _, s := range cfg.RTC.ICEServers {
		opts.ICEServers = append(opts.ICEServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return opts
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	media := engine.New(cfg.RTC.MinPort, cfg.RTC.MaxPort)
	media.OnDied(func(err error) {
		// An engine failure is unrecoverable per-process; exit and let the
		// supervisor restart us. The short sleep lets buffered logs flush.
		log.Error().Err(err).Msg("media engine died, exiting")
		time.Sleep(2 * time.Second)
		os.Exit(1)
	})

	reg := app.NewRegistry()
	rooms := app.NewRoomManager(media, codecCapabilities(cfg))
	o := orch.New(reg, rooms, transportOptions(cfg), cfg.GracePeriod)
	ctl := signaladapter.NewController(o, cfg)
	o.Events = ctl

	r := router.SetupRouter(ctx, cfg, rooms, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Meet server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	media.Close()
	log.Info().Msg("Server exited gracefully")
}
