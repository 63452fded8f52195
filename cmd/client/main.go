package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/meetclient/internal/adapters/device"
	router "github.com/dkeye/meetclient/internal/adapters/http"
	"github.com/dkeye/meetclient/internal/adapters/rtc"
	sig "github.com/dkeye/meetclient/internal/adapters/signal"
	"github.com/dkeye/meetclient/internal/app"
	"github.com/dkeye/meetclient/internal/app/media"
	"github.com/dkeye/meetclient/internal/app/orch"
	"github.com/dkeye/meetclient/internal/config"
	"github.com/dkeye/meetclient/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var (
		cfg *config.Config
		err error
	)
	if len(os.Args) > 1 {
		cfg, err = config.LoadFile(os.Args[1])
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	if cfg.MeetingID == "" {
		log.Fatal().Msg("meeting_id is required")
	}
	user, err := domain.NewUser(cfg.UserID, cfg.UserName)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid user")
	}

	engineCfg := rtc.DefaultConfig()
	if len(cfg.ICEServers) > 0 {
		engineCfg.ICEServers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}

	session := orch.New(
		&sig.Dialer{URL: cfg.SignalURL, ReadLimit: cfg.ReadLimit, PingPeriod: cfg.PingPeriod},
		&device.FileSource{
			AudioPath:     cfg.AudioFile,
			VideoPath:     cfg.VideoFile,
			VideoLayers:   cfg.VideoLayers,
			StartDisabled: cfg.StartMuted,
		},
		rtc.NewEngine(engineCfg),
		orch.Config{
			Meeting: domain.Meeting{ID: domain.MeetingID(cfg.MeetingID), GroupID: cfg.GroupID},
			User:    *user,
			Media: media.Options{
				Timeouts: media.Timeouts{
					Request:         cfg.RequestTimeout,
					CreateTransport: cfg.TransportTimeout,
					Connect:         cfg.ConnectTimeout,
				},
				Simulcast: cfg.SimulcastBitrates,
			},
			ChatLimiter: app.NewRateLimiter(cfg.ChatLimit, cfg.ChatInterval),
			ChatHistory: cfg.ChatHistory,
		},
	)

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: router.SetupRouter(cfg, session),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The session ending (leave, signal loss) stops the process too.
		defer cancel()
		return session.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.Listen).Str("meeting", cfg.MeetingID).Msg("meetclient started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("session ended with error")
		os.Exit(1)
	}
	log.Info().Msg("Client exited gracefully")
}
