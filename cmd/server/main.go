package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	router "github.com/dkeye/Space/internal/adapters/http"
	"github.com/dkeye/Space/internal/adapters/rtc"
	wssignal "github.com/dkeye/Space/internal/adapters/signal"
	"github.com/dkeye/Space/internal/app"
	"github.com/dkeye/Space/internal/app/orch"
	"github.com/dkeye/Space/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	if err := rtc.ValidateURLs(slices.Concat(cfg.ICE.STUNURLs, cfg.ICE.TURNURLs)); err != nil {
		log.Fatal().Err(err).Msg("invalid ice config")
	}

	store := app.NewSpaceStore(app.StoreOptions{
		Capacity:    cfg.Space.MaxParticipants,
		ArenaSize:   cfg.Space.ArenaSize,
		SpawnHeight: cfg.Space.SpawnHeight,
	})
	o := orch.New(app.NewRegistry(), store)
	o.TickPeriod = cfg.Space.TickPeriod()
	o.ICEDefaults = rtc.DefaultICEServers(cfg.ICE.STUNURLs)
	o.ICETimeout = cfg.ICE.FetchTimeout
	if cfg.ICE.TURNSecret != "" && len(cfg.ICE.TURNURLs) > 0 {
		o.ICE = &rtc.TURNREST{
			URLs:   cfg.ICE.TURNURLs,
			Secret: cfg.ICE.TURNSecret,
			TTL:    cfg.ICE.TURNTTL,
		}
	}

	joins := wssignal.NewJoinLimiter(cfg.Join.Rate, cfg.Join.Burst)
	r := router.SetupRouter(ctx, cfg, o, joins)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg conc.WaitGroup
	wg.Go(func() {
		log.Info().Str("addr", addr).Msg("Space server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	})

	<-ctx.Done()
	log.Info().Int("sessions", o.Registry.Count()).Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	for _, s := range o.Registry.All() {
		o.Disconnect(s.SID)
	}
	wg.Wait()
	log.Info().Msg("Server exited gracefully")
}
