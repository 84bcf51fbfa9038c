package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bilal/devstats/internal/config"
	"github.com/bilal/devstats/internal/health"
	"github.com/bilal/devstats/internal/logger"
	"github.com/bilal/devstats/internal/monitor"
	"github.com/bilal/devstats/pkg/collector"
	"github.com/bilal/devstats/pkg/state"
	"github.com/bilal/devstats/pkg/stats"
)

func main() {
	path := "config.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// Load config
	cfg, err := config.LoadConfig(path)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Init logger
	logger.Init(cfg.Logging)
	log.Info().Str("agent", cfg.Agent.Name).Msg("starting devstats agent")

	statsCfg, err := cfg.StatsConfiguration()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid stats configuration")
	}
	options, err := cfg.CollectorOptions()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid collector options")
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// OS Signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	//------------------------------------------
	// OPEN PERSISTED STATE
	//------------------------------------------
	store, err := state.OpenSQLite(ctx, cfg.Agent.StatePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Agent.StatePath).Msg("failed to open state store")
	}
	defer store.Close()

	//------------------------------------------
	// START COORDINATOR
	//------------------------------------------
	coord, err := stats.New(statsCfg, store, stats.WithLogger(log.Logger))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create stats coordinator")
	}
	log.Info().
		Str("endpoint", coord.Endpoint()).
		Str("protocol", coord.Protocol().String()).
		Dur("minimum_submit_interval", statsCfg.MinimumSubmitInterval).
		Msg("stats coordinator ready")

	//------------------------------------------
	// START HEALTH SERVER
	//------------------------------------------
	healthSrv := health.New(cfg.Agent.HealthPort, coord)
	healthSrv.SetRunning(true)

	go func() {
		if err := healthSrv.Serve(); err != nil {
			log.Error().Err(err).Msg("health server stopped")
		}
	}()
	log.Info().Msgf("health endpoint running on 127.0.0.1:%s/health", cfg.Agent.HealthPort)

	//------------------------------------------
	// START COLLECT + SUBMIT LOOP
	//------------------------------------------
	coll := collector.New(collector.Config{
		Options:          options,
		Probes:           []collector.Probe{collector.SystemProbe(nil)},
		BundleIdentifier: cfg.Agent.BundleIdentifier,
		Logger:           log.Logger,
	})
	runner := monitor.New(cfg.Interval(), coll, coord, nil)
	runnerDone := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(runnerDone)
	}()

	//------------------------------------------
	// WAIT FOR SHUTDOWN SIGNAL
	//------------------------------------------
	sig := <-sigChan
	log.Warn().Str("signal", sig.String()).Msg("shutdown signal received")

	//------------------------------------------
	// SHUTDOWN SEQUENCE
	//------------------------------------------
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	log.Info().Msg("stopping runner...")
	cancel()
	<-runnerDone

	log.Info().Msg("stopping coordinator...")
	coord.Shutdown(shutdownCtx)

	healthSrv.SetRunning(false)
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("health server shutdown")
	}

	log.Info().Msg("agent stopped cleanly")
}
