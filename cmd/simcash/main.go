// Package main is the entry point for the SimCash deterministic RTGS
// simulator. It loads a scenario file, runs the simulation tick by
// tick, persists every event to an append-only store, and exposes a
// read-only HTTP query surface for the duration of the run.
//
// Startup order: load configuration first (so even a config error gets
// logged through a real logger), initialize the structured logger,
// wire dependencies, start the HTTP server and the long-running
// simulation loop on goroutines of their own, then wait on the main
// goroutine for the episode to end or for SIGINT/SIGTERM (which cancels
// the run), finishing with a graceful server shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/simcash/simcash/internal/config"
	"github.com/simcash/simcash/internal/eventstore"
	"github.com/simcash/simcash/internal/health"
	"github.com/simcash/simcash/internal/orchestrator"
	"github.com/simcash/simcash/internal/queryserver"
	"github.com/simcash/simcash/pkg/logger"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: getEnv("SIMCASH_DEV_MODE", "") != ""})
	log.Info().Msg("starting simcash")

	store, err := eventstore.Open(filepath.Join(cfg.DataDir, "events.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open event store")
	}
	defer store.Close()

	orch, err := orchestrator.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct orchestrator")
	}

	healthChecker := health.New(store, log)

	stream := queryserver.NewStreamHandler(orch.Bus, log)
	srv := queryserver.New(queryserver.Config{
		Log:     log,
		Addr:    ":" + strconv.Itoa(cfg.HTTPPort),
		Orch:    orch,
		Health:  healthChecker,
		Stream:  stream,
		DevMode: getEnv("SIMCASH_DEV_MODE", "") != "",
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("query server failed")
		}
	}()
	log.Info().Int("port", cfg.HTTPPort).Msg("query server started")

	runDone := make(chan struct{})
	go runSimulation(orch, store, log, runDone)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("shutdown signal received, cancelling simulation")
		orch.Cancel()
		<-runDone
	case <-runDone:
		log.Info().Msg("simulation reached episode end")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("query server forced to shutdown")
	}
	log.Info().Msg("simcash stopped")
}

// runSimulation drives the orchestrator tick by tick until the
// episode ends or Cancel is called, persisting each tick's events as
// it goes. Runs on its own goroutine so the query server can answer
// requests (including the SSE stream) concurrently with a
// long-running simulation.
func runSimulation(orch *orchestrator.Orchestrator, store *eventstore.Store, log zerolog.Logger, done chan<- struct{}) {
	defer close(done)

	for !orch.Done() {
		result, err := orch.Tick()
		if err != nil {
			log.Error().Err(err).Msg("simulation aborted")
			return
		}
		if err := store.AppendTick(result.Events); err != nil {
			log.Error().Err(err).Int64("tick", result.Tick).Msg("failed to persist tick events")
			return
		}
	}
}
