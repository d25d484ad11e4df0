// Package main is the entry point for the portfolio analytics engine.
// It wires the price history store to the computation modules (statistics,
// scoring, optimization, Monte Carlo simulation) and serves their outputs
// over a JSON API for the presentation layer.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/quantcockpit/engine/internal/config"
	"github.com/quantcockpit/engine/internal/database"
	"github.com/quantcockpit/engine/internal/modules/history"
	"github.com/quantcockpit/engine/internal/modules/optimization"
	"github.com/quantcockpit/engine/internal/modules/simulation"
	"github.com/quantcockpit/engine/internal/modules/statistics"
	"github.com/quantcockpit/engine/internal/server"
	"github.com/quantcockpit/engine/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting analytics engine")

	// Price history store. The engine only reads from it; ingestion is a
	// separate process writing into the same database.
	historyDB, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "finance.db"),
		Name: "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	historyRepo := history.NewRepository(historyDB.Conn(), log)
	if err := historyRepo.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate history database")
	}

	srv := server.New(server.Config{
		Log:        log,
		Port:       cfg.Port,
		Engine:     cfg.Engine,
		Health:     historyDB,
		Provider:   historyRepo,
		Calculator: statistics.NewCalculator(log),
		Optimizer:  optimization.NewOptimizer(log),
		Simulator:  simulation.NewSimulator(log),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("Server failed")
		}
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Graceful shutdown failed")
		}
	}

	log.Info().Msg("Stopped")
}
