package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/dvloznov/finance-ledger/internal/api"
	"github.com/dvloznov/finance-ledger/internal/config"
	"github.com/dvloznov/finance-ledger/internal/jobs"
	"github.com/dvloznov/finance-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/dvloznov/finance-ledger/internal/persist/backend"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New()
		boot.Fatal().Err(err).Msg("Invalid configuration")
	}

	port := flag.String("port", cfg.Port, "HTTP server port (or set PORT env)")
	flag.Parse()

	log := logger.NewWithLevel(cfg.LogLevel)
	logger.SetDefault(log)
	ctx := logger.WithContext(context.Background(), log)

	be, err := backend.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer be.Close()

	// Persistence runs behind one worker so saves land in version order.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore,
		inmemory.WithWorkers(1),
		inmemory.WithMaxRetries(cfg.PersistMaxRetries),
	)
	saver := be.Saver()
	persister := jobs.NewPersister(saver, jobQueue)

	opts := []ledger.Option{
		ledger.WithCurrency(cfg.Currency),
		ledger.WithCommitHook(persister.Hook()),
	}
	if cfg.SeedDefault {
		opts = append(opts, ledger.WithDefaults())
	}
	store := ledger.New(opts...)

	fresh, err := be.Restore(ctx, store)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load ledger")
	}
	if fresh {
		log.Info().Str("storage", cfg.Storage).Msg("No saved ledger found, starting fresh")
		if err := saver.Save(ctx, store.State()); err != nil {
			log.Error().Err(err).Msg("Failed to save initial ledger")
		}
	}

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	go func() {
		log.Info().Msg("Starting persist worker")
		if err := jobQueue.Start(workerCtx, persister.Handle); err != nil {
			log.Error().Err(err).Msg("Persist worker stopped with error")
		}
	}()

	router := api.NewRouter(api.Deps{
		Store:     store,
		Jobs:      jobStore,
		Log:       log,
		AfterLoad: persister.Hook(),
		Limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
	})

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Str("storage", cfg.Storage).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	shutdownCtx = logger.WithContext(shutdownCtx, log)

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop waits for the in-flight save only; Flush covers queued versions.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping persist queue")
	}
	cancelWorker()
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close persist queue")
	}

	st, version := store.VersionedState()
	if err := persister.Flush(shutdownCtx, version, st); err != nil {
		log.Error().Err(err).Uint64("version", version).Msg("Final save failed")
	}

	log.Info().Uint64("saved_version", persister.SavedVersion()).Msg("Server exited")
}
