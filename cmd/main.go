package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bracketops/matchday/broadcast"
	"github.com/bracketops/matchday/config"
	"github.com/bracketops/matchday/db"
	"github.com/bracketops/matchday/handlers"
	"github.com/bracketops/matchday/repositories"
	api "github.com/bracketops/matchday/routes"
	"github.com/bracketops/matchday/services"
	"github.com/bracketops/matchday/storage"
	"github.com/go-chi/chi/v5"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	// Object store for audit archive export. Optional: without credentials
	// the archive endpoint reports the export as unavailable.
	var archiveStore storage.ObjectStore
	if cfg.ArchiveEnabled() {
		archiveStore, err = storage.NewR2Store(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize R2 archive store", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("R2 archive store initialized")
	} else {
		archiveStore = storage.Unconfigured()
		logger.Warn("audit archive export not configured, running without it")
	}

	wsHub := broadcast.NewHub()
	go wsHub.Run()
	logger.Info("broadcast hub started")

	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	teamRepo := repositories.NewPostgresTeamRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	recordRepo := repositories.NewPostgresRecordRepository(dbConn)
	logger.Info("repositories initialized")

	recordService := services.NewRecordService(recordRepo, tournamentRepo, wsHub, archiveStore, logger)
	standingsService := services.NewStandingsService(teamRepo, tournamentRepo, logger)
	lifecycleService := services.NewMatchLifecycleService(
		matchRepo,
		teamRepo,
		tournamentRepo,
		recordService,
		standingsService,
		logger,
	)
	resolver := services.NewDeadlineResolver(matchRepo, lifecycleService, cfg.ResolverGrace, logger)
	logger.Info("services initialized")

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	// Forfeit auto-submission worker.
	go lifecycleService.Run(workerCtx)

	// Deadline resolver sweep.
	go func() {
		ticker := time.NewTicker(cfg.ResolverInterval)
		defer ticker.Stop()
		logger.Info("deadline resolver started", slog.Duration("interval", cfg.ResolverInterval))
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				if err := resolver.ResolveExpired(workerCtx); err != nil {
					logger.Error("deadline resolver sweep failed", slog.Any("error", err))
				}
			}
		}
	}()

	matchHandler := handlers.NewMatchHandler(lifecycleService)
	standingsHandler := handlers.NewStandingsHandler(standingsService)
	recordHandler := handlers.NewRecordHandler(recordService)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub)
	logger.Info("HTTP handlers initialized")

	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		[]byte(cfg.JWTSecretKey),
		matchHandler,
		standingsHandler,
		recordHandler,
		webSocketHandler,
	)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		cancelWorkers()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
	logger.Info("application exited")
}
