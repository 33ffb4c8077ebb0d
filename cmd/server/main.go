package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/developer-az/commit-warrior/internal/api"
	"github.com/developer-az/commit-warrior/internal/cache"
	"github.com/developer-az/commit-warrior/internal/commits"
	"github.com/developer-az/commit-warrior/internal/config"
	"github.com/developer-az/commit-warrior/internal/db"
	"github.com/developer-az/commit-warrior/internal/github"
	"github.com/developer-az/commit-warrior/internal/history"
	"github.com/developer-az/commit-warrior/internal/retry"
	"github.com/developer-az/commit-warrior/internal/watch"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional check history
	var (
		database *db.Postgres
		store    *history.Store
	)
	if cfg.HistoryEnabled() {
		database, err = db.NewPostgres(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if err := db.RunMigrations(ctx, database.Pool(), logger); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		store = history.NewStore(database.Pool())
	} else {
		logger.Info("DATABASE_URL not set, check history disabled")
	}

	client := github.NewClient(cfg.GitHubAPIURL, nil, logger)
	source := github.NewSource(
		client,
		cache.New(cfg.CacheMaxEntries, cache.WithLogger(logger)),
		retry.New(retry.DefaultOptions(), logger),
		cfg.EventPages,
		logger,
	)
	checker := commits.NewChecker(source, commits.Options{
		Detector: commits.DetectorOptions{
			MaxRepositories: cfg.MaxRepositories,
			Concurrency:     cfg.RepoConcurrency,
			ExcludeMerges:   cfg.ExcludeMergeCommits,
		},
		ValidateToken: cfg.ValidateToken,
		Location:      cfg.Location,
	}, logger)

	credentials := func() github.Credential {
		return github.Credential{Username: cfg.GitHubUsername, Token: cfg.GitHubToken}
	}

	opts := []watch.Option{watch.WithTimeout(cfg.CheckTimeout), watch.WithLogger(logger)}
	if store != nil {
		opts = append(opts, watch.WithRecorder(store))
	}
	watcher, err := watch.New(checker, credentials, cfg.CheckSchedule, opts...)
	if err != nil {
		log.Fatalf("Failed to create watcher: %v", err)
	}
	watcher.Run(ctx)

	routerCfg := &api.RouterConfig{
		Checker:        checker,
		Scheduler:      watcher,
		Credentials:    credentials,
		CheckTimeout:   cfg.CheckTimeout,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	}
	// Leave interfaces nil rather than holding nil pointers
	if database != nil {
		routerCfg.Database = database
		routerCfg.History = store
	}
	routerResult := api.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      routerResult.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.CheckTimeout + 5*time.Second, // POST /api/check runs a full check
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting server", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	watcher.Stop()
	routerResult.RateLimiters.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	if database != nil {
		database.Close()
	}

	logger.Info("Server exited")
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.Env == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
