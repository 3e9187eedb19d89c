// Package main is the entry point for the ride-duration HTTP service.
// Its sole responsibility is wiring dependencies together and starting the server.
// No business logic belongs here.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pkordes/ride-duration/internal/config"
	"github.com/pkordes/ride-duration/internal/handler"
	"github.com/pkordes/ride-duration/internal/middleware"
	"github.com/pkordes/ride-duration/internal/model"
	"github.com/pkordes/ride-duration/internal/repo"
	"github.com/pkordes/ride-duration/internal/service"
	"github.com/pkordes/ride-duration/internal/sink"
	"github.com/pkordes/ride-duration/migrations"
)

func main() {
	// --- Config -----------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		// Use plain stderr before the logger is configured.
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// --- Logger -----------------------------------------------------------
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// --- Model ------------------------------------------------------------
	// Loaded once and shared read-only by every request.
	m, err := model.Load(cfg.ModelPath, cfg.StrictCategories)
	if err != nil {
		slog.Error("failed to load model", "path", cfg.ModelPath, "error", err)
		os.Exit(1)
	}
	slog.Info("model loaded", "name", m.Name, "version", m.Version, "features", len(m.Vectorizer.FeatureNames()))

	scorer := service.NewBatchScorer(m.Vectorizer, m.Regression, service.Options{
		FilterBeforeScoring: cfg.FilterBeforeScoring,
		MinDuration:         cfg.MinDuration,
		MaxDuration:         cfg.MaxDuration,
	})

	// --- Database (optional) ----------------------------------------------
	// Without DATABASE_URL the run endpoints report not_found, and predictions
	// come from PREDICTIONS_SQLITE when it is set.
	var (
		runs        handler.RunServicer
		predictions handler.PredictionLister
	)
	if cfg.DatabaseURL != "" {
		applied, err := migrations.Up(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}

		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to create database pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := pool.Ping(context.Background()); err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		slog.Info("database connection established", "migrations_applied", applied)

		runs = service.NewRunService(scorer, repo.NewRunRepo(pool), logger)
		predictions = repo.NewPredictionRepo(pool)
	} else if cfg.PredictionsSQLite != "" {
		lite, err := sink.OpenSQLite(context.Background(), cfg.PredictionsSQLite)
		if err != nil {
			slog.Error("failed to open predictions database", "path", cfg.PredictionsSQLite, "error", err)
			os.Exit(1)
		}
		defer lite.Close()
		slog.Info("serving predictions from sqlite", "path", cfg.PredictionsSQLite)
		predictions = lite
	}

	// --- Router -----------------------------------------------------------
	// RequestID → RealIP → SlogLogger → Recoverer → CORS → MaxBodySize.
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewCORSHandler(cfg.CORSOrigins))
	r.Use(middleware.NewMaxBodySizeHandler(cfg.MaxBodyBytes))

	srv := handler.NewServer(scorer, m.Version, runs, predictions, logger)
	r.Mount("/", srv.Routes())

	// --- HTTP Server ------------------------------------------------------
	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown: wait for OS signal, then give in-flight requests
	// up to 15 seconds to complete before forcefully closing.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", httpSrv.Addr, "model_version", m.Version)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
