// Package main is the stream scorer: it subscribes to ride events on MQTT,
// scores each event as one batch, and publishes the predictions back to MQTT
// and, when REDIS_URL is set, to Redis.
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
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pkordes/ride-duration/internal/config"
	"github.com/pkordes/ride-duration/internal/handler"
	"github.com/pkordes/ride-duration/internal/model"
	"github.com/pkordes/ride-duration/internal/repo"
	"github.com/pkordes/ride-duration/internal/service"
	"github.com/pkordes/ride-duration/internal/sink"
	"github.com/pkordes/ride-duration/internal/stream"
	"github.com/pkordes/ride-duration/migrations"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Config -----------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// --- Model ------------------------------------------------------------
	m, err := model.Load(cfg.ModelPath, cfg.StrictCategories)
	if err != nil {
		slog.Error("failed to load model", "path", cfg.ModelPath, "error", err)
		os.Exit(1)
	}
	slog.Info("model loaded", "name", m.Name, "version", m.Version)

	scorer := service.NewBatchScorer(m.Vectorizer, m.Regression, service.Options{
		FilterBeforeScoring: cfg.FilterBeforeScoring,
		MinDuration:         cfg.MinDuration,
		MaxDuration:         cfg.MaxDuration,
	})

	// --- Run history (optional) -------------------------------------------
	var runs repo.RunRepo
	if cfg.DatabaseURL != "" {
		if _, err := migrations.Up(ctx, cfg.DatabaseURL); err != nil {
			slog.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to create database pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		runs = repo.NewRunRepo(pool)
	}
	svc := service.NewRunService(scorer, runs, logger)

	// --- Sinks ------------------------------------------------------------
	// MQTT output uses its own client so publishing never waits on the
	// subscriber's callbacks.
	out, err := sink.OpenMQTT(ctx, cfg.MQTTURL, cfg.MQTTOutputTopic, "ride-duration-publisher-"+time.Now().Format("20060102150405"))
	if err != nil {
		slog.Error("failed to connect output broker", "error", err)
		os.Exit(1)
	}
	// MQTT is authoritative; Redis only mirrors what MQTT already published.
	var mirrors []sink.Sink
	if cfg.RedisURL != "" {
		rs, err := sink.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			slog.Error("failed to connect redis", "error", err)
			os.Exit(1)
		}
		mirrors = append(mirrors, rs)
		slog.Info("redis mirror enabled", "location", rs.Location())
	}
	output := sink.NewMirror(out, logger, mirrors...)
	defer output.Close()

	// --- Consumer ---------------------------------------------------------
	consumer := stream.NewConsumer(svc, output, logger)
	client, err := stream.Connect(ctx, cfg.MQTTURL, cfg.MQTTInputTopic, "", consumer, logger)
	if err != nil {
		slog.Error("mqtt connection failed", "error", err)
		os.Exit(1)
	}
	defer client.Disconnect(250)

	go serveHTTP(ctx, ":"+cfg.Port)

	slog.Info("stream scorer running", "broker", cfg.MQTTURL, "input", cfg.MQTTInputTopic, "output", output.Location())
	consumer.Run(ctx)
	slog.Info("stream scorer shutting down")
}

// serveHTTP exposes /healthz and /metrics until ctx ends.
func serveHTTP(ctx context.Context, addr string) {
	r := chi.NewRouter()
	r.Get("/healthz", handler.NewHealthHandler().GetHealth)
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server failed", "error", err)
	}
}
