// Package main is the batch scorer: it scores one month of trip records, or
// every month of a backfill range, and publishes one output per month.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/youta-t/flarc"

	"github.com/pkordes/ride-duration/internal/config"
	"github.com/pkordes/ride-duration/internal/domain"
	"github.com/pkordes/ride-duration/internal/model"
	"github.com/pkordes/ride-duration/internal/repo"
	"github.com/pkordes/ride-duration/internal/service"
	"github.com/pkordes/ride-duration/internal/sink"
	"github.com/pkordes/ride-duration/internal/source"
	"github.com/pkordes/ride-duration/migrations"
)

type Flags struct {
	Year     int     `flag:"year" help:"required. year of the batch to score"`
	Month    int     `flag:"month" help:"required. month (1-12) of the batch to score"`
	Until    string  `flag:"until" help:"backfill every month through YYYY-MM, inclusive"`
	Input    string  `flag:"input" help:"source location; {year} and {month} are expanded"`
	Output   string  `flag:"output" help:"sink location; {year} and {month} are expanded"`
	Layout   string  `flag:"layout" help:"input column layout: fhv or yellow"`
	Model    string  `flag:"model" help:"fitted model artifact (YAML)"`
	NoFilter bool    `flag:"no-filter" help:"score every record, skipping the duration filter"`
	Min      float64 `flag:"min" help:"shortest admissible duration, in minutes"`
	Max      float64 `flag:"max" help:"longest admissible duration, in minutes"`
	Strict   bool    `flag:"strict" help:"fail on location pairs unseen in training"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadDefaults()
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

	cmd, err := flarc.NewCommand(
		"Score ride durations for a month of trip records",
		Flags{
			Input:    cfg.InputPattern,
			Output:   cfg.OutputPattern,
			Layout:   cfg.TripLayout,
			Model:    cfg.ModelPath,
			NoFilter: !cfg.FilterBeforeScoring,
			Min:      cfg.MinDuration,
			Max:      cfg.MaxDuration,
			Strict:   cfg.StrictCategories,
		},
		flarc.Args{},
		func(ctx context.Context, c flarc.Commandline[Flags], _ []any) error {
			return run(ctx, logger, cfg, c.Flags())
		},
	)
	if err != nil {
		logger.Error("failed to build command", "error", err)
		os.Exit(1)
	}

	os.Exit(flarc.Run(ctx, cmd))
}

// plan is a validated set of flags.
type plan struct {
	periods []domain.Period
	layout  source.Layout
	opts    service.Options
}

func parseFlags(flags Flags) (plan, error) {
	var p plan

	from := domain.Period{Year: flags.Year, Month: flags.Month}
	if err := from.Validate(); err != nil {
		return p, fmt.Errorf("%w: --year and --month: %w", flarc.ErrUsage, err)
	}
	until := from
	if flags.Until != "" {
		u, err := domain.ParsePeriod(flags.Until)
		if err != nil {
			return p, fmt.Errorf("%w: --until: %w", flarc.ErrUsage, err)
		}
		if u.Before(from) {
			return p, fmt.Errorf("%w: --until %s is before %s", flarc.ErrUsage, u, from)
		}
		until = u
	}
	p.periods = periods(from, until)

	layout, err := source.ParseLayout(flags.Layout)
	if err != nil {
		return p, fmt.Errorf("%w: --layout: %w", flarc.ErrUsage, err)
	}
	p.layout = layout

	if flags.Model == "" {
		return p, fmt.Errorf("%w: flag `--model` (or, envvar MODEL_PATH) is required", flarc.ErrUsage)
	}
	if flags.Input == "" || flags.Output == "" {
		return p, fmt.Errorf("%w: --input and --output must not be empty", flarc.ErrUsage)
	}
	if flags.Min > flags.Max {
		return p, fmt.Errorf("%w: --min %g is greater than --max %g", flarc.ErrUsage, flags.Min, flags.Max)
	}
	p.opts = service.Options{
		FilterBeforeScoring: !flags.NoFilter,
		MinDuration:         flags.Min,
		MaxDuration:         flags.Max,
	}
	return p, nil
}

// periods lists every month from from through until, inclusive.
func periods(from, until domain.Period) []domain.Period {
	var out []domain.Period
	for p := from; !until.Before(p); p = p.Next() {
		out = append(out, p)
	}
	return out
}

func run(ctx context.Context, logger *slog.Logger, cfg config.Config, flags Flags) error {
	p, err := parseFlags(flags)
	if err != nil {
		return err
	}

	m, err := model.Load(flags.Model, flags.Strict)
	if err != nil {
		return err
	}
	logger.Info("model loaded", "name", m.Name, "version", m.Version)
	scorer := service.NewBatchScorer(m.Vectorizer, m.Regression, p.opts)

	var runs repo.RunRepo
	if cfg.DatabaseURL != "" {
		if _, err := migrations.Up(ctx, cfg.DatabaseURL); err != nil {
			return err
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("create database pool: %w", err)
		}
		defer pool.Close()
		runs = repo.NewRunRepo(pool)
	}
	svc := service.NewRunService(scorer, runs, logger)

	out, err := sink.Open(ctx, flags.Output, sink.Options{S3PathStyle: cfg.S3PathStyle})
	if err != nil {
		return err
	}
	defer out.Close()

	// Months are independent: a failed month is logged and the backfill
	// moves on, but the command still exits non-zero.
	var errs []error
	for _, period := range p.periods {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		src, err := source.Open(ctx, period.Expand(flags.Input), p.layout, source.Options{S3PathStyle: cfg.S3PathStyle})
		if err != nil {
			logger.ErrorContext(ctx, "batch failed", "period", period.String(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", period, err))
			continue
		}
		if _, err := svc.Execute(ctx, src, out, period); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", period, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d batches failed: %w", len(errs), len(p.periods), errors.Join(errs...))
	}
	return nil
}
