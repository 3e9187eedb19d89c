package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/ride-duration/internal/domain"
	"github.com/pkordes/ride-duration/internal/metrics"
	"github.com/pkordes/ride-duration/internal/repo"
)

// RunService executes batch runs and keeps their bookkeeping.
// runs may be nil, in which case runs are executed and logged but not stored.
type RunService struct {
	scorer *BatchScorer
	runs   repo.RunRepo
	log    *slog.Logger
}

// NewRunService constructs a RunService. Pass a nil RunRepo when no database
// is configured.
func NewRunService(scorer *BatchScorer, runs repo.RunRepo, log *slog.Logger) *RunService {
	if log == nil {
		log = slog.Default()
	}
	return &RunService{scorer: scorer, runs: runs, log: log}
}

// Execute runs one batch for period from src to sink and returns the finished
// run record. The returned error is the pipeline error, if any; bookkeeping
// failures after the results are published are logged, not returned.
func (s *RunService) Execute(ctx context.Context, src Source, sink Sink, period domain.Period) (domain.BatchRun, error) {
	run := domain.BatchRun{
		ID:        uuid.New(),
		Period:    period,
		Source:    src.Location(),
		Sink:      sink.Location(),
		Status:    domain.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	if s.runs != nil {
		created, err := s.runs.Create(ctx, run)
		if err != nil {
			return run, fmt.Errorf("service.RunService.Execute: %w", err)
		}
		run = created
	}

	start := time.Now()
	sum, runErr := s.scorer.Run(ctx, src, sink, period)
	elapsed := time.Since(start)
	metrics.ObserveBatch(sum.Read, sum.Scored, elapsed.Seconds(), runErr)

	run.RecordsRead = sum.Read
	run.RecordsScored = sum.Scored
	run.Status = domain.RunSucceeded
	if runErr != nil {
		run.Status = domain.RunFailed
		run.Error = runErr.Error()
		run.RecordsScored = 0
	}

	attrs := []any{
		"run_id", run.ID,
		"period", period.String(),
		"source", run.Source,
		"sink", run.Sink,
		"records_read", sum.Read,
		"records_filtered", sum.Filtered,
		"records_scored", run.RecordsScored,
		"duration_ms", elapsed.Milliseconds(),
	}
	if runErr != nil {
		s.log.ErrorContext(ctx, "batch failed", append(attrs, "error", runErr)...)
	} else {
		s.log.InfoContext(ctx, "batch scored", attrs...)
	}

	if s.runs != nil {
		// A cancelled ctx must not prevent recording how the run ended.
		finished, err := s.runs.Finish(context.WithoutCancel(ctx), run)
		if err != nil {
			s.log.WarnContext(ctx, "failed to record run outcome", "run_id", run.ID, "error", err)
		} else {
			run = finished
		}
	}
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}

	return run, runErr
}

// GetByID returns one stored run. Returns domain.ErrNotFound when no database
// is configured or the run does not exist.
func (s *RunService) GetByID(ctx context.Context, id uuid.UUID) (domain.BatchRun, error) {
	if s.runs == nil {
		return domain.BatchRun{}, fmt.Errorf("service.RunService.GetByID: %w", domain.ErrNotFound)
	}
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return domain.BatchRun{}, fmt.Errorf("service.RunService.GetByID: %w", err)
	}
	return run, nil
}

// ListPaged returns one page of stored runs and the total count.
// Always returns a non-nil slice.
func (s *RunService) ListPaged(ctx context.Context, p domain.PaginationParams) ([]domain.BatchRun, int64, error) {
	if s.runs == nil {
		return []domain.BatchRun{}, 0, nil
	}
	runs, total, err := s.runs.ListPaged(ctx, p)
	if err != nil {
		return nil, 0, fmt.Errorf("service.RunService.ListPaged: %w", err)
	}
	if runs == nil {
		runs = []domain.BatchRun{}
	}
	return runs, total, nil
}
