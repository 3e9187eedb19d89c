package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/ride-duration/internal/domain"
	"github.com/pkordes/ride-duration/internal/repo"
	"github.com/pkordes/ride-duration/internal/service"
)

// mockRunRepo is a hand-written test double for repo.RunRepo.
// Each method is a function field; set only the ones your test needs.
type mockRunRepo struct {
	create    func(ctx context.Context, run domain.BatchRun) (domain.BatchRun, error)
	finish    func(ctx context.Context, run domain.BatchRun) (domain.BatchRun, error)
	getByID   func(ctx context.Context, id uuid.UUID) (domain.BatchRun, error)
	listPaged func(ctx context.Context, p domain.PaginationParams) ([]domain.BatchRun, int64, error)
}

func (m *mockRunRepo) Create(ctx context.Context, run domain.BatchRun) (domain.BatchRun, error) {
	return m.create(ctx, run)
}
func (m *mockRunRepo) Finish(ctx context.Context, run domain.BatchRun) (domain.BatchRun, error) {
	return m.finish(ctx, run)
}
func (m *mockRunRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.BatchRun, error) {
	return m.getByID(ctx, id)
}
func (m *mockRunRepo) ListPaged(ctx context.Context, p domain.PaginationParams) ([]domain.BatchRun, int64, error) {
	return m.listPaged(ctx, p)
}

var _ repo.RunRepo = (*mockRunRepo)(nil)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// echoRunRepo stores the last finished run and stamps finished_at like the
// database does.
func echoRunRepo(finished *domain.BatchRun) *mockRunRepo {
	return &mockRunRepo{
		create: func(_ context.Context, r domain.BatchRun) (domain.BatchRun, error) { return r, nil },
		finish: func(_ context.Context, r domain.BatchRun) (domain.BatchRun, error) {
			now := time.Now().UTC()
			r.FinishedAt = &now
			*finished = r
			return r, nil
		},
	}
}

func TestRunService_Execute_Succeeded(t *testing.T) {
	var stored domain.BatchRun
	svc := service.NewRunService(newScorer(t, service.DefaultOptions()), echoRunRepo(&stored), quietLogger())
	src := &memSource{records: []domain.TripRecord{tripLasting(5 * time.Minute), tripLasting(0)}}
	sink := &memSink{}

	run, err := svc.Execute(context.Background(), src, sink, domain.Period{Year: 2021, Month: 3})

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, run.ID)
	assert.Equal(t, domain.RunSucceeded, run.Status)
	assert.Equal(t, 2, run.RecordsRead)
	assert.Equal(t, 1, run.RecordsScored)
	assert.Empty(t, run.Error)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, run.ID, stored.ID, "the finished run must be the one created")
	assert.Equal(t, "memory", run.Source)
	assert.Equal(t, 1, sink.writes)
}

func TestRunService_Execute_FailedRunIsRecorded(t *testing.T) {
	var stored domain.BatchRun
	svc := service.NewRunService(newScorer(t, service.DefaultOptions()), echoRunRepo(&stored), quietLogger())
	src := &memSource{err: domain.ErrSourceUnavailable}

	run, err := svc.Execute(context.Background(), src, &memSink{}, domain.Period{Year: 2021, Month: 3})

	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Equal(t, domain.RunFailed, stored.Status)
	assert.Contains(t, stored.Error, "source unavailable")
	assert.Zero(t, stored.RecordsScored)
}

func TestRunService_Execute_CreateErrorSkipsBatch(t *testing.T) {
	dbErr := errors.New("connection refused")
	runs := &mockRunRepo{
		create: func(context.Context, domain.BatchRun) (domain.BatchRun, error) { return domain.BatchRun{}, dbErr },
	}
	sink := &memSink{}
	svc := service.NewRunService(newScorer(t, service.DefaultOptions()), runs, quietLogger())

	_, err := svc.Execute(context.Background(), &memSource{}, sink, domain.Period{Year: 2021, Month: 3})

	assert.ErrorIs(t, err, dbErr)
	assert.Zero(t, sink.writes)
}

func TestRunService_Execute_FinishErrorIsNotFatal(t *testing.T) {
	runs := &mockRunRepo{
		create: func(_ context.Context, r domain.BatchRun) (domain.BatchRun, error) { return r, nil },
		finish: func(context.Context, domain.BatchRun) (domain.BatchRun, error) {
			return domain.BatchRun{}, errors.New("connection reset")
		},
	}
	svc := service.NewRunService(newScorer(t, service.DefaultOptions()), runs, quietLogger())

	run, err := svc.Execute(context.Background(), &memSource{}, &memSink{}, domain.Period{Year: 2021, Month: 3})

	require.NoError(t, err)
	assert.Equal(t, domain.RunSucceeded, run.Status)
	assert.NotNil(t, run.FinishedAt)
}

func TestRunService_Execute_WithoutRepo(t *testing.T) {
	svc := service.NewRunService(newScorer(t, service.DefaultOptions()), nil, nil)

	run, err := svc.Execute(context.Background(), &memSource{}, &memSink{}, domain.Period{Year: 2021, Month: 3})

	require.NoError(t, err)
	assert.Equal(t, domain.RunSucceeded, run.Status)
	assert.NotNil(t, run.FinishedAt)
}

func TestRunService_GetByID(t *testing.T) {
	id := uuid.New()
	runs := &mockRunRepo{
		getByID: func(_ context.Context, got uuid.UUID) (domain.BatchRun, error) {
			if got != id {
				return domain.BatchRun{}, domain.ErrNotFound
			}
			return domain.BatchRun{ID: id, Status: domain.RunSucceeded}, nil
		},
	}
	svc := service.NewRunService(nil, runs, quietLogger())

	run, err := svc.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, run.ID)

	_, err = svc.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunService_GetByID_NoRepo(t *testing.T) {
	svc := service.NewRunService(nil, nil, quietLogger())

	_, err := svc.GetByID(context.Background(), uuid.New())

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunService_ListPaged_NeverNil(t *testing.T) {
	runs := &mockRunRepo{
		listPaged: func(context.Context, domain.PaginationParams) ([]domain.BatchRun, int64, error) {
			return nil, 0, nil
		},
	}
	svc := service.NewRunService(nil, runs, quietLogger())

	got, total, err := svc.ListPaged(context.Background(), domain.PaginationParams{Page: 1, Limit: 20})

	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Zero(t, total)

	got, _, err = service.NewRunService(nil, nil, nil).ListPaged(context.Background(), domain.PaginationParams{Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.NotNil(t, got)
}
