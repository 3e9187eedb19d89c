// Package repo contains all database access logic for ride-duration scoring.
// Each resource has its own file with an interface and a Postgres implementation.
// No business logic lives here, only SQL and type mapping.
package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/ride-duration/internal/domain"
)

// db is the minimal interface satisfied by *pgxpool.Pool, *pgx.Conn, and pgx.Tx.
// Accepting it instead of *pgxpool.Pool lets integration tests pass a
// transaction that is rolled back after each test.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// RunRepo defines the persistence operations for batch run bookkeeping.
type RunRepo interface {
	// Create inserts a run in its initial state and returns the persisted record.
	Create(ctx context.Context, run domain.BatchRun) (domain.BatchRun, error)

	// Finish stores the terminal status, counts, and error of a run and stamps
	// finished_at. Returns domain.ErrNotFound if the run does not exist.
	Finish(ctx context.Context, run domain.BatchRun) (domain.BatchRun, error)

	// GetByID retrieves a single run. Returns domain.ErrNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (domain.BatchRun, error)

	// ListPaged returns one page of runs, most recent first, and the total count.
	ListPaged(ctx context.Context, p domain.PaginationParams) ([]domain.BatchRun, int64, error)
}

// pgRunRepo is the Postgres implementation of RunRepo.
type pgRunRepo struct {
	db db
}

// NewRunRepo constructs a RunRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewRunRepo(db db) RunRepo {
	return &pgRunRepo{db: db}
}

const runColumns = `id, year, month, source, sink, status, records_read, records_scored, error, started_at, finished_at`

func (r *pgRunRepo) Create(ctx context.Context, run domain.BatchRun) (domain.BatchRun, error) {
	q := `
		INSERT INTO batch_runs (id, year, month, source, sink, status)
		VALUES (@id, @year, @month, @source, @sink, @status)
		RETURNING ` + runColumns

	args := pgx.NamedArgs{
		"id":     run.ID,
		"year":   run.Period.Year,
		"month":  run.Period.Month,
		"source": run.Source,
		"sink":   run.Sink,
		"status": string(run.Status),
	}

	result, err := scanRun(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.BatchRun{}, fmt.Errorf("repo.RunRepo.Create: %w", err)
	}
	return result, nil
}

func (r *pgRunRepo) Finish(ctx context.Context, run domain.BatchRun) (domain.BatchRun, error) {
	q := `
		UPDATE batch_runs
		SET status         = @status,
		    records_read   = @records_read,
		    records_scored = @records_scored,
		    error          = @error,
		    finished_at    = now()
		WHERE id = @id
		RETURNING ` + runColumns

	args := pgx.NamedArgs{
		"id":             run.ID,
		"status":         string(run.Status),
		"records_read":   run.RecordsRead,
		"records_scored": run.RecordsScored,
		"error":          run.Error,
	}

	result, err := scanRun(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.BatchRun{}, fmt.Errorf("repo.RunRepo.Finish: %w", err)
	}
	return result, nil
}

func (r *pgRunRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.BatchRun, error) {
	q := `SELECT ` + runColumns + ` FROM batch_runs WHERE id = @id`

	result, err := scanRun(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.BatchRun{}, fmt.Errorf("repo.RunRepo.GetByID: %w", err)
	}
	return result, nil
}

func (r *pgRunRepo) ListPaged(ctx context.Context, p domain.PaginationParams) ([]domain.BatchRun, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM batch_runs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repo.RunRepo.ListPaged: count: %w", err)
	}

	q := `
		SELECT ` + runColumns + `
		FROM batch_runs
		ORDER BY started_at DESC, id
		LIMIT @limit OFFSET @offset`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"limit": p.Limit, "offset": p.Offset()})
	if err != nil {
		return nil, 0, fmt.Errorf("repo.RunRepo.ListPaged: %w", err)
	}
	defer rows.Close()

	runs := []domain.BatchRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("repo.RunRepo.ListPaged: scan: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repo.RunRepo.ListPaged: rows: %w", err)
	}
	return runs, total, nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (domain.BatchRun, error) {
	var (
		run      domain.BatchRun
		id       pgtype.UUID
		status   string
		finished pgtype.Timestamptz
	)

	err := s.Scan(&id, &run.Period.Year, &run.Period.Month, &run.Source, &run.Sink, &status,
		&run.RecordsRead, &run.RecordsScored, &run.Error, &run.StartedAt, &finished)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BatchRun{}, domain.ErrNotFound
		}
		return domain.BatchRun{}, err
	}

	run.ID = uuid.UUID(id.Bytes)
	run.Status = domain.RunStatus(status)
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return run, nil
}
