package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pkordes/ride-duration/internal/domain"
)

// PredictionRepo persists scored records partitioned by period.
type PredictionRepo interface {
	// ReplacePeriod deletes every stored prediction of period and bulk-inserts
	// results in their place. It is only atomic when the repo wraps a pgx.Tx.
	ReplacePeriod(ctx context.Context, period domain.Period, results []domain.ScoredRecord) (int64, error)

	// ListByPeriod returns one page of a period's predictions ordered by ride id,
	// and the period's total count.
	ListByPeriod(ctx context.Context, period domain.Period, p domain.PaginationParams) ([]domain.ScoredRecord, int64, error)
}

type pgPredictionRepo struct {
	db db
}

// NewPredictionRepo constructs a PredictionRepo backed by the provided db connection.
func NewPredictionRepo(db db) PredictionRepo {
	return &pgPredictionRepo{db: db}
}

var predictionColumns = []string{"year", "month", "ride_id", "predicted_duration"}

func (r *pgPredictionRepo) ReplacePeriod(ctx context.Context, period domain.Period, results []domain.ScoredRecord) (int64, error) {
	const del = `DELETE FROM predictions WHERE year = @year AND month = @month`
	if _, err := r.db.Exec(ctx, del, pgx.NamedArgs{"year": period.Year, "month": period.Month}); err != nil {
		return 0, fmt.Errorf("repo.PredictionRepo.ReplacePeriod: delete: %w", err)
	}

	n, err := r.db.CopyFrom(ctx, pgx.Identifier{"predictions"}, predictionColumns,
		pgx.CopyFromSlice(len(results), func(i int) ([]any, error) {
			return []any{period.Year, period.Month, results[i].RideID, results[i].PredictedDuration}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("repo.PredictionRepo.ReplacePeriod: copy: %w", err)
	}
	return n, nil
}

func (r *pgPredictionRepo) ListByPeriod(ctx context.Context, period domain.Period, p domain.PaginationParams) ([]domain.ScoredRecord, int64, error) {
	args := pgx.NamedArgs{
		"year":   period.Year,
		"month":  period.Month,
		"limit":  p.Limit,
		"offset": p.Offset(),
	}

	var total int64
	const count = `SELECT count(*) FROM predictions WHERE year = @year AND month = @month`
	if err := r.db.QueryRow(ctx, count, args).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repo.PredictionRepo.ListByPeriod: count: %w", err)
	}

	// ride_id sorts lexically; order by the numeric suffix so "_10" follows "_9".
	const q = `
		SELECT ride_id, predicted_duration
		FROM predictions
		WHERE year = @year AND month = @month
		ORDER BY length(ride_id), ride_id
		LIMIT @limit OFFSET @offset`

	rows, err := r.db.Query(ctx, q, args)
	if err != nil {
		return nil, 0, fmt.Errorf("repo.PredictionRepo.ListByPeriod: %w", err)
	}
	defer rows.Close()

	out := []domain.ScoredRecord{}
	for rows.Next() {
		var s domain.ScoredRecord
		if err := rows.Scan(&s.RideID, &s.PredictedDuration); err != nil {
			return nil, 0, fmt.Errorf("repo.PredictionRepo.ListByPeriod: scan: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repo.PredictionRepo.ListByPeriod: rows: %w", err)
	}
	return out, total, nil
}
