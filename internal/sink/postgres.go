package sink

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pkordes/ride-duration/internal/domain"
	"github.com/pkordes/ride-duration/internal/repo"
)

// txBeginner is satisfied by *pgxpool.Pool and *pgx.Conn.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Postgres replaces a period's rows in the predictions table inside one
// transaction. The schema comes from the goose migrations.
type Postgres struct {
	db       txBeginner
	location string
	close    func()
}

// NewPostgres wraps an existing pool or connection. Close does not close it.
func NewPostgres(db txBeginner, location string) *Postgres {
	return &Postgres{db: db, location: location, close: func() {}}
}

// OpenPostgres connects a pool to dsn. Close closes the pool.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("sink.OpenPostgres: %w", err)
	}
	location := dsn
	if u, err := url.Parse(dsn); err == nil {
		location = u.Redacted()
	}
	return &Postgres{db: pool, location: location, close: pool.Close}, nil
}

// Location returns the DSN with its password redacted.
func (p *Postgres) Location() string { return p.location }

// Close releases the pool when the sink owns it.
func (p *Postgres) Close() error {
	p.close()
	return nil
}

// Write replaces period's predictions with results.
func (p *Postgres) Write(ctx context.Context, period domain.Period, results []domain.ScoredRecord) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("sink.Postgres.Write: %w: begin: %w", domain.ErrSinkWrite, err)
	}
	defer tx.Rollback(context.WithoutCancel(ctx)) //nolint:errcheck

	if _, err := repo.NewPredictionRepo(tx).ReplacePeriod(ctx, period, results); err != nil {
		return fmt.Errorf("sink.Postgres.Write: %w: %w", domain.ErrSinkWrite, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("sink.Postgres.Write: %w: commit: %w", domain.ErrSinkWrite, err)
	}
	return nil
}
