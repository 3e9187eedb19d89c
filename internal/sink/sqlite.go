package sink

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/pkordes/ride-duration/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS predictions (
	year               INTEGER NOT NULL,
	month              INTEGER NOT NULL,
	ride_id            TEXT    NOT NULL,
	predicted_duration REAL    NOT NULL,
	PRIMARY KEY (year, month, ride_id)
)`

// SQLite stores results in a local database file, replacing a period's rows
// inside one transaction.
type SQLite struct {
	path string
	conn *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and ensures the
// predictions table exists.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("sink.OpenSQLite: %w", err)
	}
	// One writer at a time.
	conn.SetMaxOpenConns(1)

	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sink.OpenSQLite: schema: %w", err)
	}
	return &SQLite{path: path, conn: conn}, nil
}

// Location returns the database path.
func (s *SQLite) Location() string { return "sqlite://" + s.path }

// Close closes the database.
func (s *SQLite) Close() error { return s.conn.Close() }

// Write replaces every stored row of period with results.
func (s *SQLite) Write(ctx context.Context, period domain.Period, results []domain.ScoredRecord) error {
	if err := s.replace(ctx, period, results); err != nil {
		return fmt.Errorf("sink.SQLite.Write: %w: %w", domain.ErrSinkWrite, err)
	}
	return nil
}

func (s *SQLite) replace(ctx context.Context, period domain.Period, results []domain.ScoredRecord) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM predictions WHERE year = ? AND month = ?`, period.Year, period.Month); err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO predictions (year, month, ride_id, predicted_duration) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, period.Year, period.Month, r.RideID, r.PredictedDuration); err != nil {
			return fmt.Errorf("insert %s: %w", r.RideID, err)
		}
	}
	return tx.Commit()
}

// ListByPeriod returns one page of period's stored rows in ride-index order,
// plus the period's total row count. The API serves GET /predictions from it
// when no Postgres database is configured.
func (s *SQLite) ListByPeriod(ctx context.Context, period domain.Period, p domain.PaginationParams) ([]domain.ScoredRecord, int64, error) {
	var total int64
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM predictions WHERE year = ? AND month = ?`,
		period.Year, period.Month).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("sink.SQLite.ListByPeriod: count: %w", err)
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT ride_id, predicted_duration
		FROM predictions
		WHERE year = ? AND month = ?
		ORDER BY length(ride_id), ride_id
		LIMIT ? OFFSET ?`, period.Year, period.Month, p.Limit, p.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("sink.SQLite.ListByPeriod: %w", err)
	}
	defer rows.Close()

	out := []domain.ScoredRecord{}
	for rows.Next() {
		var r domain.ScoredRecord
		if err := rows.Scan(&r.RideID, &r.PredictedDuration); err != nil {
			return nil, 0, fmt.Errorf("sink.SQLite.ListByPeriod: scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sink.SQLite.ListByPeriod: %w", err)
	}
	return out, total, nil
}
