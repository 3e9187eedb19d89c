package sink

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/pkordes/ride-duration/internal/domain"
	"github.com/pkordes/ride-duration/internal/metrics"
)

// Mirror has one authoritative sink and any number of best-effort copies.
// The run's outcome is the primary's outcome: mirrors are written only after
// the primary has published, and a mirror failure is logged and counted but
// never fails the run. A failed primary write leaves every mirror untouched.
type Mirror struct {
	primary Sink
	mirrors []Sink
	log     *slog.Logger
}

// NewMirror writes to primary first, then to each mirror in order.
func NewMirror(primary Sink, log *slog.Logger, mirrors ...Sink) *Mirror {
	return &Mirror{primary: primary, mirrors: mirrors, log: log}
}

// Location is the primary's location followed by each mirror's, joined by "+".
func (m *Mirror) Location() string {
	locs := []string{m.primary.Location()}
	for _, s := range m.mirrors {
		locs = append(locs, s.Location())
	}
	return strings.Join(locs, "+")
}

// Write publishes results to the primary. Only its error is returned.
func (m *Mirror) Write(ctx context.Context, period domain.Period, results []domain.ScoredRecord) error {
	if err := m.primary.Write(ctx, period, results); err != nil {
		return err
	}
	for _, s := range m.mirrors {
		if err := s.Write(ctx, period, results); err != nil {
			metrics.MirrorWriteFailures.Inc()
			m.log.WarnContext(ctx, "mirror write failed",
				"period", period.String(),
				"mirror", s.Location(),
				"error", err,
			)
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (m *Mirror) Close() error {
	errs := []error{m.primary.Close()}
	for _, s := range m.mirrors {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
