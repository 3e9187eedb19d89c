// Package service contains the scoring pipeline and the run bookkeeping around it.
// Services depend on interfaces (Source, Sink, Vectorizer, Predictor, repo.RunRepo),
// never on concrete transports, so every stage can be unit-tested with a mock.
package service

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/pkordes/ride-duration/internal/domain"
)

// Default admissible-duration window, in minutes.
const (
	DefaultMinDuration = 1.0
	DefaultMaxDuration = 60.0
)

// Vectorizer encodes feature dicts into a numeric matrix.
// *model.DictVectorizer satisfies it.
type Vectorizer interface {
	Transform(rows []map[string]any) (*mat.Dense, error)
}

// Predictor maps a feature matrix to one prediction per row.
// *model.LinearRegression satisfies it.
type Predictor interface {
	Predict(x *mat.Dense) ([]float64, error)
}

// Source yields one batch of trip records in their original order.
type Source interface {
	Load(ctx context.Context) ([]domain.TripRecord, error)
	Location() string
}

// Sink durably writes a complete result set, or nothing at all.
type Sink interface {
	Write(ctx context.Context, period domain.Period, results []domain.ScoredRecord) error
	Location() string
}

// Options controls the admissibility filter.
// FilterBeforeScoring=false scores every row unfiltered.
type Options struct {
	FilterBeforeScoring bool
	MinDuration         float64
	MaxDuration         float64
}

// DefaultOptions filters to [1, 60] minutes before scoring.
func DefaultOptions() Options {
	return Options{
		FilterBeforeScoring: true,
		MinDuration:         DefaultMinDuration,
		MaxDuration:         DefaultMaxDuration,
	}
}

// Summary reports row counts for one pipeline run.
type Summary struct {
	Read     int
	Filtered int
	Scored   int
}

// BatchScorer runs load → filter → assign ids → featurize → predict → write
// over one batch. The vectorizer and predictor are injected once and only read.
type BatchScorer struct {
	vec   Vectorizer
	model Predictor
	opts  Options
}

// NewBatchScorer constructs a BatchScorer around a fitted vectorizer and model.
func NewBatchScorer(vec Vectorizer, model Predictor, opts Options) *BatchScorer {
	return &BatchScorer{vec: vec, model: model, opts: opts}
}

// Options returns the scorer's filter configuration.
func (s *BatchScorer) Options() Options {
	return s.opts
}

// Run scores the batch from src for period and writes it to sink.
// Any failure aborts the batch before anything is written.
func (s *BatchScorer) Run(ctx context.Context, src Source, sink Sink, period domain.Period) (Summary, error) {
	var sum Summary
	if err := period.Validate(); err != nil {
		return sum, fmt.Errorf("service.BatchScorer.Run: %w", err)
	}

	records, err := src.Load(ctx)
	if err != nil {
		return sum, fmt.Errorf("service.BatchScorer.Run: load %s: %w", src.Location(), err)
	}
	sum.Read = len(records)

	results, err := s.ScoreBatch(ctx, records, period)
	if err != nil {
		return sum, fmt.Errorf("service.BatchScorer.Run: %w", err)
	}
	sum.Filtered = sum.Read - len(results)
	sum.Scored = len(results)

	if err := ctx.Err(); err != nil {
		return sum, fmt.Errorf("service.BatchScorer.Run: %w", err)
	}
	if err := sink.Write(ctx, period, results); err != nil {
		return sum, fmt.Errorf("service.BatchScorer.Run: write %s: %w", sink.Location(), err)
	}
	return sum, nil
}

// ScoreBatch applies every in-memory stage to records: optional filter,
// ride-id assignment, featurize, predict, pairing. It performs no I/O.
func (s *BatchScorer) ScoreBatch(ctx context.Context, records []domain.TripRecord, period domain.Period) ([]domain.ScoredRecord, error) {
	if s.opts.FilterBeforeScoring {
		records = FilterAdmissible(records, s.opts.MinDuration, s.opts.MaxDuration)
	}
	keyed := AssignRideIDs(records, period)

	preds, err := s.Score(ctx, records)
	if err != nil {
		return nil, err
	}

	results := make([]domain.ScoredRecord, len(keyed))
	for i, k := range keyed {
		results[i] = domain.ScoredRecord{RideID: k.RideID, PredictedDuration: preds[i]}
	}
	return results, nil
}

// Score featurizes records and returns one prediction per record, in order.
// It applies no filter and assigns no ids, so it also serves single live rides
// whose dropoff is not known yet.
func (s *BatchScorer) Score(_ context.Context, records []domain.TripRecord) ([]float64, error) {
	if len(records) == 0 {
		return []float64{}, nil
	}
	x, err := Featurize(records, s.vec)
	if err != nil {
		return nil, err
	}
	preds, err := Predict(x, s.model)
	if err != nil {
		return nil, err
	}
	if len(preds) != len(records) {
		return nil, fmt.Errorf("%w: %d predictions for %d records", domain.ErrModelInvocation, len(preds), len(records))
	}
	return preds, nil
}

// ComputeDuration returns dropoff minus pickup in minutes.
// Negative and zero durations are returned as is; FilterAdmissible drops them.
func ComputeDuration(r domain.TripRecord) float64 {
	return r.DropoffAt.Sub(r.PickupAt).Minutes()
}

// FilterAdmissible keeps records whose duration lies in [low, high], in their
// original order.
func FilterAdmissible(records []domain.TripRecord, low, high float64) []domain.TripRecord {
	out := make([]domain.TripRecord, 0, len(records))
	for _, r := range records {
		d := ComputeDuration(r)
		if d >= low && d <= high {
			out = append(out, r)
		}
	}
	return out
}

// AssignRideIDs gives each record the id "{year}/{month}_{index}" where index
// is its zero-based position in records.
func AssignRideIDs(records []domain.TripRecord, period domain.Period) []domain.KeyedRecord {
	out := make([]domain.KeyedRecord, len(records))
	for i, r := range records {
		out[i] = domain.KeyedRecord{RideID: period.RideID(i), Record: r}
	}
	return out
}

// CompositeKey returns the "<PU>_<DO>" categorical key, with -1 for null ids.
func CompositeKey(r domain.TripRecord) string {
	return r.LocationKey()
}

// Feature names understood by the vectorizer.
const (
	FeatureLocationPair = "PU_DO"
	FeatureTripDistance = "trip_distance"
)

// FeatureDicts builds the per-record feature dicts handed to the vectorizer.
func FeatureDicts(records []domain.TripRecord) []map[string]any {
	rows := make([]map[string]any, len(records))
	for i, r := range records {
		row := map[string]any{FeatureLocationPair: CompositeKey(r)}
		if r.TripDistance != nil {
			row[FeatureTripDistance] = *r.TripDistance
		}
		rows[i] = row
	}
	return rows
}

// Featurize encodes records with vec. Vectorizer errors, including
// domain.ErrUnknownCategory, are returned unchanged.
func Featurize(records []domain.TripRecord, vec Vectorizer) (*mat.Dense, error) {
	return vec.Transform(FeatureDicts(records))
}

// Predict invokes model on x. Failures always match domain.ErrModelInvocation.
func Predict(x *mat.Dense, model Predictor) ([]float64, error) {
	preds, err := model.Predict(x)
	if err != nil {
		if errors.Is(err, domain.ErrModelInvocation) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrModelInvocation, err)
	}
	return preds, nil
}
