package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/pkordes/ride-duration/internal/domain"
	"github.com/pkordes/ride-duration/internal/model"
	"github.com/pkordes/ride-duration/internal/service"
)

// ---- test doubles ----------------------------------------------------------

// mockVectorizer is a hand-written test double for service.Vectorizer.
type mockVectorizer struct {
	transform func(rows []map[string]any) (*mat.Dense, error)
}

func (m *mockVectorizer) Transform(rows []map[string]any) (*mat.Dense, error) {
	return m.transform(rows)
}

// mockPredictor is a hand-written test double for service.Predictor.
type mockPredictor struct {
	predict func(x *mat.Dense) ([]float64, error)
}

func (m *mockPredictor) Predict(x *mat.Dense) ([]float64, error) {
	return m.predict(x)
}

// memSource serves a fixed batch, or err.
type memSource struct {
	records []domain.TripRecord
	err     error
}

func (s *memSource) Load(_ context.Context) ([]domain.TripRecord, error) {
	return s.records, s.err
}
func (s *memSource) Location() string { return "memory" }

// memSink records what was written and can be told to fail.
type memSink struct {
	writes  int
	period  domain.Period
	results []domain.ScoredRecord
	err     error
}

func (s *memSink) Write(_ context.Context, period domain.Period, results []domain.ScoredRecord) error {
	if s.err != nil {
		return s.err
	}
	s.writes++
	s.period = period
	s.results = results
	return nil
}
func (s *memSink) Location() string { return "memory" }

var (
	_ service.Vectorizer = (*mockVectorizer)(nil)
	_ service.Predictor  = (*mockPredictor)(nil)
	_ service.Source     = (*memSource)(nil)
	_ service.Sink       = (*memSink)(nil)
)

// ---- helpers ---------------------------------------------------------------

var t0 = time.Date(2021, 1, 1, 1, 2, 0, 0, time.UTC)

func loc(id int64) *int64 { return &id }

func tripLasting(d time.Duration) domain.TripRecord {
	return domain.TripRecord{
		PickupLocationID:  loc(1),
		DropoffLocationID: loc(1),
		PickupAt:          t0,
		DropoffAt:         t0.Add(d),
	}
}

// fhvModel is a real fitted artifact: 10 minutes base, +5 for the 1_1 pair,
// +2 per mile.
func fhvModel(t *testing.T, strict bool) *model.Model {
	t.Helper()
	m, err := model.FromArtifact(model.Artifact{
		Name:         "fhv-duration",
		Version:      "test",
		Features:     []string{"PU_DO=1_1", "PU_DO=2_3", "trip_distance"},
		Intercept:    10,
		Coefficients: []float64{5, 1, 2},
	}, strict)
	require.NoError(t, err)
	return m
}

func newScorer(t *testing.T, opts service.Options) *service.BatchScorer {
	m := fhvModel(t, false)
	return service.NewBatchScorer(m.Vectorizer, m.Regression, opts)
}

// ---- ComputeDuration -------------------------------------------------------

func TestComputeDuration(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want float64
	}{
		{"eight minutes", 8 * time.Minute, 8},
		{"fifty seconds", 50 * time.Second, 50.0 / 60.0},
		{"zero", 0, 0},
		{"negative", -3 * time.Minute, -3},
		{"long", 90*time.Minute + 30*time.Second, 90.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, service.ComputeDuration(tripLasting(tt.d)), 1e-9)
		})
	}
}

// ---- FilterAdmissible ------------------------------------------------------

func TestFilterAdmissible_Boundaries(t *testing.T) {
	minute := float64(time.Minute)
	tests := []struct {
		name string
		d    time.Duration
		keep bool
	}{
		{"exactly low", time.Minute, true},
		{"exactly high", 60 * time.Minute, true},
		{"just below low", time.Duration(0.999999 * minute), false},
		{"just above high", time.Duration(60.000001 * minute), false},
		{"zero", 0, false},
		{"negative", -5 * time.Minute, false},
		{"middle", 30 * time.Minute, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := service.FilterAdmissible([]domain.TripRecord{tripLasting(tt.d)}, 1, 60)
			if tt.keep {
				assert.Len(t, got, 1)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestFilterAdmissible_PreservesOrder(t *testing.T) {
	in := []domain.TripRecord{
		tripLasting(5 * time.Minute),
		tripLasting(0),
		tripLasting(20 * time.Minute),
		tripLasting(2 * time.Hour),
		tripLasting(5 * time.Minute),
	}

	got := service.FilterAdmissible(in, 1, 60)

	require.Len(t, got, 3)
	assert.Equal(t, in[0], got[0])
	assert.Equal(t, in[2], got[1])
	assert.Equal(t, in[4], got[2])
}

func TestFilterAdmissible_CustomBounds(t *testing.T) {
	in := []domain.TripRecord{tripLasting(2 * time.Minute), tripLasting(10 * time.Minute)}

	got := service.FilterAdmissible(in, 5, 15)

	require.Len(t, got, 1)
	assert.Equal(t, in[1], got[0])
}

// ---- AssignRideIDs ---------------------------------------------------------

func TestAssignRideIDs_Deterministic(t *testing.T) {
	in := []domain.TripRecord{tripLasting(time.Minute), tripLasting(2 * time.Minute), tripLasting(3 * time.Minute)}
	p := domain.Period{Year: 2021, Month: 2}

	first := service.AssignRideIDs(in, p)
	second := service.AssignRideIDs(in, p)

	assert.Equal(t, first, second)
	assert.Equal(t, "2021/02_0", first[0].RideID)
	assert.Equal(t, "2021/02_2", first[2].RideID)
	assert.Equal(t, in[1], first[1].Record)
}

func TestAssignRideIDs_Unique(t *testing.T) {
	in := make([]domain.TripRecord, 1000)
	for i := range in {
		in[i] = tripLasting(time.Duration(i) * time.Second)
	}

	got := service.AssignRideIDs(in, domain.Period{Year: 2022, Month: 11})

	seen := make(map[string]struct{}, len(got))
	for _, k := range got {
		_, dup := seen[k.RideID]
		require.False(t, dup, "duplicate ride id %s", k.RideID)
		seen[k.RideID] = struct{}{}
	}
	assert.Len(t, seen, len(in))
}

// ---- Featurize -------------------------------------------------------------

func TestFeatureDicts_NullLocationsUseSentinel(t *testing.T) {
	r := domain.TripRecord{PickupAt: t0, DropoffAt: t0.Add(time.Minute)}

	rows := service.FeatureDicts([]domain.TripRecord{r})

	require.Len(t, rows, 1)
	assert.Equal(t, "-1_-1", rows[0][service.FeatureLocationPair])
	assert.Equal(t, "-1_-1", service.CompositeKey(r))
	_, hasDistance := rows[0][service.FeatureTripDistance]
	assert.False(t, hasDistance)
}

func TestFeatureDicts_PassesTripDistance(t *testing.T) {
	dist := 3.5
	r := tripLasting(time.Minute)
	r.TripDistance = &dist

	rows := service.FeatureDicts([]domain.TripRecord{r})

	assert.Equal(t, 3.5, rows[0][service.FeatureTripDistance])
}

func TestFeaturize_UnknownCategoryPropagates(t *testing.T) {
	m := fhvModel(t, true)
	r := tripLasting(5 * time.Minute)
	r.PickupLocationID = loc(99)

	_, err := service.Featurize([]domain.TripRecord{r}, m.Vectorizer)

	assert.ErrorIs(t, err, domain.ErrUnknownCategory)
}

// ---- Predict ---------------------------------------------------------------

func TestPredict_WrapsModelErrors(t *testing.T) {
	boom := errors.New("boom")
	p := &mockPredictor{predict: func(*mat.Dense) ([]float64, error) { return nil, boom }}

	_, err := service.Predict(mat.NewDense(1, 1, nil), p)

	assert.ErrorIs(t, err, domain.ErrModelInvocation)
	assert.ErrorIs(t, err, boom, "original error must stay reachable")
}

// ---- Run -------------------------------------------------------------------

func TestBatchScorer_Run_EndToEnd(t *testing.T) {
	a := domain.TripRecord{
		PickupLocationID:  loc(1),
		DropoffLocationID: loc(1),
		PickupAt:          time.Date(2021, 1, 1, 1, 2, 0, 0, time.UTC),
		DropoffAt:         time.Date(2021, 1, 1, 1, 10, 0, 0, time.UTC),
	}
	b := domain.TripRecord{
		PickupLocationID:  loc(1),
		DropoffLocationID: loc(1),
		PickupAt:          time.Date(2021, 1, 1, 1, 2, 0, 0, time.UTC),
		DropoffAt:         time.Date(2021, 1, 1, 1, 2, 50, 0, time.UTC),
	}
	assert.InDelta(t, 8.0, service.ComputeDuration(a), 1e-9)
	assert.Equal(t, "1_1", service.CompositeKey(a))

	sink := &memSink{}
	scorer := newScorer(t, service.DefaultOptions())

	sum, err := scorer.Run(context.Background(), &memSource{records: []domain.TripRecord{a, b}}, sink, domain.Period{Year: 2021, Month: 1})

	require.NoError(t, err)
	assert.Equal(t, service.Summary{Read: 2, Filtered: 1, Scored: 1}, sum)
	require.Equal(t, 1, sink.writes)
	assert.Equal(t, domain.Period{Year: 2021, Month: 1}, sink.period)
	require.Len(t, sink.results, 1)
	assert.Equal(t, "2021/01_0", sink.results[0].RideID)
	assert.InDelta(t, 15.0, sink.results[0].PredictedDuration, 1e-9)
}

func TestBatchScorer_Run_FilterDisabledScoresEveryRow(t *testing.T) {
	sink := &memSink{}
	opts := service.DefaultOptions()
	opts.FilterBeforeScoring = false
	scorer := newScorer(t, opts)

	in := []domain.TripRecord{tripLasting(-time.Minute), tripLasting(3 * time.Hour), tripLasting(5 * time.Minute)}
	sum, err := scorer.Run(context.Background(), &memSource{records: in}, sink, domain.Period{Year: 2021, Month: 1})

	require.NoError(t, err)
	assert.Equal(t, 3, sum.Scored)
	assert.Equal(t, 0, sum.Filtered)
	require.Len(t, sink.results, 3)
	assert.Equal(t, "2021/01_2", sink.results[2].RideID)
}

func TestBatchScorer_Run_IDsFollowFilteredOrder(t *testing.T) {
	sink := &memSink{}
	scorer := newScorer(t, service.DefaultOptions())
	in := []domain.TripRecord{tripLasting(0), tripLasting(5 * time.Minute), tripLasting(0), tripLasting(7 * time.Minute)}

	_, err := scorer.Run(context.Background(), &memSource{records: in}, sink, domain.Period{Year: 2021, Month: 1})

	require.NoError(t, err)
	require.Len(t, sink.results, 2)
	assert.Equal(t, "2021/01_0", sink.results[0].RideID)
	assert.Equal(t, "2021/01_1", sink.results[1].RideID)
}

func TestBatchScorer_Run_EmptyBatchStillPublishes(t *testing.T) {
	sink := &memSink{}
	called := false
	scorer := service.NewBatchScorer(
		&mockVectorizer{transform: func([]map[string]any) (*mat.Dense, error) { called = true; return nil, nil }},
		&mockPredictor{predict: func(*mat.Dense) ([]float64, error) { called = true; return nil, nil }},
		service.DefaultOptions(),
	)

	sum, err := scorer.Run(context.Background(), &memSource{records: []domain.TripRecord{tripLasting(0)}}, sink, domain.Period{Year: 2021, Month: 1})

	require.NoError(t, err)
	assert.False(t, called, "model must not be invoked for an empty batch")
	assert.Equal(t, 1, sink.writes)
	assert.Empty(t, sink.results)
	assert.Equal(t, 1, sum.Filtered)
}

func TestBatchScorer_Run_Errors(t *testing.T) {
	okVec := &mockVectorizer{transform: func(rows []map[string]any) (*mat.Dense, error) {
		return mat.NewDense(len(rows), 1, nil), nil
	}}
	okModel := &mockPredictor{predict: func(x *mat.Dense) ([]float64, error) {
		r, _ := x.Dims()
		return make([]float64, r), nil
	}}
	batch := []domain.TripRecord{tripLasting(5 * time.Minute)}

	tests := []struct {
		name    string
		src     *memSource
		vec     service.Vectorizer
		model   service.Predictor
		sinkErr error
		want    error
	}{
		{
			name: "source unavailable",
			src:  &memSource{err: fmt.Errorf("open: %w", domain.ErrSourceUnavailable)},
			vec:  okVec, model: okModel,
			want: domain.ErrSourceUnavailable,
		},
		{
			name: "schema mismatch",
			src:  &memSource{err: fmt.Errorf("%w: no pickup column", domain.ErrSchemaMismatch)},
			vec:  okVec, model: okModel,
			want: domain.ErrSchemaMismatch,
		},
		{
			name: "unknown category",
			src:  &memSource{records: batch},
			vec: &mockVectorizer{transform: func([]map[string]any) (*mat.Dense, error) {
				return nil, domain.ErrUnknownCategory
			}},
			model: okModel,
			want:  domain.ErrUnknownCategory,
		},
		{
			name: "model failure",
			src:  &memSource{records: batch},
			vec:  okVec,
			model: &mockPredictor{predict: func(*mat.Dense) ([]float64, error) {
				return nil, errors.New("singular matrix")
			}},
			want: domain.ErrModelInvocation,
		},
		{
			name: "model returns wrong count",
			src:  &memSource{records: batch},
			vec:  okVec,
			model: &mockPredictor{predict: func(*mat.Dense) ([]float64, error) {
				return []float64{1, 2}, nil
			}},
			want: domain.ErrModelInvocation,
		},
		{
			name:    "sink failure",
			src:     &memSource{records: batch},
			vec:     okVec,
			model:   okModel,
			sinkErr: fmt.Errorf("%w: disk full", domain.ErrSinkWrite),
			want:    domain.ErrSinkWrite,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &memSink{err: tt.sinkErr}
			scorer := service.NewBatchScorer(tt.vec, tt.model, service.DefaultOptions())

			_, err := scorer.Run(context.Background(), tt.src, sink, domain.Period{Year: 2021, Month: 1})

			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, sink.writes, "nothing may be written on failure")
		})
	}
}

func TestBatchScorer_Run_InvalidPeriod(t *testing.T) {
	sink := &memSink{}
	scorer := newScorer(t, service.DefaultOptions())

	_, err := scorer.Run(context.Background(), &memSource{}, sink, domain.Period{Year: 2021, Month: 13})

	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, sink.writes)
}

func TestBatchScorer_Run_CancelledBeforeWrite(t *testing.T) {
	sink := &memSink{}
	scorer := newScorer(t, service.DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := scorer.Run(ctx, &memSource{records: []domain.TripRecord{tripLasting(5 * time.Minute)}}, sink, domain.Period{Year: 2021, Month: 1})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sink.writes)
}

func TestBatchScorer_Score_NoFilterNoIDs(t *testing.T) {
	scorer := newScorer(t, service.DefaultOptions())
	dist := 4.0
	live := domain.TripRecord{PickupLocationID: loc(2), DropoffLocationID: loc(3), TripDistance: &dist}

	got, err := scorer.Score(context.Background(), []domain.TripRecord{live})

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 10+1+8, got[0], 1e-9)
}
