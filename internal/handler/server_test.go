package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/ride-duration/internal/domain"
	"github.com/pkordes/ride-duration/internal/handler"
)

// mockScorer is a test double for handler.Scorer.
// Set only the method fields your test needs.
type mockScorer struct {
	score      func(ctx context.Context, records []domain.TripRecord) ([]float64, error)
	scoreBatch func(ctx context.Context, records []domain.TripRecord, period domain.Period) ([]domain.ScoredRecord, error)
}

func (m *mockScorer) Score(ctx context.Context, records []domain.TripRecord) ([]float64, error) {
	return m.score(ctx, records)
}
func (m *mockScorer) ScoreBatch(ctx context.Context, records []domain.TripRecord, period domain.Period) ([]domain.ScoredRecord, error) {
	return m.scoreBatch(ctx, records, period)
}

// mockRunServicer is a test double for handler.RunServicer.
type mockRunServicer struct {
	getByID   func(ctx context.Context, id uuid.UUID) (domain.BatchRun, error)
	listPaged func(ctx context.Context, p domain.PaginationParams) ([]domain.BatchRun, int64, error)
}

func (m *mockRunServicer) GetByID(ctx context.Context, id uuid.UUID) (domain.BatchRun, error) {
	return m.getByID(ctx, id)
}
func (m *mockRunServicer) ListPaged(ctx context.Context, p domain.PaginationParams) ([]domain.BatchRun, int64, error) {
	return m.listPaged(ctx, p)
}

// mockPredictionLister is a test double for handler.PredictionLister.
type mockPredictionLister struct {
	listByPeriod func(ctx context.Context, period domain.Period, p domain.PaginationParams) ([]domain.ScoredRecord, int64, error)
}

func (m *mockPredictionLister) ListByPeriod(ctx context.Context, period domain.Period, p domain.PaginationParams) ([]domain.ScoredRecord, int64, error) {
	return m.listByPeriod(ctx, period, p)
}

// compile-time checks: the mocks must satisfy the handler interfaces.
var (
	_ handler.Scorer           = (*mockScorer)(nil)
	_ handler.RunServicer      = (*mockRunServicer)(nil)
	_ handler.PredictionLister = (*mockPredictionLister)(nil)
)

// ---- helpers ---------------------------------------------------------------

const testModelVersion = "lin-reg-test"

// newHTTPHandler builds the router the same way cmd/api does, minus middleware.
// Pass nil for a dependency the test does not exercise.
func newHTTPHandler(scorer handler.Scorer, runs handler.RunServicer, preds handler.PredictionLister) http.Handler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return handler.NewServer(scorer, testModelVersion, runs, preds, log).Routes()
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) handler.ErrorDetail {
	t.Helper()
	var resp handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}

// ---- GET /healthz ----------------------------------------------------------

func TestGetHealth_returns200WithOKStatus(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.NewHealthHandler().Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body handler.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "ok", body.Status)
}

// ---- GET /openapi.yaml -----------------------------------------------------

func TestOpenAPI_servesDocument(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil)
	rec := httptest.NewRecorder()

	handler.NewHealthHandler().Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "/predict/batch")
}

// ---- GET /metrics ----------------------------------------------------------

func TestMetrics_exposesCounters(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	handler.NewHealthHandler().Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ride_duration_http_predictions_total")
}
