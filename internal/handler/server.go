// Package handler implements the HTTP handlers for the ride-duration API.
// All handlers are methods on Server. They are split into files by resource
// (health.go, predict.go, runs.go, predictions.go) but share the same Server
// struct so they can access its dependencies.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pkordes/ride-duration/internal/domain"
	"github.com/pkordes/ride-duration/openapi"
)

// Scorer is the part of service.BatchScorer the prediction handlers use.
// Defining the interface here, in the consumer package, lets handler tests
// inject a mock without loading a model.
type Scorer interface {
	Score(ctx context.Context, records []domain.TripRecord) ([]float64, error)
	ScoreBatch(ctx context.Context, records []domain.TripRecord, period domain.Period) ([]domain.ScoredRecord, error)
}

// RunServicer defines the run-history operations the runs handler depends on.
type RunServicer interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.BatchRun, error)
	ListPaged(ctx context.Context, p domain.PaginationParams) ([]domain.BatchRun, int64, error)
}

// PredictionLister reads stored predictions back by period.
type PredictionLister interface {
	ListByPeriod(ctx context.Context, period domain.Period, p domain.PaginationParams) ([]domain.ScoredRecord, int64, error)
}

// Server holds the dependencies of every handler.
type Server struct {
	scorer       Scorer
	modelVersion string
	runs         RunServicer
	predictions  PredictionLister
	log          *slog.Logger
}

// NewServer constructs the Server. runs and predictions may be nil when no
// database is configured; their endpoints then report not_found.
func NewServer(scorer Scorer, modelVersion string, runs RunServicer, predictions PredictionLister, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		scorer:       scorer,
		modelVersion: modelVersion,
		runs:         runs,
		predictions:  predictions,
		log:          log,
	}
}

// NewHealthHandler returns a Server for health-check-only use.
func NewHealthHandler() *Server {
	return NewServer(nil, "", nil, nil, nil)
}

// Routes registers every endpoint on a new chi router. Cross-cutting
// middleware (request id, logging, CORS, body limits) is applied by the caller.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", s.GetHealth)
	r.Get("/openapi.yaml", serveOpenAPI)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/predict", s.Predict)
	r.Post("/predict/batch", s.PredictBatch)

	r.Get("/runs", s.ListRuns)
	r.Get("/runs/{id}", s.GetRun)

	r.Get("/predictions", s.ListPredictions)

	return r
}

func serveOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(openapi.Document)
}
