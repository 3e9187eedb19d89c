package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/oapi-codegen/runtime"

	"github.com/pkordes/ride-duration/internal/domain"
	"github.com/pkordes/ride-duration/internal/metrics"
	"github.com/pkordes/ride-duration/internal/source"
)

// RideRequest is the body of POST /predict: one ride that has not ended yet.
type RideRequest struct {
	PULocationID *int64   `json:"PULocationID"`
	DOLocationID *int64   `json:"DOLocationID"`
	TripDistance *float64 `json:"trip_distance"`
}

// PredictResponse is the body returned by POST /predict.
type PredictResponse struct {
	Duration     float64 `json:"duration"`
	ModelVersion string  `json:"model_version"`
}

// BatchResponse is the body returned by POST /predict/batch.
type BatchResponse struct {
	Year         int                   `json:"year"`
	Month        int                   `json:"month"`
	ModelVersion string                `json:"model_version"`
	Filtered     int                   `json:"filtered"`
	Predictions  []domain.ScoredRecord `json:"predictions"`
}

// Predict handles POST /predict.
// A live ride has no dropoff yet, so it is scored without the duration filter.
func (s *Server) Predict(w http.ResponseWriter, r *http.Request) {
	var req RideRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeBodyError(w, err)
		return
	}

	ride := domain.TripRecord{
		PickupLocationID:  req.PULocationID,
		DropoffLocationID: req.DOLocationID,
		TripDistance:      req.TripDistance,
	}
	preds, err := s.scorer.Score(r.Context(), []domain.TripRecord{ride})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	metrics.PredictionsServed.Inc()

	writeJSON(w, http.StatusOK, PredictResponse{Duration: preds[0], ModelVersion: s.modelVersion})
}

// PredictBatch handles POST /predict/batch.
// The body is a ride event ({"rides": [...]}); ?year= and ?month= override
// the event's period. The full pipeline runs and nothing is persisted.
func (s *Server) PredictBatch(w http.ResponseWriter, r *http.Request) {
	var year, month *int
	if err := runtime.BindQueryParameter("form", true, false, "year", r.URL.Query(), &year); err != nil {
		badRequest(w, "invalid year: "+err.Error())
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "month", r.URL.Query(), &month); err != nil {
		badRequest(w, "invalid month: "+err.Error())
		return
	}
	if (year == nil) != (month == nil) {
		badRequest(w, "year and month must be given together")
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeBodyError(w, err)
		return
	}
	event, err := source.DecodeEvent(data)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if year != nil {
		event.Year, event.Month = *year, *month
	}
	period, err := event.Period()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	records, err := source.NewEvents("http", event.Rides).Load(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	results, err := s.scorer.ScoreBatch(r.Context(), records, period)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	metrics.PredictionsServed.Add(float64(len(results)))

	writeJSON(w, http.StatusOK, BatchResponse{
		Year:         period.Year,
		Month:        period.Month,
		ModelVersion: s.modelVersion,
		Filtered:     len(records) - len(results),
		Predictions:  results,
	})
}

// writeBodyError reports an unreadable request body: 413 when it exceeded the
// size limit, 422 otherwise.
func writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large",
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return
	}
	badRequest(w, "invalid request body: "+err.Error())
}
