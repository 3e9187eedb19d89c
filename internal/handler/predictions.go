package handler

import (
	"bytes"
	"encoding/csv"
	"errors"
	"net/http"
	"strconv"

	"github.com/oapi-codegen/runtime"

	"github.com/pkordes/ride-duration/internal/domain"
)

// PredictionList is the body of GET /predictions.
type PredictionList struct {
	Year       int                   `json:"year"`
	Month      int                   `json:"month"`
	Data       []domain.ScoredRecord `json:"data"`
	Pagination Pagination            `json:"pagination"`
}

// csvHeaders is the first row of a CSV prediction listing.
var csvHeaders = []string{"ride_id", "predicted_duration"}

// ListPredictions handles GET /predictions?year=&month=.
// Supports ?page= and ?limit= like GET /runs. Rows are ordered by ride index.
// Use ?format=csv to receive the page as CSV; default is JSON.
func (s *Server) ListPredictions(w http.ResponseWriter, r *http.Request) {
	var format *string
	if err := runtime.BindQueryParameter("form", true, false, "format", r.URL.Query(), &format); err != nil {
		badRequest(w, "invalid format: "+err.Error())
		return
	}
	wantCSV := format != nil && *format == "csv"
	if format != nil && !wantCSV && *format != "json" {
		badRequest(w, "format must be json or csv")
		return
	}

	var period domain.Period
	if err := runtime.BindQueryParameter("form", true, true, "year", r.URL.Query(), &period.Year); err != nil {
		badRequest(w, "invalid year: "+err.Error())
		return
	}
	if err := runtime.BindQueryParameter("form", true, true, "month", r.URL.Query(), &period.Month); err != nil {
		badRequest(w, "invalid month: "+err.Error())
		return
	}
	if err := period.Validate(); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	params, ok := bindPagination(w, r)
	if !ok {
		return
	}
	if s.predictions == nil {
		notFound(w, "stored predictions require a database")
		return
	}

	data, total, err := s.predictions.ListByPeriod(r.Context(), period, params)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if data == nil {
		data = []domain.ScoredRecord{}
	}
	if wantCSV {
		writeCSV(w, data)
		return
	}
	writeJSON(w, http.StatusOK, PredictionList{
		Year:  period.Year,
		Month: period.Month,
		Data:  data,
		Pagination: Pagination{
			Page:  params.Page,
			Limit: params.Limit,
			Total: int(total),
		},
	})
}

// writeCSV encodes rows with a header line. Durations use the shortest
// representation that round-trips.
func writeCSV(w http.ResponseWriter, rows []domain.ScoredRecord) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	_ = cw.Write(csvHeaders)
	for _, row := range rows {
		_ = cw.Write([]string{row.RideID, strconv.FormatFloat(row.PredictedDuration, 'g', -1, 64)})
	}
	cw.Flush()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
