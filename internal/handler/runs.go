package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/pkordes/ride-duration/internal/domain"
)

// Run is the JSON form of a domain.BatchRun.
type Run struct {
	ID            openapi_types.UUID `json:"id"`
	Year          int                `json:"year"`
	Month         int                `json:"month"`
	Source        string             `json:"source"`
	Sink          string             `json:"sink"`
	Status        string             `json:"status"`
	RecordsRead   int                `json:"records_read"`
	RecordsScored int                `json:"records_scored"`
	Error         string             `json:"error,omitempty"`
	StartedAt     time.Time          `json:"started_at"`
	FinishedAt    *time.Time         `json:"finished_at,omitempty"`
}

// RunList is the body of GET /runs.
type RunList struct {
	Data       []Run      `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// ListRuns handles GET /runs.
// Supports ?page= and ?limit= query parameters (defaults: page=1, limit=20, max=100).
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	params, ok := bindPagination(w, r)
	if !ok {
		return
	}
	if s.runs == nil {
		notFound(w, "run history requires a database")
		return
	}

	runs, total, err := s.runs.ListPaged(r.Context(), params)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	data := make([]Run, len(runs))
	for i, run := range runs {
		data[i] = runToResponse(run)
	}
	writeJSON(w, http.StatusOK, RunList{
		Data: data,
		Pagination: Pagination{
			Page:  params.Page,
			Limit: params.Limit,
			Total: int(total),
		},
	})
}

// GetRun handles GET /runs/{id}.
func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		badRequest(w, "invalid run id: "+err.Error())
		return
	}
	if s.runs == nil {
		notFound(w, "run not found")
		return
	}

	run, err := s.runs.GetByID(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			notFound(w, "run not found")
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runToResponse(run))
}

// bindPagination reads ?page= and ?limit=. On failure it writes a 422 and
// returns false.
func bindPagination(w http.ResponseWriter, r *http.Request) (domain.PaginationParams, bool) {
	var page, limit *int
	if err := runtime.BindQueryParameter("form", true, false, "page", r.URL.Query(), &page); err != nil {
		badRequest(w, "invalid page: "+err.Error())
		return domain.PaginationParams{}, false
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		badRequest(w, "invalid limit: "+err.Error())
		return domain.PaginationParams{}, false
	}
	return domain.NewPaginationParams(page, limit), true
}

func runToResponse(run domain.BatchRun) Run {
	return Run{
		ID:            run.ID,
		Year:          run.Period.Year,
		Month:         run.Period.Month,
		Source:        run.Source,
		Sink:          run.Sink,
		Status:        string(run.Status),
		RecordsRead:   run.RecordsRead,
		RecordsScored: run.RecordsScored,
		Error:         run.Error,
		StartedAt:     run.StartedAt,
		FinishedAt:    run.FinishedAt,
	}
}
