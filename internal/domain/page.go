package domain

// Page size bounds shared by GET /runs and GET /predictions.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// PaginationParams selects one page of a listing. Page is 1-indexed.
type PaginationParams struct {
	Page  int
	Limit int
}

// NewPaginationParams resolves optional query values. Missing or
// non-positive values fall back to page 1 and DefaultPageLimit; larger limits
// are clamped to MaxPageLimit.
func NewPaginationParams(page, limit *int) PaginationParams {
	p := PaginationParams{Page: 1, Limit: DefaultPageLimit}
	if page != nil && *page > 0 {
		p.Page = *page
	}
	if limit != nil && *limit > 0 {
		p.Limit = min(*limit, MaxPageLimit)
	}
	return p
}

// Offset is the number of rows to skip before the page starts.
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.Limit
}
