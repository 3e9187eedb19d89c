package domain

import (
	"fmt"
	"strings"
	"time"
)

// Period is the (year, month) partition a batch belongs to.
// Ride ids and output locations are both derived from it.
type Period struct {
	Year  int
	Month int
}

// ParsePeriod parses a "2006-01" formatted string.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return Period{}, fmt.Errorf("%w: period %q must be YYYY-MM", ErrValidation, s)
	}
	return Period{Year: t.Year(), Month: int(t.Month())}, nil
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

// Validate rejects months outside 1..12 and years outside 1..9999.
func (p Period) Validate() error {
	if p.Year < 1 || p.Year > 9999 {
		return fmt.Errorf("%w: year %d out of range", ErrValidation, p.Year)
	}
	if p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("%w: month %d out of range", ErrValidation, p.Month)
	}
	return nil
}

// Next returns the following month.
func (p Period) Next() Period {
	if p.Month == 12 {
		return Period{Year: p.Year + 1, Month: 1}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// Before reports whether p is strictly earlier than o.
func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

// String formats the period as "2006-01".
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// RideID returns the id of the record at index within a batch of this period,
// e.g. "2021/01_0". It is unique within one batch only.
func (p Period) RideID(index int) string {
	return fmt.Sprintf("%04d/%02d_%d", p.Year, p.Month, index)
}

// Expand substitutes {year} (4 digits) and {month} (2 digits) in pattern.
func (p Period) Expand(pattern string) string {
	r := strings.NewReplacer(
		"{year}", fmt.Sprintf("%04d", p.Year),
		"{month}", fmt.Sprintf("%02d", p.Month),
	)
	return r.Replace(pattern)
}
