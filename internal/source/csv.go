package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkordes/ride-duration/internal/domain"
)

// timestampLayouts are tried in order; naive timestamps are read as UTC.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
}

// readCSV decodes a headered CSV file. Only the timestamp columns are
// required; absent location or distance columns read as null.
func readCSV(r io.Reader, cols columns) ([]domain.TripRecord, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: csv has no header", domain.ErrSchemaMismatch)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: csv header: %w", domain.ErrSchemaMismatch, err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}
	col := func(name string) int {
		if i, ok := index[name]; ok && name != "" {
			return i
		}
		return -1
	}
	pickup, dropoff := col(cols.pickup), col(cols.dropoff)
	if pickup < 0 {
		return nil, fmt.Errorf("%w: column %q not found", domain.ErrSchemaMismatch, cols.pickup)
	}
	if dropoff < 0 {
		return nil, fmt.Errorf("%w: column %q not found", domain.ErrSchemaMismatch, cols.dropoff)
	}
	pu, do, dist := col(cols.puLocation), col(cols.doLocation), col(cols.distance)

	records := []domain.TripRecord{}
	for row := 0; ; row++ {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: csv row %d: %w", domain.ErrSchemaMismatch, row, err)
		}

		var rec domain.TripRecord
		if rec.PickupAt, err = parseTimestamp(field(fields, pickup)); err != nil {
			return nil, fmt.Errorf("%w: row %d %s: %w", domain.ErrSchemaMismatch, row, cols.pickup, err)
		}
		if rec.DropoffAt, err = parseTimestamp(field(fields, dropoff)); err != nil {
			return nil, fmt.Errorf("%w: row %d %s: %w", domain.ErrSchemaMismatch, row, cols.dropoff, err)
		}
		if rec.PickupLocationID, err = parseID(field(fields, pu)); err != nil {
			return nil, fmt.Errorf("%w: row %d %s: %w", domain.ErrSchemaMismatch, row, cols.puLocation, err)
		}
		if rec.DropoffLocationID, err = parseID(field(fields, do)); err != nil {
			return nil, fmt.Errorf("%w: row %d %s: %w", domain.ErrSchemaMismatch, row, cols.doLocation, err)
		}
		if rec.TripDistance, err = parseFloat(field(fields, dist)); err != nil {
			return nil, fmt.Errorf("%w: row %d %s: %w", domain.ErrSchemaMismatch, row, cols.distance, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func field(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// parseID accepts "132" and "132.0"; empty means null.
func parseID(s string) (*int64, error) {
	v, err := parseFloat(s)
	if err != nil || v == nil {
		return nil, err
	}
	if *v != math.Trunc(*v) {
		return nil, fmt.Errorf("location id %q is not integral", s)
	}
	id := int64(*v)
	return &id, nil
}

func parseFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(v) {
		return nil, nil
	}
	if math.IsInf(v, 0) {
		return nil, fmt.Errorf("non-finite value %q", s)
	}
	return &v, nil
}
