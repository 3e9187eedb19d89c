package source

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/pkordes/ride-duration/internal/domain"
)

// fhvRow is the subset of a for-hire-vehicle trip file we read.
// Location ids are stored as doubles in the published files.
type fhvRow struct {
	PickupAt   *time.Time `parquet:"pickup_datetime,optional"`
	DropoffAt  *time.Time `parquet:"dropOff_datetime,optional"`
	PULocation *float64   `parquet:"PUlocationID,optional"`
	DOLocation *float64   `parquet:"DOlocationID,optional"`
}

func (r fhvRow) toRecord(i int) (domain.TripRecord, error) {
	if r.PickupAt == nil {
		return domain.TripRecord{}, missingTimestamp(i, "pickup_datetime")
	}
	if r.DropoffAt == nil {
		return domain.TripRecord{}, missingTimestamp(i, "dropOff_datetime")
	}
	pu, err := floatID(r.PULocation)
	if err != nil {
		return domain.TripRecord{}, fmt.Errorf("%w: row %d PUlocationID: %w", domain.ErrSchemaMismatch, i, err)
	}
	do, err := floatID(r.DOLocation)
	if err != nil {
		return domain.TripRecord{}, fmt.Errorf("%w: row %d DOlocationID: %w", domain.ErrSchemaMismatch, i, err)
	}
	return domain.TripRecord{
		PickupLocationID:  pu,
		DropoffLocationID: do,
		PickupAt:          r.PickupAt.UTC(),
		DropoffAt:         r.DropoffAt.UTC(),
	}, nil
}

// yellowRow is the subset of a yellow-taxi trip file we read.
type yellowRow struct {
	PickupAt     *time.Time `parquet:"tpep_pickup_datetime,optional"`
	DropoffAt    *time.Time `parquet:"tpep_dropoff_datetime,optional"`
	PULocation   *int64     `parquet:"PULocationID,optional"`
	DOLocation   *int64     `parquet:"DOLocationID,optional"`
	TripDistance *float64   `parquet:"trip_distance,optional"`
}

func (r yellowRow) toRecord(i int) (domain.TripRecord, error) {
	if r.PickupAt == nil {
		return domain.TripRecord{}, missingTimestamp(i, "tpep_pickup_datetime")
	}
	if r.DropoffAt == nil {
		return domain.TripRecord{}, missingTimestamp(i, "tpep_dropoff_datetime")
	}
	if r.TripDistance != nil && math.IsInf(*r.TripDistance, 0) {
		return domain.TripRecord{}, fmt.Errorf("%w: row %d trip_distance is not finite", domain.ErrSchemaMismatch, i)
	}
	return domain.TripRecord{
		PickupLocationID:  r.PULocation,
		DropoffLocationID: r.DOLocation,
		PickupAt:          r.PickupAt.UTC(),
		DropoffAt:         r.DropoffAt.UTC(),
		TripDistance:      r.TripDistance,
	}, nil
}

type rowConverter interface {
	toRecord(i int) (domain.TripRecord, error)
}

// readParquet checks that the timestamp columns exist, then decodes every row
// into T. parquet-go converts compatible physical types (int64 ids into a
// double field, microsecond timestamps into time.Time).
func readParquet[T rowConverter](r io.ReaderAt, size int64, cols columns) ([]domain.TripRecord, error) {
	f, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: open parquet: %w", domain.ErrSourceUnavailable, err)
	}
	for _, name := range []string{cols.pickup, cols.dropoff} {
		if _, ok := f.Schema().Lookup(name); !ok {
			return nil, fmt.Errorf("%w: column %q not found", domain.ErrSchemaMismatch, name)
		}
	}

	rows, err := parquet.Read[T](r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: read parquet: %w", domain.ErrSchemaMismatch, err)
	}

	records := make([]domain.TripRecord, len(rows))
	for i, row := range rows {
		rec, err := row.toRecord(i)
		if err != nil {
			return nil, err
		}
		records[i] = rec
	}
	return records, nil
}

// floatID converts a double-encoded location id. NaN is how pandas wrote
// nulls into some monthly files.
func floatID(v *float64) (*int64, error) {
	if v == nil || math.IsNaN(*v) {
		return nil, nil
	}
	if math.IsInf(*v, 0) {
		return nil, fmt.Errorf("non-finite location id")
	}
	id := int64(*v)
	return &id, nil
}
