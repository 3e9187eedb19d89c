// Package domain contains the core data types for ride-duration scoring.
// This package depends only on the standard library and uuid, and is imported
// by every other internal package (model, service, source, sink, repo, handler).
package domain

import (
	"strconv"
	"time"
)

// MissingLocation is substituted for a null pickup or dropoff location id
// when the composite categorical key is built.
const MissingLocation = -1

// TripRecord is one observed trip as read from a batch source.
// Location ids are nil when the source row carries no value.
// TripDistance is passed through to the vectorizer when present and is not validated.
type TripRecord struct {
	PickupLocationID  *int64    `json:"PULocationID,omitempty"`
	DropoffLocationID *int64    `json:"DOLocationID,omitempty"`
	PickupAt          time.Time `json:"pickup_datetime"`
	DropoffAt         time.Time `json:"dropoff_datetime"`
	TripDistance      *float64  `json:"trip_distance,omitempty"`
}

// LocationKey returns the "<PU>_<DO>" composite key used as a single
// categorical feature. Null ids become MissingLocation.
func (r TripRecord) LocationKey() string {
	return locationString(r.PickupLocationID) + "_" + locationString(r.DropoffLocationID)
}

func locationString(id *int64) string {
	if id == nil {
		return strconv.Itoa(MissingLocation)
	}
	return strconv.FormatInt(*id, 10)
}

// KeyedRecord pairs a trip with the ride id assigned to it within its batch.
type KeyedRecord struct {
	RideID string
	Record TripRecord
}

// ScoredRecord is one prediction result. PredictedDuration is in minutes and
// is never clamped to the admissible window.
type ScoredRecord struct {
	RideID            string  `json:"ride_id" parquet:"ride_id"`
	PredictedDuration float64 `json:"predicted_duration" parquet:"predicted_duration"`
}
