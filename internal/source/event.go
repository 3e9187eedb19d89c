package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/pkordes/ride-duration/internal/domain"
)

// Event is a pushed batch of rides, as carried by a stream message or an
// HTTP request body. Year and Month are optional.
type Event struct {
	Year  int
	Month int
	Rides []domain.TripRecord
}

// eventRide is a ride on the wire. Timestamps are strings so they go through
// the same layouts as CSV input; naive timestamps are UTC.
type eventRide struct {
	PULocationID *int64   `json:"PULocationID"`
	DOLocationID *int64   `json:"DOLocationID"`
	Pickup       string   `json:"pickup_datetime"`
	Dropoff      string   `json:"dropoff_datetime"`
	TripDistance *float64 `json:"trip_distance"`
}

type eventWire struct {
	Year  int         `json:"year,omitempty"`
	Month int         `json:"month,omitempty"`
	Rides []eventRide `json:"rides"`
}

// DecodeEvent parses a JSON event. Unknown fields are rejected. A malformed
// timestamp is a schema mismatch; a missing one is left zero for Load to report.
func DecodeEvent(data []byte) (Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var w eventWire
	if err := dec.Decode(&w); err != nil {
		return Event{}, fmt.Errorf("source.DecodeEvent: %w: %w", domain.ErrValidation, err)
	}

	e := Event{Year: w.Year, Month: w.Month, Rides: make([]domain.TripRecord, len(w.Rides))}
	for i, r := range w.Rides {
		rec := domain.TripRecord{
			PickupLocationID:  r.PULocationID,
			DropoffLocationID: r.DOLocationID,
			TripDistance:      r.TripDistance,
		}
		var err error
		if rec.PickupAt, err = eventTimestamp(r.Pickup); err != nil {
			return Event{}, fmt.Errorf("source.DecodeEvent: %w: ride %d pickup_datetime: %w", domain.ErrSchemaMismatch, i, err)
		}
		if rec.DropoffAt, err = eventTimestamp(r.Dropoff); err != nil {
			return Event{}, fmt.Errorf("source.DecodeEvent: %w: ride %d dropoff_datetime: %w", domain.ErrSchemaMismatch, i, err)
		}
		e.Rides[i] = rec
	}
	return e, nil
}

func eventTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	return parseTimestamp(s)
}

// Period returns the event's explicit period, or else the month of the
// first ride's pickup.
func (e Event) Period() (domain.Period, error) {
	if e.Year != 0 || e.Month != 0 {
		p := domain.Period{Year: e.Year, Month: e.Month}
		if err := p.Validate(); err != nil {
			return domain.Period{}, err
		}
		return p, nil
	}
	for _, r := range e.Rides {
		if !r.PickupAt.IsZero() {
			return domain.PeriodOf(r.PickupAt), nil
		}
	}
	return domain.Period{}, fmt.Errorf("%w: event has no period and no pickup time", domain.ErrValidation)
}

// Events serves rides already held in memory.
type Events struct {
	location string
	rides    []domain.TripRecord
}

// NewEvents wraps rides. location names where they came from, e.g. an MQTT
// topic, and is only used for logging.
func NewEvents(location string, rides []domain.TripRecord) *Events {
	return &Events{location: location, rides: rides}
}

// Location returns the origin label.
func (e *Events) Location() string { return e.location }

// Load validates that every ride carries both timestamps and returns a copy.
func (e *Events) Load(_ context.Context) ([]domain.TripRecord, error) {
	for i, r := range e.rides {
		if r.PickupAt.IsZero() {
			return nil, fmt.Errorf("source.Events.Load: %w", missingTimestamp(i, "pickup_datetime"))
		}
		if r.DropoffAt.IsZero() {
			return nil, fmt.Errorf("source.Events.Load: %w", missingTimestamp(i, "dropoff_datetime"))
		}
	}
	out := slices.Clone(e.rides)
	if out == nil {
		out = []domain.TripRecord{}
	}
	return out, nil
}
