// Package forecast implements the staffing demand forecasting core:
// model training, prediction with uncertainty intervals, manager
// overrides, and the serving orchestration that merges them.
package forecast

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire format for forecast days.
const DateLayout = "2006-01-02"

// SeriesKey identifies one demand series.
type SeriesKey struct {
	PropertyID int64
	Role       string
}

func (k SeriesKey) String() string {
	return fmt.Sprintf("property=%d role=%s", k.PropertyID, k.Role)
}

// Day normalizes a timestamp to a UTC calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string into a UTC day.
func ParseDay(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// DaysBetween returns the whole-day distance from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)) / (24 * time.Hour))
}

// Observation is one day of recorded true demand for a series.
// Immutable history; the only model training input.
type Observation struct {
	Key        SeriesKey
	Day        time.Time
	Demand     float64
	RecordedAt time.Time
}

// SeriesInfo summarizes one known series, as returned by the history
// store for retrain scheduling.
type SeriesInfo struct {
	Key    SeriesKey
	Points int
	First  time.Time
	Last   time.Time
}

// Point is a single forecast day. Ephemeral, derived on demand.
type Point struct {
	Day        time.Time
	Predicted  float64
	Lower      float64
	Upper      float64
	IsOverride bool
}

// Override is a manager-supplied replacement for one forecast day.
type Override struct {
	ID     int64
	Key    SeriesKey
	Day    time.Time
	Value  float64
	Reason string
	SetBy  string
	SetAt  time.Time
}

// ModelRecord is the persisted form of a trained model. Exactly one
// record is active per series at any time.
type ModelRecord struct {
	ID        uuid.UUID
	Key       SeriesKey
	Kind      string
	Version   string
	Params    json.RawMessage
	TrainedAt time.Time
	IsActive  bool
}

// PredictionBatch is a set of served or retrain-time predictions
// logged for audit and the admin listings.
type PredictionBatch struct {
	ID        uuid.UUID
	ModelID   uuid.UUID
	Key       SeriesKey
	Points    []Point
	CreatedAt time.Time
}

// PredictionRecord is one logged prediction row.
type PredictionRecord struct {
	BatchID   uuid.UUID
	ModelID   uuid.UUID
	Key       SeriesKey
	Day       time.Time
	Predicted float64
	Lower     float64
	Upper     float64
	CreatedAt time.Time
}
