package forecast

import (
	"encoding/json"
	"time"

	"gonum.org/v1/gonum/stat"

	"staffcast/pkg/interval"
)

// baselineParams hold the naive fallback parameters: a flat level with
// a deliberately wide interval. Used whenever a series has history but
// no trained model (cold start, or the trainer has not run yet).
type baselineParams struct {
	Level  float64 `json:"level"`
	Sigma  float64 `json:"sigma"`
	Points int     `json:"points"`
}

// BaselineModel predicts the historical mean (or the last known value
// when the history is too short for a meaningful mean) with a wide
// interval. It is always constructible, even from a single point.
type BaselineModel struct {
	params baselineParams
}

// NewBaseline builds the fallback model from whatever history exists.
// history must be non-empty; callers with no history at all must 404
// instead of fabricating a forecast.
func NewBaseline(history []Observation) *BaselineModel {
	values := make([]float64, len(history))
	for i, obs := range history {
		values[i] = obs.Demand
	}

	var level, sigma float64
	if len(values) >= 3 {
		level = stat.Mean(values, nil)
		sigma = stat.StdDev(values, nil)
	} else {
		level = values[len(values)-1]
	}

	// Widen: short history means the spread estimate itself is weak.
	if wide := 0.25 * level; sigma < wide {
		sigma = wide
	}
	if sigma < 1.0 {
		sigma = 1.0
	}

	return &BaselineModel{params: baselineParams{
		Level:  interval.ClampNonNegative(level),
		Sigma:  sigma,
		Points: len(history),
	}}
}

func (m *BaselineModel) Kind() string { return KindBaselineMean }

func (m *BaselineModel) Params() (json.RawMessage, error) {
	return json.Marshal(m.params)
}

func (m *BaselineModel) Predict(start time.Time, horizonDays int) []Point {
	start = Day(start)
	points := make([]Point, 0, horizonDays)
	lowers := make([]float64, horizonDays)
	uppers := make([]float64, horizonDays)

	for i := 0; i < horizonDays; i++ {
		hw := interval.HalfWidth(m.params.Sigma, i)
		lowers[i], uppers[i] = interval.Bounds(m.params.Level, hw)
		points = append(points, Point{
			Day:       start.AddDate(0, 0, i),
			Predicted: m.params.Level,
		})
	}

	interval.EnsureWidening(lowers, uppers)
	for i := range points {
		points[i].Lower = lowers[i]
		points[i].Upper = uppers[i]
	}
	return points
}
