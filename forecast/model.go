package forecast

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"staffcast/pkg/domainerr"
	"staffcast/pkg/interval"
)

// MinTrainingDays is the policy minimum before a seasonal-trend model
// is trained. Below this, serving falls back to the baseline.
const MinTrainingDays = 14

// Model kinds as stored in the registry.
const (
	KindSeasonalTrend = "seasonal_trend"
	KindBaselineMean  = "baseline_mean"
)

// Model produces predictions for a date range. Implementations are
// immutable after construction; a retrain builds a new value rather
// than mutating one in place.
type Model interface {
	// Predict returns exactly horizonDays points starting at start,
	// one per day, date-ascending, with Lower <= Predicted <= Upper
	// and non-decreasing interval widths.
	Predict(start time.Time, horizonDays int) []Point

	// Kind identifies the technique for the registry.
	Kind() string

	// Params serializes the fitted parameters for persistence.
	Params() (json.RawMessage, error)
}

// seasonalTrendParams are the fitted parameters of the default model:
// a least-squares linear trend plus weekday offsets, with the residual
// standard deviation driving the prediction interval.
type seasonalTrendParams struct {
	Intercept float64    `json:"intercept"`
	Slope     float64    `json:"slope"`
	Weekday   [7]float64 `json:"weekday"`
	Sigma     float64    `json:"sigma"`
	Origin    string     `json:"origin"`
	Points    int        `json:"points"`
}

// SeasonalTrendModel is trained from at least MinTrainingDays of
// history and captures weekly seasonality around a linear trend.
type SeasonalTrendModel struct {
	params seasonalTrendParams
	origin time.Time
}

// Train fits a SeasonalTrendModel from an observation sequence.
// Returns InsufficientHistory when fewer than MinTrainingDays points
// are available.
func Train(key SeriesKey, history []Observation) (*SeasonalTrendModel, error) {
	if len(history) < MinTrainingDays {
		return nil, domainerr.NewInsufficientHistory(len(history), MinTrainingDays)
	}

	origin := Day(history[0].Day)
	xs := make([]float64, len(history))
	ys := make([]float64, len(history))
	for i, obs := range history {
		xs[i] = float64(DaysBetween(origin, obs.Day))
		ys[i] = obs.Demand
	}

	intercept, slope := stat.LinearRegression(xs, ys, nil, false)

	// Weekday offsets from the detrended series.
	var sums, counts [7]float64
	for i, obs := range history {
		wd := int(Day(obs.Day).Weekday())
		sums[wd] += ys[i] - (intercept + slope*xs[i])
		counts[wd]++
	}
	var weekday [7]float64
	for wd := range weekday {
		if counts[wd] > 0 {
			weekday[wd] = sums[wd] / counts[wd]
		}
	}

	// Residual stddev of the full fit drives the interval width.
	residuals := make([]float64, len(history))
	for i, obs := range history {
		wd := int(Day(obs.Day).Weekday())
		residuals[i] = ys[i] - (intercept + slope*xs[i] + weekday[wd])
	}
	sigma := stat.StdDev(residuals, nil)
	if floor := minimumSigma(stat.Mean(ys, nil)); sigma < floor {
		sigma = floor
	}

	return &SeasonalTrendModel{
		params: seasonalTrendParams{
			Intercept: intercept,
			Slope:     slope,
			Weekday:   weekday,
			Sigma:     sigma,
			Origin:    origin.Format(DateLayout),
			Points:    len(history),
		},
		origin: origin,
	}, nil
}

func (m *SeasonalTrendModel) Kind() string { return KindSeasonalTrend }

func (m *SeasonalTrendModel) Params() (json.RawMessage, error) {
	return json.Marshal(m.params)
}

func (m *SeasonalTrendModel) Predict(start time.Time, horizonDays int) []Point {
	start = Day(start)
	points := make([]Point, 0, horizonDays)
	lowers := make([]float64, horizonDays)
	uppers := make([]float64, horizonDays)

	for i := 0; i < horizonDays; i++ {
		day := start.AddDate(0, 0, i)
		t := float64(DaysBetween(m.origin, day))
		central := m.params.Intercept + m.params.Slope*t + m.params.Weekday[int(day.Weekday())]
		central = interval.ClampNonNegative(central)

		hw := interval.HalfWidth(m.params.Sigma, i)
		lowers[i], uppers[i] = interval.Bounds(central, hw)
		points = append(points, Point{Day: day, Predicted: central})
	}

	interval.EnsureWidening(lowers, uppers)
	for i := range points {
		points[i].Lower = lowers[i]
		points[i].Upper = uppers[i]
	}
	return points
}

// NewRecord wraps a trained model into a registry record.
func NewRecord(key SeriesKey, m Model) (*ModelRecord, error) {
	params, err := m.Params()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize model params: %w", err)
	}
	now := time.Now().UTC()
	return &ModelRecord{
		ID:        uuid.New(),
		Key:       key,
		Kind:      m.Kind(),
		Version:   now.Format("20060102T150405Z"),
		Params:    params,
		TrainedAt: now,
		IsActive:  true,
	}, nil
}

// Rebuild reconstructs a Model from its persisted record.
func Rebuild(rec *ModelRecord) (Model, error) {
	switch rec.Kind {
	case KindSeasonalTrend:
		var p seasonalTrendParams
		if err := json.Unmarshal(rec.Params, &p); err != nil {
			return nil, fmt.Errorf("failed to decode %s params: %w", rec.Kind, err)
		}
		origin, err := ParseDay(p.Origin)
		if err != nil {
			return nil, fmt.Errorf("invalid model origin %q: %w", p.Origin, err)
		}
		return &SeasonalTrendModel{params: p, origin: origin}, nil
	case KindBaselineMean:
		var p baselineParams
		if err := json.Unmarshal(rec.Params, &p); err != nil {
			return nil, fmt.Errorf("failed to decode %s params: %w", rec.Kind, err)
		}
		return &BaselineModel{params: p}, nil
	default:
		return nil, fmt.Errorf("unknown model kind: %s", rec.Kind)
	}
}

// minimumSigma keeps intervals visibly non-zero even for a perfectly
// regular series.
func minimumSigma(level float64) float64 {
	floor := 0.1 * level
	if floor < 0.5 {
		floor = 0.5
	}
	return floor
}
