package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"staffcast/pkg/domainerr"
)

// HistoryStore is the read/audit surface of the observation store as
// the serving path sees it.
type HistoryStore interface {
	// GetHistory returns observations in [since, until], ordered by
	// day ascending. An empty slice, not an error, when none exist.
	GetHistory(ctx context.Context, key SeriesKey, since, until time.Time) ([]Observation, error)

	// ListSeries returns every known (property, role) key with counts.
	ListSeries(ctx context.Context) ([]SeriesInfo, error)

	// RecordPredictionBatch logs model output for audit.
	RecordPredictionBatch(ctx context.Context, batch *PredictionBatch) error
}

// OverrideStore persists manager overrides. Last-write-wins per
// (property, role, day) is enforced by the storage layer.
type OverrideStore interface {
	SetOverride(ctx context.Context, key SeriesKey, day time.Time, value float64, actor, reason string) (*Override, error)

	// GetOverrides maps YYYY-MM-DD date strings to overrides in
	// [start, end]. Absent days have no entry; zero is a legitimate
	// override value.
	GetOverrides(ctx context.Context, key SeriesKey, start, end time.Time) (map[string]*Override, error)

	ClearOverride(ctx context.Context, key SeriesKey, day time.Time) error
}

// ModelRegistry persists trained models with a single active version
// per series. Activation is atomic: readers see the old model or the
// new one, never a partial state.
type ModelRegistry interface {
	// ActiveModel returns the active record for a key, or nil when no
	// model has been trained yet.
	ActiveModel(ctx context.Context, key SeriesKey) (*ModelRecord, error)

	SaveAndActivate(ctx context.Context, rec *ModelRecord) error

	ListModels(ctx context.Context, propertyID int64) ([]ModelRecord, error)
}

// ServiceOptions tune the serving path.
type ServiceOptions struct {
	// LookbackDays bounds the history window loaded for baseline
	// fallbacks.
	LookbackDays int

	// MaxHorizon caps a single forecast request.
	MaxHorizon int

	// ColdStartLevel, when set, serves keys with no history at all at
	// this flat demand level instead of returning UnknownSeries. This
	// is the "default policy" the 404 contract refers to.
	ColdStartLevel *float64

	// Now is overridable for tests.
	Now func() time.Time
}

func (o *ServiceOptions) withDefaults() {
	if o.LookbackDays <= 0 {
		o.LookbackDays = 90
	}
	if o.MaxHorizon <= 0 {
		o.MaxHorizon = 60
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Service orchestrates model lookup, prediction, and override merging
// into the response the HTTP layer serves. Stateless per request; only
// the Service combines model output with override data.
type Service struct {
	history   HistoryStore
	overrides OverrideStore
	registry  ModelRegistry
	cache     *ResponseCache
	logger    zerolog.Logger
	opts      ServiceOptions
}

// NewService creates the forecast orchestrator. cache may be nil.
func NewService(history HistoryStore, overrides OverrideStore, registry ModelRegistry, cache *ResponseCache, logger zerolog.Logger, opts ServiceOptions) *Service {
	opts.withDefaults()
	return &Service{
		history:   history,
		overrides: overrides,
		registry:  registry,
		cache:     cache,
		logger:    logger,
		opts:      opts,
	}
}

// GetForecast returns exactly horizonDays merged predictions starting
// at start: active model (or baseline fallback) output with manager
// overrides replacing the point estimate where present. Bounds stay
// the model's own, so an overridden day still shows model uncertainty.
func (s *Service) GetForecast(ctx context.Context, key SeriesKey, start time.Time, horizonDays int) ([]Point, error) {
	if horizonDays < 1 || horizonDays > s.opts.MaxHorizon {
		return nil, domainerr.NewInvalidRequest(fmt.Sprintf("horizon must be between 1 and %d, got %d", s.opts.MaxHorizon, horizonDays))
	}
	start = Day(start)
	end := start.AddDate(0, 0, horizonDays-1)

	// The series version is read once, before any store access. An
	// override or activation landing mid-request bumps it, so the Store
	// below writes under a version nobody will look up again.
	cacheVer := s.cache.Version(ctx, key)
	if cached := s.cache.Lookup(ctx, key, cacheVer, start, horizonDays); cached != nil {
		forecastsServed.Inc()
		return cached, nil
	}

	model, modelID, err := s.loadModel(ctx, key, start)
	if err != nil {
		return nil, err
	}

	points := model.Predict(start, horizonDays)

	s.logBatch(ctx, key, modelID, points)

	overrides, err := s.loadOverrides(ctx, key, start, end)
	if err != nil {
		return nil, err
	}
	for i := range points {
		if ov, ok := overrides[points[i].Day.Format(DateLayout)]; ok {
			points[i].Predicted = ov.Value
			points[i].IsOverride = true
			overridesApplied.Inc()
		}
	}

	forecastsServed.Inc()
	s.cache.Store(ctx, key, cacheVer, start, horizonDays, points)
	return points, nil
}

// loadModel resolves the model to serve from: the active trained model
// when one exists, otherwise a baseline built from raw history.
func (s *Service) loadModel(ctx context.Context, key SeriesKey, start time.Time) (Model, uuid.UUID, error) {
	var rec *ModelRecord
	err := s.retryRead(ctx, "load active model", func() error {
		var opErr error
		rec, opErr = s.registry.ActiveModel(ctx, key)
		return opErr
	})
	if err != nil {
		return nil, uuid.Nil, err
	}

	if rec != nil {
		model, rebuildErr := Rebuild(rec)
		if rebuildErr == nil {
			return model, rec.ID, nil
		}
		// A corrupt record must not take serving down.
		s.logger.Error().Err(rebuildErr).Str("series", key.String()).Msg("failed to rebuild active model, falling back")
	}

	since := start.AddDate(0, 0, -s.opts.LookbackDays)
	var history []Observation
	err = s.retryRead(ctx, "load history", func() error {
		var opErr error
		history, opErr = s.history.GetHistory(ctx, key, since, Day(s.opts.Now()))
		return opErr
	})
	if err != nil {
		return nil, uuid.Nil, err
	}

	if len(history) == 0 {
		if s.opts.ColdStartLevel == nil {
			return nil, uuid.Nil, domainerr.NewUnknownSeries(key.String())
		}
		fallbacksUsed.Inc()
		return NewBaseline([]Observation{{
			Key:    key,
			Day:    Day(s.opts.Now()),
			Demand: *s.opts.ColdStartLevel,
		}}), uuid.Nil, nil
	}

	fallbacksUsed.Inc()
	return NewBaseline(history), uuid.Nil, nil
}

func (s *Service) loadOverrides(ctx context.Context, key SeriesKey, start, end time.Time) (map[string]*Override, error) {
	var overrides map[string]*Override
	err := s.retryRead(ctx, "load overrides", func() error {
		var opErr error
		overrides, opErr = s.overrides.GetOverrides(ctx, key, start, end)
		return opErr
	})
	if err != nil {
		return nil, err
	}
	return overrides, nil
}

// SetOverride validates and persists a manager override. It has no
// effect on any model; the returned override echoes the stored value
// so clients can apply it locally without re-fetching.
//
// Writes are not retried: an ambiguous failure must surface to the
// caller rather than risk a duplicate decision.
func (s *Service) SetOverride(ctx context.Context, key SeriesKey, day time.Time, value float64, actor, reason string) (*Override, error) {
	if err := ValidateOverride(day, value, s.opts.Now()); err != nil {
		return nil, err
	}
	stored, err := s.overrides.SetOverride(ctx, key, Day(day), value, actor, reason)
	if err != nil {
		return nil, err
	}
	overridesSet.Inc()
	s.cache.InvalidateSeries(ctx, key)
	return stored, nil
}

// ClearOverride removes an override, returning the day to the model
// prediction.
func (s *Service) ClearOverride(ctx context.Context, key SeriesKey, day time.Time) error {
	if err := s.overrides.ClearOverride(ctx, key, Day(day)); err != nil {
		return err
	}
	s.cache.InvalidateSeries(ctx, key)
	return nil
}

// ValidateOverride checks the domain constraints on an override:
// non-negative value, no retroactive days.
func ValidateOverride(day time.Time, value float64, now time.Time) error {
	if value < 0 {
		return domainerr.NewInvalidOverride(fmt.Sprintf("override value must be non-negative, got %g", value))
	}
	if Day(day).Before(Day(now)) {
		return domainerr.NewInvalidOverride(fmt.Sprintf("override date %s is in the past", Day(day).Format(DateLayout)))
	}
	return nil
}

// ValidateObservation checks the domain constraints on an observation:
// non-negative demand, no future days.
func ValidateObservation(day time.Time, demand float64, now time.Time) error {
	if demand < 0 {
		return domainerr.NewInvalidObservation(fmt.Sprintf("observed demand must be non-negative, got %g", demand))
	}
	if Day(day).After(Day(now)) {
		return domainerr.NewInvalidObservation(fmt.Sprintf("observation date %s is in the future", Day(day).Format(DateLayout)))
	}
	return nil
}

// logBatch records model output for the admin listings. Best effort:
// a failed audit write must not fail the request.
func (s *Service) logBatch(ctx context.Context, key SeriesKey, modelID uuid.UUID, points []Point) {
	batch := &PredictionBatch{
		ID:        uuid.New(),
		ModelID:   modelID,
		Key:       key,
		Points:    points,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.history.RecordPredictionBatch(ctx, batch); err != nil {
		s.logger.Warn().Err(err).Str("series", key.String()).Msg("failed to log prediction batch")
	}
}

// retryRead runs a read operation with bounded exponential backoff.
// Only reads are retried; see SetOverride for the write policy.
func (s *Service) retryRead(ctx context.Context, op string, fn func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	err := backoff.Retry(func() error {
		if opErr := fn(); opErr != nil {
			// Domain errors are final; only transport-level failures
			// are worth retrying.
			if domainerr.CodeOf(opErr) != "" && !domainerr.HasCode(opErr, domainerr.ErrCodeStoreUnavailable) {
				return backoff.Permanent(opErr)
			}
			return opErr
		}
		return nil
	}, policy)
	if err != nil {
		if domainerr.CodeOf(err) != "" {
			return err
		}
		return domainerr.NewStoreUnavailable(op, err)
	}
	return nil
}
