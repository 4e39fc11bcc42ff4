package forecast

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TrainerOptions tune the background retraining loop.
type TrainerOptions struct {
	// Interval between retrain cycles. Nightly by default.
	Interval time.Duration

	// LookbackDays of history fed into each training run.
	LookbackDays int
}

func (o *TrainerOptions) withDefaults() {
	if o.Interval <= 0 {
		o.Interval = 24 * time.Hour
	}
	if o.LookbackDays <= 0 {
		o.LookbackDays = 90
	}
}

// Trainer retrains models per series on a schedule and atomically
// activates the result. It deliberately has no reference to the
// override store: models learn only from true observations.
type Trainer struct {
	history  HistoryStore
	registry ModelRegistry
	events   *ResponseCache
	logger   zerolog.Logger
	opts     TrainerOptions
}

// NewTrainer creates the retraining loop. events may be nil.
func NewTrainer(history HistoryStore, registry ModelRegistry, events *ResponseCache, logger zerolog.Logger, opts TrainerOptions) *Trainer {
	opts.withDefaults()
	return &Trainer{
		history:  history,
		registry: registry,
		events:   events,
		logger:   logger,
		opts:     opts,
	}
}

// Run executes retrain cycles until ctx is cancelled. The first cycle
// runs immediately so a fresh deployment serves trained models without
// waiting a full interval.
func (t *Trainer) Run(ctx context.Context) {
	t.logger.Info().Dur("interval", t.opts.Interval).Int("lookback_days", t.opts.LookbackDays).Msg("trainer running")

	t.RunCycle(ctx)

	ticker := time.NewTicker(t.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.RunCycle(ctx)
		case <-ctx.Done():
			t.logger.Info().Msg("trainer shutting down")
			return
		}
	}
}

// RunCycle retrains every series with enough history. Per-series
// failures are logged and skipped; a cycle never aborts serving.
func (t *Trainer) RunCycle(ctx context.Context) {
	start := time.Now()
	defer func() {
		retrainDuration.Observe(time.Since(start).Seconds())
	}()

	series, err := t.history.ListSeries(ctx)
	if err != nil {
		retrainFailures.Inc()
		t.logger.Error().Err(err).Msg("failed to list series for retraining")
		return
	}

	trained := 0
	skipped := 0
	for _, info := range series {
		if ctx.Err() != nil {
			return
		}
		if info.Points < MinTrainingDays {
			skipped++
			continue
		}
		if err := t.TrainSeries(ctx, info.Key); err != nil {
			retrainFailures.Inc()
			t.logger.Error().Err(err).Str("series", info.Key.String()).Msg("retrain failed")
			continue
		}
		trained++
	}

	retrainCycles.Inc()
	t.logger.Info().
		Int("series", len(series)).
		Int("trained", trained).
		Int("skipped", skipped).
		Dur("elapsed", time.Since(start)).
		Msg("retrain cycle completed")
}

// TrainSeries trains and activates a model for one series. The swap is
// atomic in the registry; in-flight predictions finish against the
// model record they already loaded.
func (t *Trainer) TrainSeries(ctx context.Context, key SeriesKey) error {
	until := Day(time.Now())
	since := until.AddDate(0, 0, -t.opts.LookbackDays)

	history, err := t.history.GetHistory(ctx, key, since, until)
	if err != nil {
		return err
	}

	model, err := Train(key, history)
	if err != nil {
		return err
	}

	rec, err := NewRecord(key, model)
	if err != nil {
		return err
	}
	if err := t.registry.SaveAndActivate(ctx, rec); err != nil {
		return err
	}

	modelsActivated.Inc()
	// Cached forecasts still carry the superseded model's output.
	t.events.InvalidateSeries(ctx, key)
	t.events.PublishActivation(ctx, rec)
	t.logger.Info().
		Str("series", key.String()).
		Str("model_id", rec.ID.String()).
		Str("kind", rec.Kind).
		Int("points", len(history)).
		Msg("model trained and activated")
	return nil
}
