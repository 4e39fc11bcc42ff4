// Package clickhouse provides the ClickHouse time-series store for
// observed demand history and the served-prediction audit log.
// Optimized for append-heavy daily observations and range queries.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/shopspring/decimal"

	"staffcast/forecast"
)

// Config holds ClickHouse connection configuration.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Debug    bool
}

// DefaultConfig returns default development configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     9000,
		Database: "staffcast",
		Username: "default",
		Password: "",
		Debug:    false,
	}
}

// Store implements the observation history and prediction log on
// ClickHouse. It satisfies forecast.HistoryStore.
type Store struct {
	conn clickhouse.Conn
	cfg  *Config
}

// NewStore connects to ClickHouse.
func NewStore(cfg *Config) (*Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: cfg.Debug,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	return &Store{conn: conn, cfg: cfg}, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// EnsureSchema creates the tables if they do not exist. Observations
// use a ReplacingMergeTree keyed by recording time so a corrected
// value for a day supersedes the old one.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS observations (
			property_id Int64,
			role        LowCardinality(String),
			day         Date,
			demand      Decimal(18, 4),
			recorded_at DateTime
		) ENGINE = ReplacingMergeTree(recorded_at)
		ORDER BY (property_id, role, day)`,
		`CREATE TABLE IF NOT EXISTS predictions (
			batch_id    UUID,
			model_id    UUID,
			property_id Int64,
			role        LowCardinality(String),
			day         Date,
			predicted   Float64,
			lower       Float64,
			upper       Float64,
			created_at  DateTime
		) ENGINE = MergeTree
		ORDER BY (property_id, role, created_at, day)
		TTL created_at + INTERVAL 90 DAY`,
	}
	for _, stmt := range ddl {
		if err := s.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// =============================================================================
// OBSERVATION OPERATIONS
// =============================================================================

// RecordObservation upserts one day's true observed demand.
func (s *Store) RecordObservation(ctx context.Context, key forecast.SeriesKey, day time.Time, demand float64) error {
	if err := forecast.ValidateObservation(day, demand, time.Now()); err != nil {
		return err
	}

	query := `INSERT INTO observations (property_id, role, day, demand, recorded_at) VALUES (?, ?, ?, ?, ?)`
	err := s.conn.Exec(ctx, query,
		key.PropertyID,
		key.Role,
		forecast.Day(day),
		decimal.NewFromFloat(demand),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record observation: %w", err)
	}
	return nil
}

// RecordObservations bulk inserts an observation batch. The whole
// batch is validated before anything is sent.
func (s *Store) RecordObservations(ctx context.Context, observations []forecast.Observation) error {
	now := time.Now()
	for _, obs := range observations {
		if err := forecast.ValidateObservation(obs.Day, obs.Demand, now); err != nil {
			return err
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO observations (property_id, role, day, demand, recorded_at)`)
	if err != nil {
		return fmt.Errorf("failed to prepare observation batch: %w", err)
	}
	recordedAt := now.UTC()
	for _, obs := range observations {
		if err := batch.Append(
			obs.Key.PropertyID,
			obs.Key.Role,
			forecast.Day(obs.Day),
			decimal.NewFromFloat(obs.Demand),
			recordedAt,
		); err != nil {
			return fmt.Errorf("failed to append observation: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send observation batch: %w", err)
	}
	return nil
}

// GetHistory returns the ordered observation sequence in [since, until].
// An empty slice when none exist; callers handle cold start explicitly.
func (s *Store) GetHistory(ctx context.Context, key forecast.SeriesKey, since, until time.Time) ([]forecast.Observation, error) {
	query := `
		SELECT day, demand, recorded_at
		FROM observations FINAL
		WHERE property_id = ? AND role = ? AND day >= ? AND day <= ?
		ORDER BY day ASC
	`
	rows, err := s.conn.Query(ctx, query, key.PropertyID, key.Role, forecast.Day(since), forecast.Day(until))
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var history []forecast.Observation
	for rows.Next() {
		var (
			day        time.Time
			demand     decimal.Decimal
			recordedAt time.Time
		)
		if err := rows.Scan(&day, &demand, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		history = append(history, forecast.Observation{
			Key:        key,
			Day:        forecast.Day(day),
			Demand:     demand.InexactFloat64(),
			RecordedAt: recordedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history rows iteration error: %w", err)
	}
	return history, nil
}

// ListSeries returns every known (property, role) key with its
// observation count and date range.
func (s *Store) ListSeries(ctx context.Context) ([]forecast.SeriesInfo, error) {
	query := `
		SELECT property_id, role, count(), min(day), max(day)
		FROM observations FINAL
		GROUP BY property_id, role
		ORDER BY property_id, role
	`
	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list series: %w", err)
	}
	defer rows.Close()

	var series []forecast.SeriesInfo
	for rows.Next() {
		var info forecast.SeriesInfo
		var count uint64
		if err := rows.Scan(&info.Key.PropertyID, &info.Key.Role, &count, &info.First, &info.Last); err != nil {
			return nil, fmt.Errorf("failed to scan series info: %w", err)
		}
		info.Points = int(count)
		series = append(series, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("series rows iteration error: %w", err)
	}
	return series, nil
}

// =============================================================================
// PREDICTION LOG
// =============================================================================

// RecordPredictionBatch logs one served or retrain-time forecast.
func (s *Store) RecordPredictionBatch(ctx context.Context, b *forecast.PredictionBatch) error {
	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO predictions (batch_id, model_id, property_id, role, day, predicted, lower, upper, created_at)`)
	if err != nil {
		return fmt.Errorf("failed to prepare prediction batch: %w", err)
	}
	for _, p := range b.Points {
		if err := batch.Append(
			b.ID,
			b.ModelID,
			b.Key.PropertyID,
			b.Key.Role,
			p.Day,
			p.Predicted,
			p.Lower,
			p.Upper,
			b.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to append prediction: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send prediction batch: %w", err)
	}
	return nil
}

// ListRecentPredictions returns the most recently logged predictions,
// optionally filtered by property.
func (s *Store) ListRecentPredictions(ctx context.Context, propertyID int64, limit int) ([]forecast.PredictionRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `
		SELECT batch_id, model_id, property_id, role, day, predicted, lower, upper, created_at
		FROM predictions
	`
	args := []any{}
	if propertyID > 0 {
		query += ` WHERE property_id = ?`
		args = append(args, propertyID)
	}
	query += ` ORDER BY created_at DESC, day ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	defer rows.Close()

	var records []forecast.PredictionRecord
	for rows.Next() {
		var rec forecast.PredictionRecord
		if err := rows.Scan(
			&rec.BatchID, &rec.ModelID, &rec.Key.PropertyID, &rec.Key.Role,
			&rec.Day, &rec.Predicted, &rec.Lower, &rec.Upper, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("prediction rows iteration error: %w", err)
	}
	return records, nil
}
