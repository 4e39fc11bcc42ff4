package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"staffcast/forecast"
	"staffcast/pkg/domainerr"
)

// PredictionDay is the per-day wire shape the scheduling UI renders.
// An overridden day keeps the model's bounds so the caller can show
// that the number is a manual decision, not a model-backed value.
type PredictionDay struct {
	Date       string  `json:"date"`
	Predicted  float64 `json:"predicted"`
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	IsOverride bool    `json:"is_override"`
}

// ForecastResponse wraps the gap-free prediction sequence.
type ForecastResponse struct {
	PropertyID  int64           `json:"property_id"`
	Role        string          `json:"role"`
	StartDate   string          `json:"start_date"`
	Predictions []PredictionDay `json:"predictions"`
}

// OverrideRequest is the POST body for a manager override.
type OverrideRequest struct {
	PropertyID    int64   `json:"property_id"`
	Role          string  `json:"role"`
	Date          string  `json:"date"`
	OverrideValue float64 `json:"override_value"`
	Reason        string  `json:"reason,omitempty"`
}

// OverrideResponse echoes the stored override so the client can apply
// it optimistically without re-fetching the forecast.
type OverrideResponse struct {
	ID            int64   `json:"id"`
	PropertyID    int64   `json:"property_id"`
	Role          string  `json:"role"`
	Date          string  `json:"date"`
	OverrideValue float64 `json:"override_value"`
	Reason        string  `json:"reason,omitempty"`
	SetBy         string  `json:"set_by"`
	SetAt         string  `json:"set_at"`
}

// ObservationsRequest is the ingestion batch posted by the operational
// data pipeline.
type ObservationsRequest struct {
	Observations []struct {
		PropertyID int64   `json:"property_id"`
		Role       string  `json:"role"`
		Date       string  `json:"date"`
		Demand     float64 `json:"demand"`
	} `json:"observations"`
}

// =============================================================================
// FORECAST ENDPOINT
// =============================================================================

func (s *Server) handleGetForecast(w http.ResponseWriter, r *http.Request) {
	key, err := seriesKeyFromQuery(r)
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	startStr := r.URL.Query().Get("start_date")
	if startStr == "" {
		s.jsonError(w, http.StatusBadRequest, "start_date is required (YYYY-MM-DD)")
		return
	}
	start, err := forecast.ParseDay(startStr)
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid start_date: %v", err))
		return
	}

	horizon := 7
	if h := r.URL.Query().Get("horizon"); h != "" {
		horizon, err = strconv.Atoi(h)
		if err != nil || horizon < 1 {
			s.jsonError(w, http.StatusBadRequest, "horizon must be a positive integer")
			return
		}
	}

	points, err := s.svc.GetForecast(r.Context(), key, start, horizon)
	if err != nil {
		s.domainError(w, err)
		return
	}

	days := make([]PredictionDay, len(points))
	for i, p := range points {
		days[i] = PredictionDay{
			Date:       p.Day.Format(forecast.DateLayout),
			Predicted:  p.Predicted,
			Lower:      p.Lower,
			Upper:      p.Upper,
			IsOverride: p.IsOverride,
		}
	}

	s.jsonResponse(w, http.StatusOK, ForecastResponse{
		PropertyID:  key.PropertyID,
		Role:        key.Role,
		StartDate:   start.Format(forecast.DateLayout),
		Predictions: days,
	})
}

// =============================================================================
// OVERRIDE ENDPOINTS
// =============================================================================

func (s *Server) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var req OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if req.PropertyID <= 0 || req.Role == "" {
		s.jsonError(w, http.StatusBadRequest, "property_id and role are required")
		return
	}
	day, err := forecast.ParseDay(req.Date)
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid date: %v", err))
		return
	}

	actor := r.Header.Get("X-Actor")
	if actor == "" {
		actor = "unknown"
	}

	key := forecast.SeriesKey{PropertyID: req.PropertyID, Role: req.Role}
	stored, err := s.svc.SetOverride(r.Context(), key, day, req.OverrideValue, actor, req.Reason)
	if err != nil {
		s.domainError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, OverrideResponse{
		ID:            stored.ID,
		PropertyID:    stored.Key.PropertyID,
		Role:          stored.Key.Role,
		Date:          stored.Day.Format(forecast.DateLayout),
		OverrideValue: stored.Value,
		Reason:        stored.Reason,
		SetBy:         stored.SetBy,
		SetAt:         stored.SetAt.Format(time.RFC3339),
	})
}

func (s *Server) handleClearOverride(w http.ResponseWriter, r *http.Request) {
	key, err := seriesKeyFromQuery(r)
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	day, err := forecast.ParseDay(r.URL.Query().Get("date"))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid date: %v", err))
		return
	}

	if err := s.svc.ClearOverride(r.Context(), key, day); err != nil {
		s.domainError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// =============================================================================
// INGESTION ENDPOINT
// =============================================================================

func (s *Server) handleIngestObservations(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var req ObservationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if len(req.Observations) == 0 {
		s.jsonError(w, http.StatusBadRequest, "observations must be non-empty")
		return
	}

	batch := make([]forecast.Observation, 0, len(req.Observations))
	for _, o := range req.Observations {
		day, err := forecast.ParseDay(o.Date)
		if err != nil {
			s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid date %q: %v", o.Date, err))
			return
		}
		batch = append(batch, forecast.Observation{
			Key:    forecast.SeriesKey{PropertyID: o.PropertyID, Role: o.Role},
			Day:    day,
			Demand: o.Demand,
		})
	}

	if err := s.observations.RecordObservations(r.Context(), batch); err != nil {
		s.domainError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]int{"ingested": len(batch)})
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	propertyID, _ := strconv.ParseInt(r.URL.Query().Get("property_id"), 10, 64)

	records, err := s.registry.ListModels(r.Context(), propertyID)
	if err != nil {
		s.domainError(w, err)
		return
	}

	type ModelResponse struct {
		ID         string          `json:"id"`
		PropertyID int64           `json:"property_id"`
		Role       string          `json:"role"`
		Kind       string          `json:"kind"`
		Version    string          `json:"version"`
		Params     json.RawMessage `json:"params"`
		TrainedAt  string          `json:"trained_at"`
		IsActive   bool            `json:"is_active"`
	}

	resp := make([]ModelResponse, len(records))
	for i, rec := range records {
		resp[i] = ModelResponse{
			ID:         rec.ID.String(),
			PropertyID: rec.Key.PropertyID,
			Role:       rec.Key.Role,
			Kind:       rec.Kind,
			Version:    rec.Version,
			Params:     rec.Params,
			TrainedAt:  rec.TrainedAt.Format(time.RFC3339),
			IsActive:   rec.IsActive,
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"models": resp})
}

func (s *Server) handleListPredictions(w http.ResponseWriter, r *http.Request) {
	propertyID, _ := strconv.ParseInt(r.URL.Query().Get("property_id"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := s.observations.ListRecentPredictions(r.Context(), propertyID, limit)
	if err != nil {
		s.domainError(w, err)
		return
	}

	type LoggedPrediction struct {
		BatchID    string  `json:"batch_id"`
		ModelID    string  `json:"model_id,omitempty"`
		PropertyID int64   `json:"property_id"`
		Role       string  `json:"role"`
		Date       string  `json:"date"`
		Predicted  float64 `json:"predicted"`
		Lower      float64 `json:"lower"`
		Upper      float64 `json:"upper"`
		CreatedAt  string  `json:"created_at"`
	}

	resp := make([]LoggedPrediction, len(records))
	for i, rec := range records {
		lp := LoggedPrediction{
			BatchID:    rec.BatchID.String(),
			PropertyID: rec.Key.PropertyID,
			Role:       rec.Key.Role,
			Date:       rec.Day.Format(forecast.DateLayout),
			Predicted:  rec.Predicted,
			Lower:      rec.Lower,
			Upper:      rec.Upper,
			CreatedAt:  rec.CreatedAt.Format(time.RFC3339),
		}
		if rec.ModelID != uuid.Nil {
			lp.ModelID = rec.ModelID.String()
		}
		resp[i] = lp
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"predictions": resp})
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// domainError maps domain error codes onto HTTP statuses. Validation
// failures are 4xx and never retried by clients; a missing series is a
// 404 configuration gap; transient store failures surface as 503.
func (s *Server) domainError(w http.ResponseWriter, err error) {
	switch domainerr.CodeOf(err) {
	case domainerr.ErrCodeInvalidRequest, domainerr.ErrCodeInvalidObservation, domainerr.ErrCodeInvalidOverride:
		s.jsonError(w, http.StatusBadRequest, err.Error())
	case domainerr.ErrCodeUnknownSeries:
		s.jsonError(w, http.StatusNotFound, err.Error())
	case domainerr.ErrCodeStoreUnavailable:
		s.jsonError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error().Err(err).Msg("request failed")
		s.jsonError(w, http.StatusInternalServerError, "internal error")
	}
}

func seriesKeyFromQuery(r *http.Request) (forecast.SeriesKey, error) {
	propertyID, err := strconv.ParseInt(r.URL.Query().Get("property_id"), 10, 64)
	if err != nil || propertyID <= 0 {
		return forecast.SeriesKey{}, fmt.Errorf("property_id must be a positive integer")
	}
	role := r.URL.Query().Get("role")
	if role == "" {
		role = "housekeeping"
	}
	return forecast.SeriesKey{PropertyID: propertyID, Role: role}, nil
}
