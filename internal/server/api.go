package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/afroash/envmon/internal/hub"
	"github.com/afroash/envmon/internal/ingest"
	"github.com/afroash/envmon/internal/models"
	"github.com/afroash/envmon/internal/storage"
)

// Response limits of the list endpoints
const (
	MaxSensorReadings = 100
	MaxAlerts         = 50
)

// APIDeps wires the API handler to the stores and live components.
// Storage, Retention, Ingest and Sessions are optional and only feed /api/stats.
type APIDeps struct {
	Sensors    SensorStore
	Alerts     AlertStore
	Thresholds ThresholdStore
	Dashboard  DashboardSource
	Hub        LiveHub
	Storage    StorageStatsSource
	Retention  RetentionStatsSource
	Ingest     IngestStatsSource
	Sessions   SessionSource
}

// APIHandler handles HTTP API requests for the dashboard
type APIHandler struct {
	deps   APIDeps
	logger zerolog.Logger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(deps APIDeps, logger zerolog.Logger) *APIHandler {
	return &APIHandler{
		deps:   deps,
		logger: logger,
	}
}

// ErrorResponse is the body of every failed API request
type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatsResponse aggregates component statistics
type StatsResponse struct {
	Storage   *storage.StorageStats          `json:"storage,omitempty"`
	Hub       hub.Stats                      `json:"hub"`
	Retention *storage.RetentionSweeperStats `json:"retention,omitempty"`
	Ingest    *ingest.PipelineStats          `json:"ingest,omitempty"`
	Sessions  []SessionInfo                  `json:"sessions,omitempty"`
}

// HandleSensors lists registered sensors
func (api *APIHandler) HandleSensors(w http.ResponseWriter, r *http.Request) {
	sensors, err := api.deps.Sensors.ListSensors()
	if err != nil {
		api.internalError(w, err, "Failed to list sensors")
		return
	}
	if sensors == nil {
		sensors = []*models.Sensor{}
	}
	writeJSON(w, http.StatusOK, sensors)
}

// HandleSensorReadings returns the most recent readings of one sensor
func (api *APIHandler) HandleSensorReadings(w http.ResponseWriter, r *http.Request) {
	sensorID := chi.URLParam(r, "id")

	sensor, err := api.deps.Sensors.GetSensor(sensorID)
	if err != nil {
		api.internalError(w, err, "Failed to load sensor")
		return
	}
	if sensor == nil {
		writeError(w, http.StatusNotFound, "sensor_not_found", "sensor "+sensorID+" not found")
		return
	}

	readings, err := api.deps.Sensors.ListBySensor(sensorID, limitParam(r, MaxSensorReadings))
	if err != nil {
		api.internalError(w, err, "Failed to list readings")
		return
	}
	if readings == nil {
		readings = []*models.Reading{}
	}
	writeJSON(w, http.StatusOK, readings)
}

// HandleSensorSnapshot returns the summary and history of one sensor
func (api *APIHandler) HandleSensorSnapshot(w http.ResponseWriter, r *http.Request) {
	sensorID := chi.URLParam(r, "id")

	snapshot, err := api.deps.Dashboard.SensorSnapshot(sensorID)
	if err != nil {
		api.internalError(w, err, "Failed to build sensor snapshot")
		return
	}
	if snapshot == nil {
		writeError(w, http.StatusNotFound, "sensor_not_found", "no readings for sensor "+sensorID)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// HandleAlerts lists the most recent alerts
func (api *APIHandler) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := api.deps.Alerts.ListRecent(limitParam(r, MaxAlerts))
	if err != nil {
		api.internalError(w, err, "Failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []*models.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

// HandleAcknowledgeAlert moves an alert to acknowledged
func (api *APIHandler) HandleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")

	alert, err := api.deps.Alerts.Acknowledge(alertID)
	if err != nil {
		api.internalError(w, err, "Failed to acknowledge alert")
		return
	}
	if alert == nil {
		writeError(w, http.StatusNotFound, "alert_not_found", "alert "+alertID+" not found")
		return
	}

	api.logger.Info().Str("alert_id", alert.ID).Str("sensor_id", alert.SensorID).Msg("Alert acknowledged")
	writeJSON(w, http.StatusOK, alert)
}

// HandleThresholds lists every configured threshold
func (api *APIHandler) HandleThresholds(w http.ResponseWriter, r *http.Request) {
	thresholds, err := api.deps.Thresholds.List()
	if err != nil {
		api.internalError(w, err, "Failed to list thresholds")
		return
	}
	if thresholds == nil {
		thresholds = []*models.Threshold{}
	}
	writeJSON(w, http.StatusOK, thresholds)
}

// HandleUpdateThreshold replaces the threshold of one sensor type
func (api *APIHandler) HandleUpdateThreshold(w http.ResponseWriter, r *http.Request) {
	sensorType, ok := models.ParseSensorType(chi.URLParam(r, "type"))
	if !ok {
		api.validationError(w, models.NewValidationError("type", "unknown sensor type "+strconv.Quote(string(sensorType))))
		return
	}

	var update models.ThresholdUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		api.validationError(w, models.NewValidationError("body", "malformed JSON"))
		return
	}
	if err := validateThresholdUpdate(&update); err != nil {
		api.validationError(w, err)
		return
	}

	threshold, err := api.deps.Thresholds.Upsert(sensorType, update.MinValue, update.MaxValue, update.Unit)
	if err != nil {
		api.internalError(w, err, "Failed to update threshold")
		return
	}

	api.logger.Info().Str("sensor_type", string(sensorType)).Msg("Threshold updated")
	writeJSON(w, http.StatusOK, threshold)
}

func validateThresholdUpdate(u *models.ThresholdUpdate) error {
	if u.Unit == "" {
		return models.NewValidationError("unit", "is required")
	}
	if u.MinValue != nil && u.MaxValue != nil && *u.MinValue > *u.MaxValue {
		return models.NewValidationError("minValue", "must not exceed maxValue")
	}
	return nil
}

// HandleDashboard returns the full dashboard snapshot
func (api *APIHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	snapshot, err := api.deps.Dashboard.Snapshot()
	if err != nil {
		api.internalError(w, err, "Failed to build dashboard")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// HandleStats returns component statistics
func (api *APIHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	var resp StatsResponse

	if api.deps.Storage != nil {
		stats, err := api.deps.Storage.GetStorageStats()
		if err != nil {
			api.internalError(w, err, "Failed to read storage stats")
			return
		}
		resp.Storage = stats
	}
	if api.deps.Hub != nil {
		resp.Hub = api.deps.Hub.Stats()
	}
	if api.deps.Retention != nil {
		stats := api.deps.Retention.Stats()
		resp.Retention = &stats
	}
	if api.deps.Ingest != nil {
		stats := api.deps.Ingest.Stats()
		resp.Ingest = &stats
	}
	if api.deps.Sessions != nil {
		resp.Sessions = api.deps.Sessions.ActiveSessions()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (api *APIHandler) validationError(w http.ResponseWriter, err error) {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, "validation_error", ve.Error())
		return
	}
	writeError(w, http.StatusBadRequest, "validation_error", err.Error())
}

func (api *APIHandler) internalError(w http.ResponseWriter, err error, msg string) {
	api.logger.Error().Err(err).Msg(msg)
	writeError(w, http.StatusInternalServerError, "internal_error", msg)
}

// limitParam reads ?limit, clamped to 1..max; absent or invalid gives max
func limitParam(r *http.Request, max int) int {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return max
	}
	parsed, err := strconv.Atoi(limitStr)
	if err != nil || parsed <= 0 || parsed > max {
		return max
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Status: "error", Code: code, Message: message})
}
