package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/afroash/envmon/internal/models"
)

// DefaultAlertCap is the number of alerts kept in the log
const DefaultAlertCap = 100

// AlertStore is the bounded alert log with acknowledgement state
type AlertStore struct {
	db       *sql.DB
	logger   zerolog.Logger
	capacity int
	now      func() time.Time
}

// NewAlertStore creates an AlertStore on top of store. A capacity of zero
// or less falls back to DefaultAlertCap.
func NewAlertStore(store *SQLiteStore, capacity int) *AlertStore {
	if capacity <= 0 {
		capacity = DefaultAlertCap
	}
	return &AlertStore{
		db:       store.db,
		logger:   store.logger.With().Str("store", "alerts").Logger(),
		capacity: capacity,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Capacity returns the retention cap
func (s *AlertStore) Capacity() int {
	return s.capacity
}

// Append stores alert and drops the oldest alerts beyond the cap. Missing
// ID and status are filled in.
func (s *AlertStore) Append(alert *models.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.Status == "" {
		alert.Status = models.AlertStatusNew
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = s.now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO alerts (id, sensor_id, sensor_type, message, severity, value, threshold, status, created_at, resolved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID,
		alert.SensorID,
		string(alert.SensorType),
		alert.Message,
		string(alert.Severity),
		alert.Value,
		nullableFloat(alert.Threshold),
		string(alert.Status),
		formatTime(alert.CreatedAt),
		nullableTime(alert.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	evicted, err := trimTable(tx, "alerts", s.capacity)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit alert: %w", err)
	}

	if evicted > 0 {
		s.logger.Debug().Int64("evicted", evicted).Msg("Evicted oldest alerts")
	}
	return nil
}

// ListRecent returns up to limit alerts, most recent first by creation time
func (s *AlertStore) ListRecent(limit int) ([]*models.Alert, error) {
	query := `SELECT id, sensor_id, sensor_type, message, severity, value, threshold, status, created_at, resolved_at
		FROM alerts
		ORDER BY created_at DESC, seq DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []*models.Alert{}
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}
	return alerts, nil
}

// Get returns the alert with id, or nil if it is not retained
func (s *AlertStore) Get(id string) (*models.Alert, error) {
	return getAlert(s.db.QueryRow(alertByIDQuery, id), id)
}

// Acknowledge marks the alert acknowledged and stamps resolvedAt. An alert
// that is already acknowledged is returned unchanged. Unknown ids return nil.
func (s *AlertStore) Acknowledge(id string) (*models.Alert, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	alert, err := getAlert(tx.QueryRow(alertByIDQuery, id), id)
	if err != nil || alert == nil {
		return nil, err
	}
	if alert.IsAcknowledged() {
		return alert, nil
	}

	resolvedAt := s.now()
	_, err = tx.Exec(
		`UPDATE alerts SET status = ?, resolved_at = ? WHERE id = ?`,
		string(models.AlertStatusAcknowledged),
		formatTime(resolvedAt),
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to acknowledge alert %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit acknowledgement: %w", err)
	}

	alert.Status = models.AlertStatusAcknowledged
	alert.ResolvedAt = &resolvedAt

	s.logger.Info().Str("alert_id", id).Str("sensor_id", alert.SensorID).Msg("Alert acknowledged")
	return alert, nil
}

// Count returns the number of retained alerts
func (s *AlertStore) Count() (int64, error) {
	var count int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM alerts").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return count, nil
}

// Trim drops alerts beyond the cap
func (s *AlertStore) Trim() (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	evicted, err := trimTable(tx, "alerts", s.capacity)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit trim: %w", err)
	}
	return evicted, nil
}

const alertByIDQuery = `SELECT id, sensor_id, sensor_type, message, severity, value, threshold, status, created_at, resolved_at
	FROM alerts WHERE id = ?`

func getAlert(row *sql.Row, id string) (*models.Alert, error) {
	alert, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert %s: %w", id, err)
	}
	return alert, nil
}

func scanAlert(row scanner) (*models.Alert, error) {
	var a models.Alert
	var sensorType, severity, status, createdAt string
	var threshold sql.NullFloat64
	var resolvedAt sql.NullString

	err := row.Scan(
		&a.ID,
		&a.SensorID,
		&sensorType,
		&a.Message,
		&severity,
		&a.Value,
		&threshold,
		&status,
		&createdAt,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	a.SensorType = models.SensorType(sensorType)
	a.Severity = models.Severity(severity)
	a.Status = models.AlertStatus(status)
	a.Threshold = floatPtr(threshold)

	if a.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		t, err := parseTimestamp(resolvedAt.String)
		if err != nil {
			return nil, err
		}
		a.ResolvedAt = &t
	}
	return &a, nil
}
