package dashboard

import (
	"math"

	"github.com/afroash/envmon/internal/models"
)

// trendDeadband is the change a sensor must exceed to count as moving
const trendDeadband = 0.5

// criticalMargin is the fraction of the band width past max that turns a
// warning into critical
const criticalMargin = 0.2

// Summarize builds the summary for sensor. recent must be non-empty and
// ordered most recent first.
func Summarize(sensor *models.Sensor, recent []*models.Reading, threshold *models.Threshold) *models.SensorSummary {
	latest := recent[0]

	var change, changePercent float64
	if len(recent) > 1 {
		previous := recent[1].Value
		change = round2(latest.Value - previous)
		if previous != 0 {
			changePercent = round2(change / previous * 100)
		}
	}

	return &models.SensorSummary{
		SensorID:      sensor.ID,
		SensorType:    latest.Type,
		Label:         sensor.Name,
		Value:         latest.Value,
		Unit:          latest.Unit,
		Trend:         TrendOf(change),
		Change:        change,
		ChangePercent: changePercent,
		Status:        StatusOf(latest.Value, threshold),
		UpdatedAt:     latest.Timestamp,
	}
}

// BuildHistory converts recent (most recent first) into an ascending series
// of at most HistoryWindow points
func BuildHistory(sensorID string, recent []*models.Reading) *models.HistoricalSeries {
	if len(recent) > HistoryWindow {
		recent = recent[:HistoryWindow]
	}

	series := &models.HistoricalSeries{
		SensorID: sensorID,
		Points:   make([]models.HistoryPoint, len(recent)),
	}
	if len(recent) > 0 {
		series.SensorType = recent[0].Type
		series.Unit = recent[0].Unit
	}

	for i, r := range recent {
		series.Points[len(recent)-1-i] = models.HistoryPoint{
			Timestamp: r.Timestamp,
			Value:     r.Value,
		}
	}
	return series
}

// TrendOf classifies a rounded change
func TrendOf(change float64) models.Trend {
	switch {
	case change > trendDeadband:
		return models.TrendUp
	case change < -trendDeadband:
		return models.TrendDown
	default:
		return models.TrendStable
	}
}

// StatusOf judges value against threshold. Below min is only ever a
// warning; above max becomes critical once it passes
// max + (max - min) * 0.2, with min defaulting to max.
func StatusOf(value float64, threshold *models.Threshold) models.SensorStatus {
	if threshold == nil {
		return models.StatusNormal
	}
	if threshold.BelowMin(value) {
		return models.StatusWarning
	}
	if threshold.AboveMax(value) {
		max := *threshold.MaxValue
		min := max
		if threshold.MinValue != nil {
			min = *threshold.MinValue
		}
		if value > max+(max-min)*criticalMargin {
			return models.StatusCritical
		}
		return models.StatusWarning
	}
	return models.StatusNormal
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
