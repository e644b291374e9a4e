package hub

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/afroash/envmon/internal/models"
)

// DefaultInitAlerts is the number of recent alerts sent on subscribe
const DefaultInitAlerts = 5

// Client is one live dashboard session. Send must not block: it queues msg
// and reports false when the session's buffer is full.
type Client interface {
	ID() string
	Send(msg []byte) bool
}

// SnapshotSource computes the current view of one sensor
type SnapshotSource interface {
	SensorSnapshot(sensorID string) (*models.SensorSnapshot, error)
}

// AlertSource lists the most recent alerts
type AlertSource interface {
	ListRecent(limit int) ([]*models.Alert, error)
}

// Hub fans sensor updates and alerts out to every registered client.
// Delivery is best effort: a client whose buffer is full misses the message.
type Hub struct {
	snapshots  SnapshotSource
	alerts     AlertSource
	initAlerts int
	logger     zerolog.Logger

	mu      sync.RWMutex
	clients map[string]Client

	sent    atomic.Int64
	dropped atomic.Int64
}

// Stats reports hub activity
type Stats struct {
	Clients int   `json:"clients"`
	Sent    int64 `json:"sent"`
	Dropped int64 `json:"dropped"`
}

// New creates a Hub. initAlerts of zero or less uses DefaultInitAlerts.
func New(snapshots SnapshotSource, alerts AlertSource, initAlerts int, logger zerolog.Logger) *Hub {
	if initAlerts <= 0 {
		initAlerts = DefaultInitAlerts
	}
	return &Hub{
		snapshots:  snapshots,
		alerts:     alerts,
		initAlerts: initAlerts,
		logger:     logger,
		clients:    make(map[string]Client),
	}
}

// Register adds c to the broadcast set. It reports whether c was new.
func (h *Hub) Register(c Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.register(c)
}

func (h *Hub) register(c Client) bool {
	if _, ok := h.clients[c.ID()]; ok {
		return false
	}
	h.clients[c.ID()] = c
	h.logger.Debug().Str("client_id", c.ID()).Int("clients", len(h.clients)).Msg("Client registered")
	return true
}

// Subscribe registers c if needed and queues the alert:init burst with the
// most recent alerts. It is safe to call again for a registered client.
func (h *Hub) Subscribe(c Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	// listing under the lock keeps an alert from landing between the init
	// burst and the live stream
	alerts, err := h.alerts.ListRecent(h.initAlerts)
	if err != nil {
		h.register(c)
		return err
	}

	h.register(c)

	msg, err := encode(models.MessageTypeAlertInit, alerts)
	if err != nil {
		return err
	}
	h.deliver(c, msg)

	h.logger.Debug().Str("client_id", c.ID()).Int("alerts", len(alerts)).Msg("Client subscribed")
	return nil
}

// Unsubscribe removes c. Unknown clients are ignored.
func (h *Hub) Unsubscribe(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.ID()]; !ok {
		return
	}
	delete(h.clients, c.ID())
	h.logger.Debug().Str("client_id", c.ID()).Int("clients", len(h.clients)).Msg("Client unsubscribed")
}

// BroadcastSensorUpdate recomputes the summary and history of sensorID and
// pushes them to every client. A sensor without readings sends nothing.
func (h *Hub) BroadcastSensorUpdate(sensorID string) {
	if h.ClientCount() == 0 {
		return
	}

	snapshot, err := h.snapshots.SensorSnapshot(sensorID)
	if err != nil {
		h.logger.Error().Err(err).Str("sensor_id", sensorID).Msg("Failed to build sensor snapshot")
		return
	}
	if snapshot == nil || snapshot.Summary == nil || snapshot.History == nil {
		return
	}

	msg, err := encode(models.MessageTypeSensorUpdate, models.SensorUpdateMessage{
		Summary: snapshot.Summary,
		History: snapshot.History,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode sensor update")
		return
	}
	h.broadcast(msg)
}

// BroadcastAlert pushes a newly raised alert to every client
func (h *Hub) BroadcastAlert(alert *models.Alert) {
	msg, err := encode(models.MessageTypeAlertNew, alert)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode alert")
		return
	}
	h.broadcast(msg)
}

func (h *Hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		h.deliver(c, msg)
	}
}

func (h *Hub) deliver(c Client, msg []byte) {
	if c.Send(msg) {
		h.sent.Add(1)
		return
	}
	h.dropped.Add(1)
	h.logger.Warn().Str("client_id", c.ID()).Msg("Client send buffer full, message dropped")
}

// ClientCount returns the number of registered clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns hub counters
func (h *Hub) Stats() Stats {
	return Stats{
		Clients: h.ClientCount(),
		Sent:    h.sent.Load(),
		Dropped: h.dropped.Load(),
	}
}

func encode(msgType models.MessageType, payload interface{}) ([]byte, error) {
	msg, err := models.NewMessage(msgType, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}
