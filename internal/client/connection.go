package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/envmon/internal/models"
)

// ConnectionState represents the current state of the connection
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (cs ConnectionState) String() string {
	switch cs {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// MessageHandler receives every event pushed on the live channel
type MessageHandler func(msg *models.Message)

// Connection follows the dashboard live channel, subscribing on every
// (re)connect and reconnecting with exponential backoff.
type Connection struct {
	URL       string
	AuthToken string

	conn       *websocket.Conn
	state      ConnectionState
	stateMutex sync.RWMutex
	logger     zerolog.Logger
	onMessage  MessageHandler

	connectTimeout           time.Duration
	reconnectInterval        time.Duration
	maxReconnectInterval     time.Duration
	currentReconnectInterval time.Duration
	pingInterval             time.Duration
	pongTimeout              time.Duration

	lastPong      time.Time
	lastPongMutex sync.RWMutex

	received   atomic.Int64
	reconnects atomic.Int64
}

// ConnectionConfig holds configuration for the connection
type ConnectionConfig struct {
	URL                  string
	AuthToken            string
	ConnectTimeout       time.Duration
	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration
	PingInterval         time.Duration
	PongTimeout          time.Duration
}

// ConnectionStats counts live channel activity
type ConnectionStats struct {
	State      string `json:"state"`
	Received   int64  `json:"received"`
	Reconnects int64  `json:"reconnects"`
}

// NewConnection creates a new live channel client. onMessage may be nil.
func NewConnection(config ConnectionConfig, onMessage MessageHandler, logger zerolog.Logger) *Connection {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.ReconnectInterval <= 0 {
		config.ReconnectInterval = time.Second
	}
	if config.MaxReconnectInterval < config.ReconnectInterval {
		config.MaxReconnectInterval = config.ReconnectInterval
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 30 * time.Second
	}
	if config.PongTimeout <= 0 {
		config.PongTimeout = 2 * config.PingInterval
	}
	return &Connection{
		URL:                      config.URL,
		AuthToken:                config.AuthToken,
		state:                    StateDisconnected,
		logger:                   logger,
		onMessage:                onMessage,
		connectTimeout:           config.ConnectTimeout,
		reconnectInterval:        config.ReconnectInterval,
		maxReconnectInterval:     config.MaxReconnectInterval,
		currentReconnectInterval: config.ReconnectInterval,
		pingInterval:             config.PingInterval,
		pongTimeout:              config.PongTimeout,
	}
}

func (c *Connection) setState(state ConnectionState) {
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()
	c.state = state
	c.logger.Debug().Str("state", state.String()).Msg("Connection state updated")
}

// State returns the current connection state
func (c *Connection) State() ConnectionState {
	c.stateMutex.RLock()
	defer c.stateMutex.RUnlock()
	return c.state
}

// IsConnected returns true if currently connected
func (c *Connection) IsConnected() bool {
	return c.State() == StateConnected
}

// Stats returns live channel counters
func (c *Connection) Stats() ConnectionStats {
	return ConnectionStats{
		State:      c.State().String(),
		Received:   c.received.Load(),
		Reconnects: c.reconnects.Load(),
	}
}

// Connect dials the live channel and sends dashboard:subscribe
func (c *Connection) Connect(ctx context.Context) error {
	c.setState(StateConnecting)
	c.logger.Info().Str("url", c.URL).Msg("Connecting to server...")

	dialer := websocket.Dialer{HandshakeTimeout: c.connectTimeout}

	header := http.Header{}
	if c.AuthToken != "" {
		header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	conn, resp, err := dialer.DialContext(ctx, c.URL, header)
	if err != nil {
		c.setState(StateDisconnected)
		if resp != nil {
			return fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial failed: %w", err)
	}
	defer resp.Body.Close()

	conn.SetPongHandler(func(string) error {
		c.updateLastPong()
		return nil
	})

	c.stateMutex.Lock()
	c.conn = conn
	c.stateMutex.Unlock()

	sub, err := models.NewMessage(models.MessageTypeDashboardSubscribe, struct{}{})
	if err != nil {
		conn.Close()
		c.setState(StateDisconnected)
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(c.connectTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		c.setState(StateDisconnected)
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	c.setState(StateConnected)
	c.currentReconnectInterval = c.reconnectInterval // reset backoff
	c.logger.Info().Msg("Subscribed to dashboard feed")
	return nil
}

// Run follows the live channel until ctx is cancelled
func (c *Connection) Run(ctx context.Context) error {
	first := true
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !first {
			c.reconnects.Add(1)
		}
		first = false

		if err := c.Connect(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Connection failed")
			c.waitBeforeReconnect(ctx)
			continue
		}

		c.runMessageLoops(ctx)

		if ctx.Err() == nil {
			c.logger.Info().Msg("Connection lost, will reconnect")
			c.waitBeforeReconnect(ctx)
		}
	}
}

// waitBeforeReconnect waits with exponential backoff
func (c *Connection) waitBeforeReconnect(ctx context.Context) {
	c.logger.Info().Dur("delay", c.currentReconnectInterval).Msg("Waiting before reconnect")
	timer := time.NewTimer(c.currentReconnectInterval)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return
	}
	c.currentReconnectInterval *= 2
	if c.currentReconnectInterval > c.maxReconnectInterval {
		c.currentReconnectInterval = c.maxReconnectInterval
	}
}

// runMessageLoops runs the read and ping loops until either fails
func (c *Connection) runMessageLoops(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		c.readLoop()
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		c.heartbeatLoop(ctx)
	}()

	<-ctx.Done()
	// unblocks the reader
	c.disconnect()
	wg.Wait()
}

func (c *Connection) disconnect() {
	c.stateMutex.Lock()
	if c.conn != nil {
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.conn.Close()
	}
	c.state = StateDisconnected
	c.stateMutex.Unlock()
	c.logger.Info().Msg("Connection disconnected")
}

func (c *Connection) readLoop() {
	c.logger.Debug().Msg("Starting read loop")
	defer c.logger.Debug().Msg("Read loop stopped")

	for {
		var msg models.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("Read error")
			}
			return
		}
		c.updateLastPong()
		c.handleMessage(&msg)
	}
}

// handleMessage logs a live channel event and hands it to the callback
func (c *Connection) handleMessage(msg *models.Message) {
	c.received.Add(1)

	switch msg.Type {
	case models.MessageTypeAlertInit:
		var alerts []models.Alert
		if err := msg.UnmarshalPayload(&alerts); err != nil {
			c.logger.Warn().Err(err).Msg("Malformed alert:init payload")
			break
		}
		c.logger.Info().Int("count", len(alerts)).Msg("Received recent alerts")
	case models.MessageTypeAlertNew:
		var alert models.Alert
		if err := msg.UnmarshalPayload(&alert); err != nil {
			c.logger.Warn().Err(err).Msg("Malformed alert:new payload")
			break
		}
		c.logger.Warn().
			Str("sensor_id", alert.SensorID).
			Str("severity", string(alert.Severity)).
			Float64("value", alert.Value).
			Msg(alert.Message)
	case models.MessageTypeSensorUpdate:
		var update models.SensorUpdateMessage
		if err := msg.UnmarshalPayload(&update); err != nil || update.Summary == nil {
			c.logger.Warn().Msg("Malformed sensor:update payload")
			break
		}
		c.logger.Info().
			Str("sensor_id", update.Summary.SensorID).
			Float64("value", update.Summary.Value).
			Str("unit", update.Summary.Unit).
			Str("trend", string(update.Summary.Trend)).
			Str("status", string(update.Summary.Status)).
			Msg("Sensor update")
	case models.MessageTypeError:
		var errMsg models.ErrorMessage
		if err := msg.UnmarshalPayload(&errMsg); err == nil {
			c.logger.Warn().Str("code", errMsg.Code).Str("msg", errMsg.Message).Msg("Server error")
		}
	default:
		c.logger.Debug().Str("type", string(msg.Type)).Msg("Unknown message type")
	}

	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

func (c *Connection) updateLastPong() {
	c.lastPongMutex.Lock()
	defer c.lastPongMutex.Unlock()
	c.lastPong = time.Now()
}

func (c *Connection) timeSinceLastPong() time.Duration {
	c.lastPongMutex.RLock()
	defer c.lastPongMutex.RUnlock()
	return time.Since(c.lastPong)
}

// heartbeatLoop pings the server and gives up when pongs stop arriving
func (c *Connection) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	c.updateLastPong()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// the previous ping had pongTimeout to be answered
			if c.timeSinceLastPong() > c.pingInterval+c.pongTimeout {
				c.logger.Warn().Msg("No pong received, connection appears dead")
				return
			}
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.pingInterval)); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to send ping")
				return
			}
		}
	}
}
