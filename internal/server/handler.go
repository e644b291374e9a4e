package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/envmon/internal/models"
)

// Constants for WebSocket timeouts
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// DefaultSendBuffer is the per-session outbound queue length
const DefaultSendBuffer = 64

// Handler serves the dashboard live channel over WebSocket
type Handler struct {
	upgrader       websocket.Upgrader
	authToken      string
	hub            LiveHub
	logger         zerolog.Logger
	allowedOrigins []string
	sendBuffer     int

	sessions map[string]*Session
	mutex    sync.RWMutex
}

// Session is one connected dashboard. It implements hub.Client.
type Session struct {
	id          string
	conn        *websocket.Conn
	send        chan []byte
	connectedAt time.Time

	mu     sync.Mutex
	closed bool
}

// SessionInfo describes an active session
type SessionInfo struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
}

// NewHandler creates a new WebSocket handler. An empty authToken disables
// authentication; sendBuffer of zero or less uses DefaultSendBuffer.
func NewHandler(authToken string, liveHub LiveHub, sendBuffer int, logger zerolog.Logger, allowedOrigins ...string) *Handler {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	h := &Handler{
		authToken:      authToken,
		hub:            liveHub,
		logger:         logger,
		allowedOrigins: allowedOrigins,
		sendBuffer:     sendBuffer,
		sessions:       make(map[string]*Session),
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	return h
}

// checkOrigin validates the incoming request's Origin against the configured allowlist
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// No Origin header means same-origin request
	if origin == "" {
		return true
	}

	if len(h.allowedOrigins) == 0 {
		h.logger.Warn().Str("origin", origin).Msg("Rejected WebSocket connection: no allowed origins configured")
		return false
	}

	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || origin == allowed {
			return true
		}
	}

	h.logger.Warn().Str("origin", origin).Msg("Rejected WebSocket connection: origin not in allowlist")
	return false
}

// ServeHTTP handles WebSocket connection requests. Browsers cannot set
// headers on a WebSocket handshake, so the token is also accepted as the
// "token" query parameter.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.authToken != "" {
		header := r.Header.Get("Authorization")
		if query := r.URL.Query().Get("token"); header == "" && query != "" {
			header = "Bearer " + query
		}
		if !validateToken(header, h.authToken) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	h.handleConnection(conn)
}

// validateToken checks a "Bearer <token>" header against want
func validateToken(authHeader, want string) bool {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}
	return strings.TrimPrefix(authHeader, "Bearer ") == want
}

// handleConnection manages a single WebSocket connection until it closes
func (h *Handler) handleConnection(conn *websocket.Conn) {
	s := &Session{
		id:          uuid.NewString(),
		conn:        conn,
		send:        make(chan []byte, h.sendBuffer),
		connectedAt: time.Now(),
	}

	h.mutex.Lock()
	h.sessions[s.id] = s
	h.mutex.Unlock()

	h.hub.Register(s)
	h.logger.Info().Str("client_id", s.id).Str("remote_addr", conn.RemoteAddr().String()).Msg("Dashboard connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(s)
	}()

	h.readPump(s)

	h.hub.Unsubscribe(s)
	s.close()
	<-done
	conn.Close()
	h.removeSession(s.id)
}

// readPump reads client events until the connection fails
func (h *Handler) readPump(s *Session) {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg models.Message
		err := s.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Str("client_id", s.id).Msg("WebSocket error")
			}
			return
		}
		h.handleMessage(s, &msg)
	}
}

// handleMessage processes a single message from a dashboard
func (h *Handler) handleMessage(s *Session, msg *models.Message) {
	h.logger.Debug().Str("client_id", s.id).Str("type", string(msg.Type)).Msg("Received message")

	switch msg.Type {
	case models.MessageTypeDashboardSubscribe:
		if err := h.hub.Subscribe(s); err != nil {
			h.logger.Error().Err(err).Str("client_id", s.id).Msg("Failed to send recent alerts")
			h.sendError(s, "subscribe_failed", "recent alerts unavailable")
		}
	default:
		h.logger.Warn().Str("client_id", s.id).Str("type", string(msg.Type)).Msg("Unknown message type")
		h.sendError(s, "unknown_type", "unsupported message type "+string(msg.Type))
	}
}

func (h *Handler) sendError(s *Session, code, message string) {
	msg, err := models.NewMessage(models.MessageTypeError, models.ErrorMessage{Code: code, Message: message})
	if err != nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.Send(data)
}

// writePump drains the session queue and keeps the connection alive
func (h *Handler) writePump(s *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Warn().Err(err).Str("client_id", s.id).Msg("Failed to write message")
				// unblock readPump so the session is torn down
				s.conn.Close()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.conn.Close()
				return
			}
		}
	}
}

// removeSession removes a session from the active map
func (h *Handler) removeSession(id string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	delete(h.sessions, id)
	h.logger.Info().Str("client_id", id).Msg("Dashboard disconnected")
}

// ActiveSessions returns the currently connected dashboards
func (h *Handler) ActiveSessions() []SessionInfo {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	sessions := make([]SessionInfo, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, SessionInfo{
			ID:          s.id,
			RemoteAddr:  s.conn.RemoteAddr().String(),
			ConnectedAt: s.connectedAt,
		})
	}
	return sessions
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// Send queues msg without blocking. It reports false when the queue is full
// or the session is closed.
func (s *Session) Send(msg []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}
