package models

import (
	"encoding/json"
	"time"
)

// MessageType is the event name carried on the dashboard live channel
type MessageType string

const (
	MessageTypeSensorUpdate       MessageType = "sensor:update"
	MessageTypeAlertNew           MessageType = "alert:new"
	MessageTypeAlertInit          MessageType = "alert:init"
	MessageTypeDashboardSubscribe MessageType = "dashboard:subscribe"
	MessageTypeError              MessageType = "error"
)

// Message is the envelope for all live channel events
type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      msgType,
		Payload:   payloadJSON,
		Timestamp: time.Now(),
	}, nil
}

// SensorUpdateMessage is the payload for MessageTypeSensorUpdate
type SensorUpdateMessage struct {
	Summary *SensorSummary    `json:"summary"`
	History *HistoricalSeries `json:"history"`
}

// ErrorMessage is the payload for MessageTypeError
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UnmarshalPayload unmarshals the message payload into the provided struct
func (m *Message) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}
