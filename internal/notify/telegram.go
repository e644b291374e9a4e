package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/afroash/envmon/internal/models"
)

// DefaultTelegramAPI is the public Bot API endpoint
const DefaultTelegramAPI = "https://api.telegram.org"

// TelegramSink posts alerts to a chat through the Bot API
type TelegramSink struct {
	apiURL string
	token  string
	chatID string
	client *http.Client
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// NewTelegramSink creates a sink for the given bot and chat. An empty
// apiURL uses DefaultTelegramAPI.
func NewTelegramSink(apiURL, token, chatID string) *TelegramSink {
	if apiURL == "" {
		apiURL = DefaultTelegramAPI
	}
	return &TelegramSink{
		apiURL: strings.TrimRight(apiURL, "/"),
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Name implements Sink
func (t *TelegramSink) Name() string { return "telegram" }

// Send implements Sink
func (t *TelegramSink) Send(ctx context.Context, alert *models.Alert) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:    t.chatID,
		Text:      FormatTelegramMessage(alert),
		ParseMode: "Markdown",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// the URL carries the bot token
		return fmt.Errorf("telegram request failed: %w", redact(err, t.token))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

// FormatTelegramMessage renders alert as a Markdown chat message
func FormatTelegramMessage(alert *models.Alert) string {
	threshold := "n/a"
	if alert.Threshold != nil {
		threshold = strconv.FormatFloat(*alert.Threshold, 'f', -1, 64)
	}
	lines := []string{
		"🚨 *Sensor Alert*",
		fmt.Sprintf("Sensor: %s (%s)", alert.SensorID, alert.SensorType),
		"Severity: " + strings.ToUpper(string(alert.Severity)),
		"Value: " + strconv.FormatFloat(alert.Value, 'f', -1, 64),
		"Threshold: " + threshold,
		"Time: " + alert.CreatedAt.UTC().Format(time.RFC3339),
	}
	return strings.Join(lines, "\n")
}

func redact(err error, secret string) error {
	if secret == "" {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), secret, "***"))
}
