package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/afroash/envmon/internal/models"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSink_Send(t *testing.T) {
	writer := &fakeWriter{}
	sink := &KafkaSink{writer: writer}

	if err := sink.Send(context.Background(), testAlert("al-1")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(writer.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(writer.msgs))
	}
	if string(writer.msgs[0].Key) != "temp-01" {
		t.Errorf("key = %q, want temp-01", writer.msgs[0].Key)
	}

	var decoded models.Alert
	if err := json.Unmarshal(writer.msgs[0].Value, &decoded); err != nil {
		t.Fatalf("value is not an alert: %v", err)
	}
	if decoded.ID != "al-1" || decoded.Severity != models.SeverityHigh {
		t.Errorf("decoded = %+v", decoded)
	}

	sink.Close()
	if !writer.closed {
		t.Error("Close should close the writer")
	}
}

func TestKafkaSink_WriteError(t *testing.T) {
	sink := &KafkaSink{writer: &fakeWriter{err: errors.New("leader not available")}}
	if err := sink.Send(context.Background(), testAlert("al-1")); err == nil {
		t.Error("Send should report write errors")
	}
	if sink.Name() != "kafka" {
		t.Errorf("Name = %q", sink.Name())
	}
}
