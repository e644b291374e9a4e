package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/envmon/internal/client"
	"github.com/afroash/envmon/internal/models"
)

func reading(i int) *models.ReadingPayload {
	return &models.ReadingPayload{
		SensorID:  "pi-01-temperature",
		Type:      "temperature",
		Value:     models.Float(float64(20 + i)),
		Unit:      "°C",
		Timestamp: fmt.Sprintf("2024-03-01T12:00:%02dZ", i),
	}
}

func newTestPublisher(t *testing.T, fake *fakeClient, bufSize int, dropOldest bool) *Publisher {
	t.Helper()
	p := NewPublisher(testMQTTConfig(), "pi-01", client.NewReadingBuffer(bufSize, dropOldest), zerolog.Nop())
	p.newClient = fake.factory
	if err := p.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return p
}

func decodeValue(t *testing.T, raw string) float64 {
	t.Helper()
	var payload models.ReadingPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("published payload is not JSON: %v", err)
	}
	return *payload.Value
}

func TestPublisher_Topic(t *testing.T) {
	p := NewPublisher(testMQTTConfig(), "pi-01", client.NewReadingBuffer(10, true), zerolog.Nop())
	if p.Topic() != "sensors/pi-01/data" {
		t.Errorf("Topic = %q, want sensors/pi-01/data", p.Topic())
	}
}

func TestPublisher_SendConnected(t *testing.T) {
	fake := newFakeClient()
	p := newTestPublisher(t, fake, 10, true)

	if err := p.Send(reading(0)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	published := fake.publishedPayloads()
	if len(published) != 1 {
		t.Fatalf("published = %d, want 1", len(published))
	}
	if fake.topics[0] != "sensors/pi-01/data" {
		t.Errorf("topic = %q", fake.topics[0])
	}
	if decodeValue(t, published[0]) != 20 {
		t.Errorf("value = %v, want 20", decodeValue(t, published[0]))
	}
	if p.Stats().Published != 1 {
		t.Errorf("Published = %d, want 1", p.Stats().Published)
	}
}

func TestPublisher_BuffersWhileDisconnected(t *testing.T) {
	fake := newFakeClient()
	fake.connectToken = &fakeToken{timeout: true}
	p := newTestPublisher(t, fake, 10, true)

	for i := 0; i < 3; i++ {
		if err := p.Send(reading(i)); err != nil {
			t.Fatalf("Send %d failed: %v", i, err)
		}
	}
	if p.Stats().Buffered != 3 {
		t.Fatalf("Buffered = %d, want 3", p.Stats().Buffered)
	}
	if len(fake.publishedPayloads()) != 0 {
		t.Fatal("nothing should be published while disconnected")
	}

	fake.setConnected(true)
	if err := p.Send(reading(3)); err != nil {
		t.Fatalf("Send after reconnect failed: %v", err)
	}

	published := fake.publishedPayloads()
	if len(published) != 4 {
		t.Fatalf("published = %d, want 4", len(published))
	}
	for i, raw := range published {
		if got := decodeValue(t, raw); got != float64(20+i) {
			t.Errorf("published[%d] = %v, want %v (order lost)", i, got, float64(20+i))
		}
	}
	if p.Stats().Buffered != 0 {
		t.Errorf("Buffered = %d, want 0", p.Stats().Buffered)
	}
}

func TestPublisher_PublishFailureBuffers(t *testing.T) {
	fake := newFakeClient()
	fake.publishErr = errors.New("broker gone")
	fake.failAfter = 0
	p := newTestPublisher(t, fake, 10, true)

	if err := p.Send(reading(0)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if p.Stats().Buffered != 1 {
		t.Errorf("Buffered = %d, want 1", p.Stats().Buffered)
	}
}

func TestPublisher_FlushInterrupted(t *testing.T) {
	fake := newFakeClient()
	fake.connectToken = &fakeToken{timeout: true}
	p := newTestPublisher(t, fake, 10, true)

	for i := 0; i < 5; i++ {
		p.Send(reading(i))
	}

	fake.setConnected(true)
	fake.publishErr = errors.New("broker gone")
	fake.failAfter = 2

	if sent := p.Flush(); sent != 2 {
		t.Errorf("Flush = %d, want 2", sent)
	}
	if p.Stats().Buffered != 3 {
		t.Errorf("Buffered = %d, want 3", p.Stats().Buffered)
	}

	fake.publishErr = nil
	if sent := p.Flush(); sent != 3 {
		t.Errorf("second Flush = %d, want 3", sent)
	}
	published := fake.publishedPayloads()
	if len(published) != 5 || decodeValue(t, published[2]) != 22 {
		t.Errorf("published = %v", published)
	}
}

func TestPublisher_BufferFull(t *testing.T) {
	fake := newFakeClient()
	fake.connectToken = &fakeToken{timeout: true}
	p := newTestPublisher(t, fake, 2, false)

	p.Send(reading(0))
	p.Send(reading(1))
	if err := p.Send(reading(2)); !errors.Is(err, ErrDropped) {
		t.Errorf("Send on full buffer = %v, want ErrDropped", err)
	}
	if p.Stats().Failed != 1 {
		t.Errorf("Failed = %d, want 1", p.Stats().Failed)
	}
}

func TestPublisher_Run(t *testing.T) {
	fake := newFakeClient()
	p := newTestPublisher(t, fake, 10, true)

	readings := make(chan *models.ReadingPayload, 3)
	for i := 0; i < 3; i++ {
		readings <- reading(i)
	}
	close(readings)

	done := make(chan struct{})
	go func() {
		p.Run(context.Background(), readings)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the channel closed")
	}
	if len(fake.publishedPayloads()) != 3 {
		t.Errorf("published = %d, want 3", len(fake.publishedPayloads()))
	}

	p.Close()
	if !fake.disconnected {
		t.Error("Close should disconnect")
	}
}
