package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/envmon/internal/models"
)

// fakeClient records queued messages up to a fixed buffer size
type fakeClient struct {
	id   string
	size int

	mu   sync.Mutex
	msgs [][]byte
}

func newFakeClient(id string, size int) *fakeClient {
	return &fakeClient{id: id, size: size}
}

func (c *fakeClient) ID() string { return c.id }

func (c *fakeClient) Send(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.msgs) >= c.size {
		return false
	}
	c.msgs = append(c.msgs, msg)
	return true
}

func (c *fakeClient) messages(t *testing.T) []models.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.Message, len(c.msgs))
	for i, raw := range c.msgs {
		if err := json.Unmarshal(raw, &out[i]); err != nil {
			t.Fatalf("invalid message %s: %v", raw, err)
		}
	}
	return out
}

type fakeSnapshots struct {
	snapshots map[string]*models.SensorSnapshot
	calls     int
}

func (f *fakeSnapshots) SensorSnapshot(sensorID string) (*models.SensorSnapshot, error) {
	f.calls++
	return f.snapshots[sensorID], nil
}

type fakeAlerts struct {
	alerts []*models.Alert
	err    error
	limit  int
}

func (f *fakeAlerts) ListRecent(limit int) ([]*models.Alert, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.alerts) {
		return f.alerts[:limit], nil
	}
	return f.alerts, nil
}

func makeAlerts(n int) []*models.Alert {
	out := make([]*models.Alert, n)
	for i := range out {
		out[i] = &models.Alert{
			ID:        fmt.Sprintf("alert-%d", i),
			SensorID:  "temp-01",
			Severity:  models.SeverityMedium,
			Status:    models.AlertStatusNew,
			CreatedAt: time.Date(2024, 3, 1, 12, 0, i, 0, time.UTC),
		}
	}
	return out
}

func tempSnapshot() *models.SensorSnapshot {
	return &models.SensorSnapshot{
		Summary: &models.SensorSummary{SensorID: "temp-01", Value: 30, Unit: "°C", Trend: models.TrendUp},
		History: &models.HistoricalSeries{SensorID: "temp-01", Points: []models.HistoryPoint{{Value: 30}}},
	}
}

// TestSubscribe_SendsInitBurst tests the alert:init payload
func TestSubscribe_SendsInitBurst(t *testing.T) {
	alerts := &fakeAlerts{alerts: makeAlerts(8)}
	h := New(&fakeSnapshots{}, alerts, 0, zerolog.Nop())
	c := newFakeClient("c1", 16)

	if err := h.Subscribe(c); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if alerts.limit != DefaultInitAlerts {
		t.Errorf("ListRecent limit = %d, want %d", alerts.limit, DefaultInitAlerts)
	}

	msgs := c.messages(t)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Type != models.MessageTypeAlertInit {
		t.Errorf("Type = %q, want %q", msgs[0].Type, models.MessageTypeAlertInit)
	}

	var got []*models.Alert
	if err := msgs[0].UnmarshalPayload(&got); err != nil {
		t.Fatalf("UnmarshalPayload failed: %v", err)
	}
	if len(got) != DefaultInitAlerts || got[0].ID != "alert-0" {
		t.Errorf("init alerts = %d starting %q, want 5 starting alert-0", len(got), got[0].ID)
	}
	if h.ClientCount() != 1 {
		t.Errorf("ClientCount = %d, want 1", h.ClientCount())
	}
}

// TestSubscribe_Twice tests that re-subscribing resends init without
// duplicating the client
func TestSubscribe_Twice(t *testing.T) {
	h := New(&fakeSnapshots{}, &fakeAlerts{alerts: makeAlerts(2)}, 5, zerolog.Nop())
	c := newFakeClient("c1", 16)

	h.Subscribe(c)
	h.Subscribe(c)

	if h.ClientCount() != 1 {
		t.Errorf("ClientCount = %d, want 1", h.ClientCount())
	}
	if n := len(c.messages(t)); n != 2 {
		t.Errorf("got %d messages, want 2 init bursts", n)
	}

	h.BroadcastAlert(makeAlerts(1)[0])
	if n := len(c.messages(t)); n != 3 {
		t.Errorf("got %d messages after broadcast, want 3", n)
	}
}

// TestSubscribe_AlertStoreError tests that the client is still registered
func TestSubscribe_AlertStoreError(t *testing.T) {
	h := New(&fakeSnapshots{}, &fakeAlerts{err: errors.New("locked")}, 5, zerolog.Nop())
	c := newFakeClient("c1", 16)

	if err := h.Subscribe(c); err == nil {
		t.Fatal("Expected error")
	}
	if h.ClientCount() != 1 {
		t.Errorf("ClientCount = %d, want 1", h.ClientCount())
	}
}

// TestBroadcastSensorUpdate tests the sensor:update payload
func TestBroadcastSensorUpdate(t *testing.T) {
	snaps := &fakeSnapshots{snapshots: map[string]*models.SensorSnapshot{"temp-01": tempSnapshot()}}
	h := New(snaps, &fakeAlerts{}, 5, zerolog.Nop())

	c1 := newFakeClient("c1", 16)
	c2 := newFakeClient("c2", 16)
	h.Register(c1)
	h.Register(c2)

	h.BroadcastSensorUpdate("temp-01")

	for _, c := range []*fakeClient{c1, c2} {
		msgs := c.messages(t)
		if len(msgs) != 1 {
			t.Fatalf("%s got %d messages, want 1", c.id, len(msgs))
		}
		if msgs[0].Type != models.MessageTypeSensorUpdate {
			t.Errorf("Type = %q, want sensor:update", msgs[0].Type)
		}

		var payload models.SensorUpdateMessage
		if err := msgs[0].UnmarshalPayload(&payload); err != nil {
			t.Fatalf("UnmarshalPayload failed: %v", err)
		}
		if payload.Summary == nil || payload.Summary.Value != 30 {
			t.Errorf("Summary = %+v, want value 30", payload.Summary)
		}
		if payload.History == nil || len(payload.History.Points) != 1 {
			t.Errorf("History = %+v, want one point", payload.History)
		}
	}
	if snaps.calls != 1 {
		t.Errorf("snapshot computed %d times, want once per broadcast", snaps.calls)
	}
}

// TestBroadcastSensorUpdate_NoReadings tests the silent no-op
func TestBroadcastSensorUpdate_NoReadings(t *testing.T) {
	h := New(&fakeSnapshots{}, &fakeAlerts{}, 5, zerolog.Nop())
	c := newFakeClient("c1", 16)
	h.Register(c)

	h.BroadcastSensorUpdate("silent")

	if n := len(c.messages(t)); n != 0 {
		t.Errorf("got %d messages, want 0", n)
	}
}

// TestBroadcastSensorUpdate_NoClients tests that nothing is computed
func TestBroadcastSensorUpdate_NoClients(t *testing.T) {
	snaps := &fakeSnapshots{snapshots: map[string]*models.SensorSnapshot{"temp-01": tempSnapshot()}}
	h := New(snaps, &fakeAlerts{}, 5, zerolog.Nop())

	h.BroadcastSensorUpdate("temp-01")

	if snaps.calls != 0 {
		t.Errorf("snapshot computed %d times, want 0", snaps.calls)
	}
}

// TestBroadcast_FullBufferDrops tests best-effort delivery per client
func TestBroadcast_FullBufferDrops(t *testing.T) {
	h := New(&fakeSnapshots{}, &fakeAlerts{}, 5, zerolog.Nop())

	slow := newFakeClient("slow", 1)
	fast := newFakeClient("fast", 16)
	h.Register(slow)
	h.Register(fast)

	for _, a := range makeAlerts(3) {
		h.BroadcastAlert(a)
	}

	if n := len(slow.messages(t)); n != 1 {
		t.Errorf("slow got %d messages, want 1", n)
	}
	fastMsgs := fast.messages(t)
	if len(fastMsgs) != 3 {
		t.Fatalf("fast got %d messages, want 3", len(fastMsgs))
	}

	// FIFO per client
	for i, m := range fastMsgs {
		var a models.Alert
		m.UnmarshalPayload(&a)
		if want := fmt.Sprintf("alert-%d", i); a.ID != want {
			t.Errorf("message %d = %q, want %q", i, a.ID, want)
		}
	}

	stats := h.Stats()
	if stats.Sent != 4 || stats.Dropped != 2 {
		t.Errorf("Stats = %+v, want sent 4 dropped 2", stats)
	}
}

// TestUnsubscribe tests removal and that unknown clients are ignored
func TestUnsubscribe(t *testing.T) {
	h := New(&fakeSnapshots{}, &fakeAlerts{}, 5, zerolog.Nop())
	c := newFakeClient("c1", 16)

	h.Unsubscribe(c)
	h.Register(c)
	h.Unsubscribe(c)

	if h.ClientCount() != 0 {
		t.Errorf("ClientCount = %d, want 0", h.ClientCount())
	}

	h.BroadcastAlert(makeAlerts(1)[0])
	if n := len(c.messages(t)); n != 0 {
		t.Errorf("got %d messages after unsubscribe, want 0", n)
	}
}

// TestConcurrentBroadcasts tests that registration and fan-out can overlap
func TestConcurrentBroadcasts(t *testing.T) {
	h := New(&fakeSnapshots{}, &fakeAlerts{alerts: makeAlerts(1)}, 5, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c := newFakeClient(fmt.Sprintf("c%d", i), 1000)
			h.Subscribe(c)
			h.Unsubscribe(c)
		}(i)
		go func() {
			defer wg.Done()
			h.BroadcastAlert(makeAlerts(1)[0])
		}()
	}
	wg.Wait()

	if h.ClientCount() != 0 {
		t.Errorf("ClientCount = %d, want 0", h.ClientCount())
	}
}
