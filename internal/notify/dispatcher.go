// Package notify delivers alerts to channels outside the dashboard.
package notify

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/envmon/internal/models"
)

// DefaultTimeout bounds one delivery across all sinks
const DefaultTimeout = 10 * time.Second

// Sink is one delivery channel
type Sink interface {
	Name() string
	Send(ctx context.Context, alert *models.Alert) error
}

// Cooldown decides whether an alert may be delivered now. Implementations
// fail open.
type Cooldown interface {
	Allow(ctx context.Context, alert *models.Alert) bool
}

// Stats counts deliveries
type Stats struct {
	Dispatched int64 `json:"dispatched"`
	Delivered  int64 `json:"delivered"`
	Failed     int64 `json:"failed"`
	Suppressed int64 `json:"suppressed"`
}

// Dispatcher fans alerts out to its sinks in the background. A failing or
// panicking sink never reaches the caller.
type Dispatcher struct {
	sinks    []Sink
	cooldown Cooldown
	timeout  time.Duration
	logger   zerolog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	dispatched atomic.Int64
	delivered  atomic.Int64
	failed     atomic.Int64
	suppressed atomic.Int64
}

// NewDispatcher creates a dispatcher. cooldown may be nil.
func NewDispatcher(sinks []Sink, cooldown Cooldown, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		sinks:    sinks,
		cooldown: cooldown,
		timeout:  timeout,
		logger:   logger.With().Str("component", "notify").Logger(),
	}
}

// Notify queues alert for delivery and returns immediately
func (d *Dispatcher) Notify(alert *models.Alert) {
	if len(d.sinks) == 0 || alert == nil {
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	a := *alert
	d.dispatched.Add(1)
	go d.deliver(&a)
}

func (d *Dispatcher) deliver(alert *models.Alert) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			d.logger.Error().Interface("panic", r).Str("alert_id", alert.ID).Msg("Notification delivery panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if d.cooldown != nil && !d.cooldown.Allow(ctx, alert) {
		d.suppressed.Add(1)
		d.logger.Debug().
			Str("sensor_id", alert.SensorID).
			Str("severity", string(alert.Severity)).
			Msg("Notification suppressed by cooldown")
		return
	}

	for _, sink := range d.sinks {
		if err := sink.Send(ctx, alert); err != nil {
			d.failed.Add(1)
			d.logger.Error().Err(err).Str("sink", sink.Name()).Str("alert_id", alert.ID).Msg("Failed to deliver notification")
			continue
		}
		d.delivered.Add(1)
		d.logger.Info().Str("sink", sink.Name()).Str("alert_id", alert.ID).Msg("Notification delivered")
	}
}

// Close stops accepting alerts, waits for in-flight deliveries until ctx
// ends, then closes sinks and cooldown that hold connections
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	var errs []error
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	for _, sink := range d.sinks {
		if c, ok := sink.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if c, ok := d.cooldown.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats returns the delivery counters
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Dispatched: d.dispatched.Load(),
		Delivered:  d.delivered.Load(),
		Failed:     d.failed.Load(),
		Suppressed: d.suppressed.Load(),
	}
}
