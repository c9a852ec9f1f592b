package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DispatchResult counts the outcome of one batch.
type DispatchResult struct {
	Sent       int
	Failed     int
	Suppressed int
	// Delivered[i] reports whether triggered[i] reached the notifier successfully.
	Delivered []bool
}

// Dispatcher makes one delivery attempt per triggered alert. A failed attempt
// is logged and the rest of the batch still goes out. With a positive cooldown
// an alert that was delivered within the window is suppressed.
type Dispatcher struct {
	notifier Notifier
	cooldown time.Duration
	now      func() time.Time
	logger   zerolog.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithCooldown suppresses repeat notifications of the same alert id within window.
func WithCooldown(window time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if window > 0 {
			d.cooldown = window
		}
	}
}

// WithDispatchClock overrides the clock used for the cooldown latch.
func WithDispatchClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDispatcher builds a dispatcher around notifier.
func NewDispatcher(notifier Notifier, logger zerolog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		notifier: notifier,
		now:      time.Now,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
		lastSent: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send delivers every alert in order.
func (d *Dispatcher) Send(ctx context.Context, triggered []TriggeredAlert) DispatchResult {
	res := DispatchResult{Delivered: make([]bool, len(triggered))}
	for i, alert := range triggered {
		if d.suppressed(alert.ID) {
			res.Suppressed++
			d.logger.Debug().Str("alert_id", alert.ID).Str("symbol", alert.Symbol).Msg("notification suppressed by cooldown")
			continue
		}

		if err := d.deliver(ctx, alert); err != nil {
			res.Failed++
			d.logger.Error().Err(err).
				Str("alert_id", alert.ID).
				Str("symbol", alert.Symbol).
				Msg("notification failed")
			continue
		}

		res.Sent++
		res.Delivered[i] = true
		d.markSent(alert.ID)
	}
	return res
}

func (d *Dispatcher) deliver(ctx context.Context, alert TriggeredAlert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()
	return d.notifier.Notify(ctx, alert)
}

func (d *Dispatcher) suppressed(id string) bool {
	if d.cooldown <= 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lastSent[id]
	return ok && d.now().Sub(last) < d.cooldown
}

func (d *Dispatcher) markSent(id string) {
	if d.cooldown <= 0 {
		return
	}
	d.mu.Lock()
	d.lastSent[id] = d.now()
	d.mu.Unlock()
}

// Reset clears the cooldown latch of an alert. The monitor calls it when an
// alert is re-enabled or removed between ticks.
func (d *Dispatcher) Reset(id string) {
	d.mu.Lock()
	delete(d.lastSent, id)
	d.mu.Unlock()
}
