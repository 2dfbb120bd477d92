package worker

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"kegnet.io/kegcore/internal/bus"
	"kegnet.io/kegcore/internal/event"
)

// HeartbeatWorker publishes HeartbeatSecondEvent every interval and a
// HeartbeatMinuteEvent on every 60th beat.
type HeartbeatWorker struct {
	hub      *bus.EventHub
	clock    clockwork.Clock
	interval time.Duration
}

// NewHeartbeatWorker creates a heartbeat worker. interval is exposed for
// tests; production uses one second.
func NewHeartbeatWorker(hub *bus.EventHub, clock clockwork.Clock, interval time.Duration) *HeartbeatWorker {
	if interval <= 0 {
		interval = time.Second
	}
	return &HeartbeatWorker{hub: hub, clock: clock, interval: interval}
}

func (w *HeartbeatWorker) Name() string { return "heartbeat" }

func (w *HeartbeatWorker) Run(ctx context.Context) {
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	seconds := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			seconds++
			w.hub.Publish(&event.HeartbeatSecondEvent{})
			if seconds%60 == 0 {
				w.hub.Publish(&event.HeartbeatMinuteEvent{})
			}
		}
	}
}
