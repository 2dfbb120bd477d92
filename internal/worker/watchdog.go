package worker

import (
	"context"
	"time"

	"kegnet.io/kegcore/internal/bus"
	"kegnet.io/kegcore/internal/event"
	"kegnet.io/kegcore/internal/log"
)

// watchdogInterval is the scan period for worker liveness.
const watchdogInterval = 500 * time.Millisecond

// Watchdog scans the registry for workers that started and then died
// unexpectedly. Any such death is fatal: a QuitEvent is published and the
// fatal callback fires, which terminates the process.
type Watchdog struct {
	registry *Registry
	hub      *bus.EventHub
	fatal    func(name string)
	logger   log.Logger
}

// NewWatchdog creates a watchdog over registry. fatal is invoked once after
// the QuitEvent has been published.
func NewWatchdog(registry *Registry, hub *bus.EventHub, fatal func(name string)) *Watchdog {
	return &Watchdog{
		registry: registry,
		hub:      hub,
		fatal:    fatal,
		logger:   log.GetLogger().WithField("component", "watchdog"),
	}
}

// Name identifies the watchdog; it intentionally runs outside the registry
// it watches.
func (w *Watchdog) Name() string { return "watchdog" }

func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				// Shutdown in progress; workers exiting is expected.
				return
			}
			if name := w.registry.DeadWorker(); name != "" {
				w.logger.Errorf("worker %s died unexpectedly", name)
				w.hub.Publish(&event.QuitEvent{})
				w.fatal(name)
				return
			}
		}
	}
}
