package worker

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"kegnet.io/kegcore/internal/backend"
	"kegnet.io/kegcore/internal/bus"
	"kegnet.io/kegcore/internal/event"
	"kegnet.io/kegcore/internal/log"
)

// Sync cadence: fast while a session is active, slow otherwise.
const (
	syncIntervalActive = 10 * time.Second
	syncIntervalIdle   = 60 * time.Second
)

// SyncWorker periodically pulls full system status from the backend and
// publishes it as a SyncEvent. A failed sync skips the cycle.
type SyncWorker struct {
	hub     *bus.EventHub
	backend backend.Client
	clock   clockwork.Clock
	logger  log.Logger
}

// NewSyncWorker creates a sync worker.
func NewSyncWorker(hub *bus.EventHub, client backend.Client, clock clockwork.Clock) *SyncWorker {
	return &SyncWorker{
		hub:     hub,
		backend: client,
		clock:   clock,
		logger:  log.GetLogger().WithField("component", "sync"),
	}
}

func (w *SyncWorker) Name() string { return "sync" }

func (w *SyncWorker) Run(ctx context.Context) {
	for {
		status := w.SyncNow()

		interval := syncIntervalIdle
		if status != nil && status["current_session"] != nil {
			interval = syncIntervalActive
		}

		timer := w.clock.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}
	}
}

// SyncNow performs one status pull, publishing a SyncEvent when it succeeds
// with a non-empty status. It returns the status payload, or nil when the
// sync failed.
func (w *SyncWorker) SyncNow() map[string]interface{} {
	w.logger.Debug("syncing ...")
	status, err := w.backend.GetStatus()
	if err != nil {
		w.logger.WithError(err).Warn("backend error during sync")
		return nil
	}
	w.logger.Debug("sync complete")

	if len(status) > 0 {
		w.hub.Publish(&event.SyncEvent{Data: status})
	}
	return status
}
