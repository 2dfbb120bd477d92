package worker

import (
	"context"
	"time"

	"kegnet.io/kegcore/internal/bus"
)

// dispatchTick bounds how long one queue wait may block, so cancellation is
// observed promptly.
const dispatchTick = 500 * time.Millisecond

// DispatchWorker is the single goroutine draining the event hub. Keeping
// dispatch single-threaded preserves the ordering guarantees the managers
// rely on.
type DispatchWorker struct {
	hub *bus.EventHub
}

// NewDispatchWorker creates the dispatch worker.
func NewDispatchWorker(hub *bus.EventHub) *DispatchWorker {
	return &DispatchWorker{hub: hub}
}

func (w *DispatchWorker) Name() string { return "eventhub-dispatch" }

func (w *DispatchWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// Drain whatever is queued so terminal events (completed
			// flows, quit notifications) still reach subscribers.
			w.hub.Flush()
			return
		default:
			w.hub.DispatchNext(dispatchTick)
		}
	}
}
