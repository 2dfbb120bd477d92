package core

import (
	"sync"

	"kegnet.io/kegcore/internal/backend"
	"kegnet.io/kegcore/internal/bus"
	"kegnet.io/kegcore/internal/event"
	"kegnet.io/kegcore/internal/log"
	"kegnet.io/kegcore/internal/metrics"
)

// DrinkManager posts completed flows to the backend with at-least-once
// semantics. Completed FlowUpdates queue in arrival order; a post that
// fails transiently is re-queued in its original position and retried on
// the next flush (minute heartbeat or next completion).
type DrinkManager struct {
	hub     *bus.EventHub
	backend backend.Client

	mu      sync.Mutex
	pending []*event.FlowUpdate

	minVolume float64
	logger    log.Logger
}

// NewDrinkManager creates a drink manager. minVolume is the smallest pour
// worth recording; pass 0 to use MinVolumeToRecord.
func NewDrinkManager(hub *bus.EventHub, client backend.Client, minVolume float64) *DrinkManager {
	if minVolume <= 0 {
		minVolume = MinVolumeToRecord
	}
	return &DrinkManager{
		hub:       hub,
		backend:   client,
		minVolume: minVolume,
		logger:    log.GetLogger().WithField("component", "drinkmanager"),
	}
}

// Handlers returns the event bindings consumed during wiring.
func (m *DrinkManager) Handlers() []bus.Binding {
	return []bus.Binding{
		{Event: "FlowUpdate", Handler: func(ev event.Event) {
			m.handleFlowUpdate(ev.(*event.FlowUpdate))
		}},
		{Event: "HeartbeatMinuteEvent", Handler: func(ev event.Event) {
			m.Flush()
		}},
	}
}

// PendingCount returns the number of unposted completed flows.
func (m *DrinkManager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *DrinkManager) handleFlowUpdate(ev *event.FlowUpdate) {
	if ev.State != event.FlowStateCompleted {
		return
	}
	m.logger.Infof("flow completed: flow_id=0x%08x", ev.FlowID)
	m.mu.Lock()
	m.pending = append(m.pending, ev)
	metrics.DrinksPending.Set(float64(len(m.pending)))
	m.mu.Unlock()
	m.Flush()
}

// Flush drains a snapshot of the pending queue, posting each entry.
// Transient failures re-queue the entry in original order for the next
// flush.
func (m *DrinkManager) Flush() {
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return
	}
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	m.logger.Infof("posting %d pending event(s)", len(pending))

	var requeue []*event.FlowUpdate
	for _, ev := range pending {
		if err := m.postDrink(ev); err != nil {
			if backend.IsTransient(err) {
				m.logger.WithError(err).Warnf("error posting drink, will retry: flow_id=0x%08x", ev.FlowID)
				metrics.DrinkPostFailuresTotal.WithLabelValues("requeued").Inc()
				requeue = append(requeue, ev)
				continue
			}
			// A definitive backend answer (the meter does not exist
			// upstream) drops the event.
			m.logger.WithError(err).Infof("no drink recorded: flow_id=0x%08x", ev.FlowID)
			metrics.DrinkPostFailuresTotal.WithLabelValues("dropped").Inc()
		}
	}

	m.mu.Lock()
	m.pending = append(requeue, m.pending...)
	metrics.DrinksPending.Set(float64(len(m.pending)))
	m.mu.Unlock()
}

// postDrink records one completed flow. A nil return means the event is
// finished with, either posted or filtered; only errors propagate for
// disposition by Flush.
func (m *DrinkManager) postDrink(ev *event.FlowUpdate) error {
	m.logger.Infof("processing pending drink: flow_id=0x%08x, meter=%s, ticks=%d",
		ev.FlowID, ev.MeterName, ev.Ticks)

	if ev.VolumeML != nil && *ev.VolumeML < m.minVolume {
		m.logger.Infof("not recording flow: volume %.1f mL below minimum %.1f", *ev.VolumeML, m.minVolume)
		return nil
	}
	if ev.Ticks == 0 {
		m.logger.Info("not recording flow: no ticks")
		return nil
	}

	drink, err := m.backend.RecordDrink(backend.DrinkRequest{
		MeterName: ev.MeterName,
		Ticks:     ev.Ticks,
		VolumeML:  ev.VolumeML,
		Username:  ev.Username,
		PourTime:  ev.LastActivityTime.Time,
		Duration:  ev.LastActivityTime.Sub(ev.StartTime.Time),
		Spilled:   false,
	})
	if err != nil {
		return err
	}

	metrics.DrinksPostedTotal.Inc()
	m.logger.Infof("logged drink %d username=%s liters=%.2f ticks=%d",
		drink.ID, drink.Username, drink.VolumeML/1000.0, drink.Ticks)

	m.hub.Publish(&event.DrinkCreatedEvent{
		FlowID:    ev.FlowID,
		DrinkID:   drink.ID,
		MeterName: ev.MeterName,
		StartTime: event.NewUnixTime(drink.Time.Time),
		EndTime:   event.NewUnixTime(drink.Time.Time),
		Username:  drink.Username,
	})
	return nil
}
