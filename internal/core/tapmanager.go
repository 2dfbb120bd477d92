package core

import (
	"sync"

	"github.com/mitchellh/mapstructure"

	"kegnet.io/kegcore/internal/backend"
	"kegnet.io/kegcore/internal/bus"
	"kegnet.io/kegcore/internal/event"
	"kegnet.io/kegcore/internal/log"
)

// TapManager maintains the set of configured taps. Taps arrive through the
// periodic backend sync; the sync is additive, so taps absent from one sync
// payload are retained.
type TapManager struct {
	hub     *bus.EventHub
	backend backend.Client

	mu   sync.RWMutex
	taps map[string]Tap

	logger log.Logger
}

// NewTapManager creates an empty tap registry.
func NewTapManager(hub *bus.EventHub, client backend.Client) *TapManager {
	return &TapManager{
		hub:     hub,
		backend: client,
		taps:    make(map[string]Tap),
		logger:  log.GetLogger().WithField("component", "tapmanager"),
	}
}

// Handlers returns the event bindings consumed during wiring.
func (m *TapManager) Handlers() []bus.Binding {
	return []bus.Binding{
		{Event: "SyncEvent", Handler: func(ev event.Event) {
			m.handleSync(ev.(*event.SyncEvent))
		}},
		{Event: "ControllerConnectedEvent", Handler: func(ev event.Event) {
			m.handleControllerConnected(ev.(*event.ControllerConnectedEvent))
		}},
	}
}

// GetAllTaps returns every registered tap.
func (m *TapManager) GetAllTaps() []Tap {
	m.mu.RLock()
	defer m.mu.RUnlock()
	taps := make([]Tap, 0, len(m.taps))
	for _, tap := range m.taps {
		taps = append(taps, tap)
	}
	return taps
}

// GetTap returns the tap registered under name, if any.
func (m *TapManager) GetTap(name string) (Tap, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tap, ok := m.taps[name]
	return tap, ok
}

func (m *TapManager) registerOrUpdateTap(name string, mlPerTick float64, relayName string) {
	newTap := NewTap(name, mlPerTick, relayName)

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.taps[name]; ok && existing == newTap {
		return
	}
	m.logger.Infof("updating tap: %s", newTap)
	m.taps[name] = newTap
}

// handleSync registers or replaces every tap carried in the sync payload.
// The payload is opaque; only the "taps" list is read here.
func (m *TapManager) handleSync(ev *event.SyncEvent) {
	raw, ok := ev.Data["taps"]
	if !ok {
		return
	}

	var descriptors []backend.TapDescriptor
	if err := mapstructure.Decode(raw, &descriptors); err != nil {
		m.logger.WithError(err).Warn("malformed taps list in sync payload")
		return
	}

	for _, d := range descriptors {
		m.registerOrUpdateTap(d.MeterName, d.MLPerTick, d.RelayName)
	}
}

// handleControllerConnected registers the controller on the backend. An
// already-registered controller is not an error worth more than a log line.
func (m *TapManager) handleControllerConnected(ev *event.ControllerConnectedEvent) {
	controller, err := m.backend.CreateController(ev.ControllerName)
	if err != nil {
		m.logger.WithError(err).Infof("not creating controller %q", ev.ControllerName)
		return
	}
	m.logger.Infof("created new controller: %s (id=%d)", controller.Name, controller.ID)
}
