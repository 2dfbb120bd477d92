package core

import (
	"time"

	"github.com/jonboulle/clockwork"

	"kegnet.io/kegcore/internal/backend"
	"kegnet.io/kegcore/internal/bus"
	"kegnet.io/kegcore/internal/event"
	"kegnet.io/kegcore/internal/log"
	"kegnet.io/kegcore/internal/metrics"
)

// thermoStaleAge is how long a sensor may go silent before it is forgotten.
const thermoStaleAge = 2 * time.Minute

type thermoRecord struct {
	value  float64
	minute time.Time
}

// ThermoManager records temperature telemetry at most once per sensor per
// minute; readings outside the plausible range are dropped. Recording is
// best-effort: backend trouble drops the reading.
type ThermoManager struct {
	hub     *bus.EventHub
	backend backend.Client
	clock   clockwork.Clock

	lastRecord map[string]thermoRecord
	sensorLog  map[string]time.Time

	logger log.Logger
}

// NewThermoManager creates a thermo manager.
func NewThermoManager(hub *bus.EventHub, client backend.Client, clock clockwork.Clock) *ThermoManager {
	return &ThermoManager{
		hub:        hub,
		backend:    client,
		clock:      clock,
		lastRecord: make(map[string]thermoRecord),
		sensorLog:  make(map[string]time.Time),
		logger:     log.GetLogger().WithField("component", "thermomanager"),
	}
}

// Handlers returns the event bindings consumed during wiring.
func (m *ThermoManager) Handlers() []bus.Binding {
	return []bus.Binding{
		{Event: "ThermoEvent", Handler: func(ev event.Event) {
			m.handleThermo(ev.(*event.ThermoEvent))
		}},
		{Event: "HeartbeatMinuteEvent", Handler: func(ev event.Event) {
			m.sweepStale()
		}},
	}
}

func (m *ThermoManager) handleThermo(ev *event.ThermoEvent) {
	if ev.SensorValue < ThermoSensorMin || ev.SensorValue > ThermoSensorMax {
		metrics.ThermoDroppedTotal.WithLabelValues("out_of_range").Inc()
		return
	}

	now := m.clock.Now().Truncate(time.Minute)

	// One reading per sensor per minute; the backend may enforce the same.
	if last, ok := m.lastRecord[ev.SensorName]; ok && last.minute.Equal(now) {
		m.logger.Debug("dropping excessive temp event")
		metrics.ThermoDroppedTotal.WithLabelValues("rate_limited").Inc()
		return
	}

	entry := m.logger.WithFields(map[string]interface{}{
		"sensor": ev.SensorName,
		"value":  ev.SensorValue,
	})
	if _, seen := m.sensorLog[ev.SensorName]; !seen {
		entry.Info("recording temperature")
		entry.Info("additional readings will only be shown at debug level")
	} else {
		entry.Debug("recording temperature")
	}
	m.sensorLog[ev.SensorName] = now

	if err := m.backend.LogSensorReading(ev.SensorName, ev.SensorValue, now); err != nil {
		// Telemetry is best-effort; drop and move on.
		m.logger.WithError(err).Debug("sensor reading not recorded")
		metrics.ThermoDroppedTotal.WithLabelValues("backend").Inc()
		return
	}
	metrics.ThermoReadingsTotal.Inc()
	m.lastRecord[ev.SensorName] = thermoRecord{value: ev.SensorValue, minute: now}
}

// sweepStale forgets sensors that have not reported within thermoStaleAge.
// A forgotten sensor re-enters on its next update.
func (m *ThermoManager) sweepStale() {
	now := m.clock.Now()
	for name, lastUpdate := range m.sensorLog {
		if now.Sub(lastUpdate) > thermoStaleAge {
			m.logger.Warnf("stopped receiving updates for thermo sensor %s", name)
			delete(m.sensorLog, name)
		}
	}
}
