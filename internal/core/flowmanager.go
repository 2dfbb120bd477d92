package core

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"kegnet.io/kegcore/internal/bus"
	"kegnet.io/kegcore/internal/event"
	"kegnet.io/kegcore/internal/log"
	"kegnet.io/kegcore/internal/metrics"
)

// DefaultMaxIdle is the idle timeout for flows not started through an auth
// device (implicit anonymous flows, FlowRequest).
const DefaultMaxIdle = 10 * time.Second

// FlowController is the surface the authentication manager uses to drive
// flows. FlowManager implements it; tests substitute fakes.
type FlowController interface {
	StartFlow(meterName, username string, maxIdle time.Duration) (*Flow, bool)
	StopFlow(meterName string) *Flow
}

// FlowManager owns the flow state machine: it starts, updates and stops
// flows, sweeps idle ones on the heartbeat, and gates tap relays.
//
// Handler methods run on the dispatch worker and are serialized with respect
// to each other; the mutex exists because the public API may also be entered
// from other goroutines.
type FlowManager struct {
	hub   *bus.EventHub
	taps  *TapManager
	clock clockwork.Clock

	mu         sync.Mutex
	meters     map[string]*FlowMeter
	flows      map[string]*Flow
	nextFlowID uint64
	maxDelta   uint64

	logger log.Logger
}

var _ FlowController = (*FlowManager)(nil)

// NewFlowManager creates a flow manager. maxDelta is handed to every lazily
// created meter. Flow ids are seeded from wall-clock seconds to reduce
// collision across restarts.
func NewFlowManager(hub *bus.EventHub, taps *TapManager, clock clockwork.Clock, maxDelta uint64) *FlowManager {
	return &FlowManager{
		hub:        hub,
		taps:       taps,
		clock:      clock,
		meters:     make(map[string]*FlowMeter),
		flows:      make(map[string]*Flow),
		nextFlowID: uint64(clock.Now().Unix()),
		maxDelta:   maxDelta,
		logger:     log.GetLogger().WithField("component", "flowmanager"),
	}
}

// Handlers returns the event bindings consumed during wiring.
func (m *FlowManager) Handlers() []bus.Binding {
	return []bus.Binding{
		{Event: "MeterUpdate", Handler: func(ev event.Event) {
			mu := ev.(*event.MeterUpdate)
			m.UpdateFlow(mu.MeterName, mu.Reading, m.clock.Now())
		}},
		{Event: "HeartbeatSecondEvent", Handler: func(ev event.Event) {
			m.sweep()
		}},
		{Event: "FlowRequest", Handler: func(ev event.Event) {
			m.handleFlowRequest(ev.(*event.FlowRequest))
		}},
	}
}

func (m *FlowManager) getNextFlowID() uint64 {
	id := m.nextFlowID
	m.nextFlowID++
	return id
}

// GetMeter returns the meter for meterName, creating it on first reference.
func (m *FlowManager) GetMeter(meterName string) *FlowMeter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getMeterLocked(meterName)
}

func (m *FlowManager) getMeterLocked(meterName string) *FlowMeter {
	meter, ok := m.meters[meterName]
	if !ok {
		meter = NewFlowMeter(meterName, m.maxDelta)
		m.meters[meterName] = meter
	}
	return meter
}

// GetFlow returns the active flow on meterName, or nil.
func (m *FlowManager) GetFlow(meterName string) *Flow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flows[meterName]
}

// GetActiveFlows returns every flow currently in the active map.
func (m *FlowManager) GetActiveFlows() []*Flow {
	m.mu.Lock()
	defer m.mu.Unlock()
	flows := make([]*Flow, 0, len(m.flows))
	for _, f := range m.flows {
		flows = append(flows, f)
	}
	return flows
}

// StartFlow starts a new flow on the given meter, or takes over the
// existing one. With a matching username the existing flow is returned
// unchanged; a username arriving on an anonymous flow adopts it; a
// different username stops the current flow and starts fresh.
func (m *FlowManager) StartFlow(meterName, username string, maxIdle time.Duration) (*Flow, bool) {
	m.mu.Lock()
	current := m.flows[meterName]
	if current != nil {
		if current.Username() == username {
			m.mu.Unlock()
			return current, false
		}
		if current.Username() == "" && username != "" {
			m.logger.Infof("user %q is taking over the existing flow", username)
			current.SetUsername(username)
			m.mu.Unlock()
			m.publishUpdate(current)
			return current, false
		}
		m.mu.Unlock()
		m.logger.Infof("user %q is replacing the existing flow", username)
		m.StopFlow(meterName)
		m.mu.Lock()
	}

	flow := NewFlow(meterName, m.getNextFlowID(), username, maxIdle, m.clock.Now())
	m.flows[meterName] = flow
	metrics.FlowsActive.Set(float64(len(m.flows)))
	m.mu.Unlock()

	m.logger.Infof("starting flow: %s", flow)
	m.publishUpdate(flow)

	if username != "" {
		m.publishRelay(flow, true)
	}
	return flow, true
}

// StopFlow ends the flow on the given meter and returns it, or nil when no
// flow was active. The completed FlowUpdate is the terminal event for the
// flow id.
func (m *FlowManager) StopFlow(meterName string) *Flow {
	m.mu.Lock()
	flow := m.flows[meterName]
	if flow == nil {
		m.mu.Unlock()
		m.logger.Warnf("no flow to stop on meter %s", meterName)
		return nil
	}
	delete(m.flows, meterName)
	metrics.FlowsActive.Set(float64(len(m.flows)))
	m.mu.Unlock()

	m.logger.Infof("stopping flow: %s", flow)
	m.publishRelay(flow, false)
	flow.SetState(event.FlowStateCompleted)
	metrics.FlowsCompletedTotal.Inc()
	m.publishUpdate(flow)
	return flow
}

// UpdateFlow feeds a raw meter reading into the flow on meterName, starting
// an anonymous flow implicitly when none is active.
func (m *FlowManager) UpdateFlow(meterName string, reading uint64, when time.Time) (*Flow, bool) {
	meter := m.GetMeter(meterName)
	delta := meter.SetTicks(reading)
	m.logger.Debugf("flow update: tap=%s meter_reading=%d (delta=%d)", meterName, reading, delta)

	isNew := false
	flow := m.GetFlow(meterName)
	if flow == nil {
		m.logger.Debug("starting flow implicitly due to activity")
		flow, isNew = m.StartFlow(meterName, "", DefaultMaxIdle)
	}

	var tap *Tap
	if t, ok := m.taps.GetTap(meterName); ok {
		tap = &t
	}
	flow.AddTicks(delta, when, tap)
	m.publishUpdate(flow)
	return flow, isNew
}

// sweep runs once per heartbeat second: idle flows transition through idle
// to completed; live authenticated flows have their relay re-energized
// against transient dropout.
func (m *FlowManager) sweep() {
	now := m.clock.Now()
	for _, flow := range m.GetActiveFlows() {
		if flow.IsIdle(now) {
			m.logger.Infof("flow has become too idle, ending: %s", flow)
			flow.SetState(event.FlowStateIdle)
			m.publishUpdate(flow)
			m.StopFlow(flow.MeterName())
		} else if flow.Username() != "" {
			m.publishRelay(flow, true)
		}
	}
}

func (m *FlowManager) handleFlowRequest(ev *event.FlowRequest) {
	switch ev.Request {
	case event.RequestStartFlow:
		m.StartFlow(ev.MeterName, "", DefaultMaxIdle)
	case event.RequestStopFlow:
		m.StopFlow(ev.MeterName)
	case event.RequestReportStatus:
		for _, flow := range m.GetActiveFlows() {
			m.publishUpdate(flow)
		}
	default:
		m.logger.Debugf("ignoring unknown flow request %q", ev.Request)
	}
}

func (m *FlowManager) publishUpdate(flow *Flow) {
	m.hub.Publish(flow.UpdateEvent())
}

// publishRelay emits the relay gate event for the flow's tap. Meters with no
// registered tap, or taps with no relay, are silently skipped.
func (m *FlowManager) publishRelay(flow *Flow, enable bool) {
	tap, ok := m.taps.GetTap(flow.MeterName())
	if !ok {
		return
	}
	relay := tap.RelayName()
	if relay == "" {
		return
	}

	mode := event.RelayDisabled
	if enable {
		mode = event.RelayEnabled
	}
	m.hub.Publish(&event.SetRelayOutputEvent{OutputName: relay, OutputMode: mode})
}
