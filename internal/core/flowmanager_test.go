package core

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kegnet.io/kegcore/internal/bus"
	"kegnet.io/kegcore/internal/event"
)

func newFlowFixture(t *testing.T) (*FlowManager, *TapManager, *bus.EventHub, *collector, *clockwork.FakeClock) {
	t.Helper()
	hub := bus.New()
	clock := clockwork.NewFakeClockAt(time.Unix(1700000000, 0))
	taps := NewTapManager(hub, &fakeBackend{})
	flows := NewFlowManager(hub, taps, clock, MaxMeterReadingDelta)
	c := collect(hub, "FlowUpdate", "SetRelayOutputEvent")
	return flows, taps, hub, c, clock
}

func TestStartFlowAnonymous(t *testing.T) {
	flows, _, hub, c, _ := newFlowFixture(t)

	flow, isNew := flows.StartFlow("flow0", "", DefaultMaxIdle)
	require.NotNil(t, flow)
	assert.True(t, isNew)
	assert.Equal(t, event.FlowStateActive, flow.State())

	hub.Flush()
	updates := c.flowUpdates()
	require.Len(t, updates, 1)
	assert.Equal(t, event.FlowStateActive, updates[0].State)
	assert.Empty(t, updates[0].Username)
	assert.Empty(t, c.relayEvents(), "anonymous flows do not energize the relay")
}

func TestStartFlowAuthenticatedFiresRelay(t *testing.T) {
	flows, taps, hub, c, _ := newFlowFixture(t)
	taps.registerOrUpdateTap("flow0", 2.2, "relay0")

	flows.StartFlow("flow0", "alice", DefaultMaxIdle)
	hub.Flush()

	relays := c.relayEvents()
	require.Len(t, relays, 1)
	assert.Equal(t, "relay0", relays[0].OutputName)
	assert.Equal(t, event.RelayEnabled, relays[0].OutputMode)
}

func TestStartFlowSameUserIsNoop(t *testing.T) {
	flows, _, hub, c, _ := newFlowFixture(t)

	first, _ := flows.StartFlow("flow0", "alice", DefaultMaxIdle)
	hub.Flush()
	c.reset()

	second, isNew := flows.StartFlow("flow0", "alice", DefaultMaxIdle)
	assert.False(t, isNew)
	assert.Same(t, first, second)

	hub.Flush()
	assert.Empty(t, c.all(), "renewing a flow emits nothing")
}

func TestAnonymousTakeover(t *testing.T) {
	flows, _, hub, c, _ := newFlowFixture(t)

	anon, _ := flows.StartFlow("flow0", "", DefaultMaxIdle)
	hub.Flush()
	c.reset()

	adopted, isNew := flows.StartFlow("flow0", "alice", DefaultMaxIdle)
	assert.False(t, isNew)
	assert.Equal(t, anon.ID(), adopted.ID(), "takeover must not allocate a new id")
	assert.Equal(t, "alice", adopted.Username())

	hub.Flush()
	updates := c.flowUpdates()
	require.Len(t, updates, 1)
	assert.Equal(t, "alice", updates[0].Username)
}

func TestStartFlowDifferentUserReplaces(t *testing.T) {
	flows, _, hub, c, _ := newFlowFixture(t)

	first, _ := flows.StartFlow("flow0", "alice", DefaultMaxIdle)
	hub.Flush()
	c.reset()

	second, isNew := flows.StartFlow("flow0", "bob", DefaultMaxIdle)
	assert.True(t, isNew)
	assert.NotEqual(t, first.ID(), second.ID())

	hub.Flush()
	updates := c.flowUpdates()
	require.Len(t, updates, 2, "completed update for alice, active update for bob")
	assert.Equal(t, event.FlowStateCompleted, updates[0].State)
	assert.Equal(t, "alice", updates[0].Username)
	assert.Equal(t, event.FlowStateActive, updates[1].State)
	assert.Equal(t, "bob", updates[1].Username)
}

func TestFlowIDsDistinct(t *testing.T) {
	flows, _, _, _, _ := newFlowFixture(t)

	seen := make(map[uint64]bool)
	for i := 0; i < 100; i++ {
		flow, _ := flows.StartFlow("flow0", "", DefaultMaxIdle)
		assert.False(t, seen[flow.ID()], "flow id %d reused", flow.ID())
		seen[flow.ID()] = true
		flows.StopFlow("flow0")
	}
}

func TestStopFlow(t *testing.T) {
	flows, taps, hub, c, _ := newFlowFixture(t)
	taps.registerOrUpdateTap("flow0", 2.2, "relay0")

	flows.StartFlow("flow0", "alice", DefaultMaxIdle)
	hub.Flush()
	c.reset()

	stopped := flows.StopFlow("flow0")
	require.NotNil(t, stopped)
	assert.Equal(t, event.FlowStateCompleted, stopped.State())
	assert.Nil(t, flows.GetFlow("flow0"), "completed flow leaves the active map")

	hub.Flush()
	relays := c.relayEvents()
	require.Len(t, relays, 1)
	assert.Equal(t, event.RelayDisabled, relays[0].OutputMode)

	updates := c.flowUpdates()
	require.Len(t, updates, 1)
	assert.Equal(t, event.FlowStateCompleted, updates[0].State)
}

func TestStopFlowWithoutActive(t *testing.T) {
	flows, _, hub, c, _ := newFlowFixture(t)

	assert.Nil(t, flows.StopFlow("flow0"))
	hub.Flush()
	assert.Empty(t, c.all())
}

func TestUpdateFlowImplicitStart(t *testing.T) {
	flows, taps, hub, c, clock := newFlowFixture(t)
	taps.registerOrUpdateTap("flow0", 2.0, "")

	flow, isNew := flows.UpdateFlow("flow0", 1000, clock.Now())
	require.NotNil(t, flow)
	assert.True(t, isNew)
	assert.Zero(t, flow.Ticks(), "first reading carries no delta")

	flow, isNew = flows.UpdateFlow("flow0", 1100, clock.Now())
	assert.False(t, isNew)
	assert.EqualValues(t, 100, flow.Ticks())
	require.NotNil(t, flow.VolumeML())
	assert.InDelta(t, 200.0, *flow.VolumeML(), 0.001)

	hub.Flush()
	updates := c.flowUpdates()
	require.Len(t, updates, 3, "one for the implicit start, one per reading")
}

func TestIdleSweepCompletesFlow(t *testing.T) {
	flows, taps, hub, c, clock := newFlowFixture(t)
	taps.registerOrUpdateTap("flow0", 2.2, "relay0")

	flows.StartFlow("flow0", "alice", 20*time.Second)
	flows.UpdateFlow("flow0", 100, clock.Now())
	hub.Flush()
	c.reset()

	// Not idle yet at t+20s.
	clock.Advance(20 * time.Second)
	flows.sweep()
	hub.Flush()
	for _, fu := range c.flowUpdates() {
		assert.NotEqual(t, event.FlowStateCompleted, fu.State)
	}
	c.reset()

	// At t+21s the flow transitions idle → completed in one sweep.
	clock.Advance(time.Second)
	flows.sweep()
	hub.Flush()

	updates := c.flowUpdates()
	require.Len(t, updates, 2)
	assert.Equal(t, event.FlowStateIdle, updates[0].State)
	assert.Equal(t, event.FlowStateCompleted, updates[1].State)

	relays := c.relayEvents()
	require.NotEmpty(t, relays)
	assert.Equal(t, event.RelayDisabled, relays[len(relays)-1].OutputMode)
	assert.Nil(t, flows.GetFlow("flow0"))
}

func TestSweepRefreshesRelayForLiveAuthenticatedFlow(t *testing.T) {
	flows, taps, hub, c, _ := newFlowFixture(t)
	taps.registerOrUpdateTap("flow0", 2.2, "relay0")

	flows.StartFlow("flow0", "alice", DefaultMaxIdle)
	hub.Flush()
	c.reset()

	flows.sweep()
	hub.Flush()

	relays := c.relayEvents()
	require.Len(t, relays, 1, "live authenticated flow re-energizes its relay")
	assert.Equal(t, event.RelayEnabled, relays[0].OutputMode)
}

func TestFlowRequestReportStatus(t *testing.T) {
	flows, _, hub, c, _ := newFlowFixture(t)

	flows.StartFlow("flow0", "", DefaultMaxIdle)
	flows.StartFlow("flow1", "alice", DefaultMaxIdle)
	hub.Flush()
	c.reset()

	flows.handleFlowRequest(&event.FlowRequest{Request: event.RequestReportStatus})
	hub.Flush()

	assert.Len(t, c.flowUpdates(), 2)
}

func TestMeterUpdateBinding(t *testing.T) {
	flows, _, hub, c, _ := newFlowFixture(t)
	hub.SubscribeAll(flows.Handlers())

	hub.Publish(&event.MeterUpdate{MeterName: "flow0", Reading: 500})
	hub.Flush()
	hub.Publish(&event.MeterUpdate{MeterName: "flow0", Reading: 600})
	hub.Flush()

	flow := flows.GetFlow("flow0")
	require.NotNil(t, flow)
	assert.EqualValues(t, 100, flow.Ticks())
	assert.NotEmpty(t, c.flowUpdates())
}
