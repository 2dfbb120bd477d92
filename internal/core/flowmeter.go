package core

import (
	"kegnet.io/kegcore/internal/log"
)

// FlowMeter accumulates tick deltas from a raw, possibly wrapping hardware
// counter. Meters are created lazily on first reference and live for the
// process lifetime.
type FlowMeter struct {
	name       string
	maxDelta   uint64
	lastTicks  uint64
	hasReading bool
	totalTicks uint64
	logger     log.Logger
}

// NewFlowMeter creates a meter. maxDelta bounds the step between consecutive
// readings; 0 disables the check.
func NewFlowMeter(name string, maxDelta uint64) *FlowMeter {
	return &FlowMeter{
		name:     name,
		maxDelta: maxDelta,
		logger:   log.GetLogger().WithField("meter", name),
	}
}

// SetTicks reports the instantaneous reading of the meter and returns the
// tick delta credited to the running total.
//
// The first report only records the reading and returns 0. Every subsequent
// report computes reading − last as a signed quantity: a positive delta
// within maxDelta is added to the total and returned; anything else (counter
// rollover, device reset, glitch) returns 0. The reading always replaces the
// stored last value so the meter resynchronizes on the next report.
func (m *FlowMeter) SetTicks(reading uint64) uint64 {
	if !m.hasReading {
		m.hasReading = true
		m.lastTicks = reading
		return 0
	}

	delta := int64(reading - m.lastTicks)
	m.lastTicks = reading

	if delta <= 0 || (m.maxDelta != 0 && uint64(delta) > m.maxDelta) {
		m.logger.WithFields(map[string]interface{}{
			"reading": reading,
			"delta":   delta,
		}).Warn("bad ticks report")
		return 0
	}

	m.totalTicks += uint64(delta)
	return uint64(delta)
}

// TotalTicks returns the accumulated valid ticks.
func (m *FlowMeter) TotalTicks() uint64 { return m.totalTicks }

// LastReading returns the most recent raw reading and whether one exists.
func (m *FlowMeter) LastReading() (uint64, bool) { return m.lastTicks, m.hasReading }

// Name returns the meter name.
func (m *FlowMeter) Name() string { return m.name }
