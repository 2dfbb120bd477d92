package core

import (
	"fmt"
	"time"

	"kegnet.io/kegcore/internal/event"
)

// Flow holds the accumulating state of one pour while it is active. A flow
// that reaches the completed state is removed from the manager in the same
// step and never mutated again.
type Flow struct {
	meterName     string
	flowID        uint64
	boundUsername string
	maxIdle       time.Duration
	state         string
	startTime     time.Time
	endTime       time.Time
	totalTicks    uint64
	volumeML      *float64
}

// NewFlow creates a flow in the active state with its activity clock at
// `when`.
func NewFlow(meterName string, flowID uint64, username string, maxIdle time.Duration, when time.Time) *Flow {
	return &Flow{
		meterName:     meterName,
		flowID:        flowID,
		boundUsername: username,
		maxIdle:       maxIdle,
		state:         event.FlowStateActive,
		startTime:     when,
		endTime:       when,
	}
}

// AddTicks credits a meter delta to the flow and advances the activity
// clock. When the tap is known, the running volume is recomputed from its
// calibration.
func (f *Flow) AddTicks(amount uint64, when time.Time, tap *Tap) {
	f.totalTicks += amount
	f.endTime = when
	if tap != nil {
		v := tap.TicksToMilliliters(f.totalTicks)
		f.volumeML = &v
	}
}

// IsIdle reports whether the flow has been inactive longer than its idle
// limit as of `when`.
func (f *Flow) IsIdle(when time.Time) bool {
	return when.Sub(f.endTime) > f.maxIdle
}

// UpdateEvent snapshots the flow into a FlowUpdate for publication.
func (f *Flow) UpdateEvent() *event.FlowUpdate {
	ev := &event.FlowUpdate{
		FlowID:           f.flowID,
		MeterName:        f.meterName,
		State:            f.state,
		Username:         f.boundUsername,
		StartTime:        event.NewUnixTime(f.startTime),
		LastActivityTime: event.NewUnixTime(f.endTime),
		Ticks:            f.totalTicks,
	}
	if f.volumeML != nil {
		v := *f.volumeML
		ev.VolumeML = &v
	}
	return ev
}

func (f *Flow) ID() uint64                  { return f.flowID }
func (f *Flow) MeterName() string           { return f.meterName }
func (f *Flow) State() string               { return f.state }
func (f *Flow) SetState(state string)       { f.state = state }
func (f *Flow) Username() string            { return f.boundUsername }
func (f *Flow) SetUsername(username string) { f.boundUsername = username }
func (f *Flow) Ticks() uint64               { return f.totalTicks }
func (f *Flow) StartTime() time.Time        { return f.startTime }
func (f *Flow) LastActivityTime() time.Time { return f.endTime }

// VolumeML returns the running volume, or nil when no tap calibration has
// been seen yet.
func (f *Flow) VolumeML() *float64 { return f.volumeML }

func (f *Flow) String() string {
	return fmt.Sprintf("<Flow 0x%08x: meter_name=%s ticks=%d username=%q max_idle=%s>",
		f.flowID, f.meterName, f.totalTicks, f.boundUsername, f.maxIdle)
}
