package core

import "fmt"

// Tap describes a single fluid path: a meter name, its calibration and the
// relay (if any) gating its valve. Taps are immutable after registration;
// any change is a replace.
type Tap struct {
	name      string
	mlPerTick float64
	relayName string
}

// NewTap builds a tap value.
func NewTap(name string, mlPerTick float64, relayName string) Tap {
	return Tap{name: name, mlPerTick: mlPerTick, relayName: relayName}
}

func (t Tap) Name() string       { return t.name }
func (t Tap) MLPerTick() float64 { return t.mlPerTick }
func (t Tap) RelayName() string  { return t.relayName }

// TicksToMilliliters converts a tick count using this tap's calibration.
func (t Tap) TicksToMilliliters(ticks uint64) float64 {
	return t.mlPerTick * float64(ticks)
}

func (t Tap) String() string {
	return fmt.Sprintf("<Tap name=%s ml_per_tick=%g relay_name=%s>", t.name, t.mlPerTick, t.relayName)
}
