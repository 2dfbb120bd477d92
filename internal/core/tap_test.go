package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTapConversion(t *testing.T) {
	tap := NewTap("kegboard.flow0", 2.2, "relay0")

	assert.Equal(t, "kegboard.flow0", tap.Name())
	assert.Equal(t, "relay0", tap.RelayName())
	assert.InDelta(t, 2200.0, tap.TicksToMilliliters(1000), 0.001)
	assert.Zero(t, tap.TicksToMilliliters(0))
}

func TestTapEquality(t *testing.T) {
	a := NewTap("flow0", 2.2, "relay0")
	b := NewTap("flow0", 2.2, "relay0")
	c := NewTap("flow0", 3.0, "relay0")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
