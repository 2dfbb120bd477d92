// Package core implements the five cooperating managers of the coordination
// core: taps, flows, authentication, drinks and thermo telemetry.
//
// Managers do not reference each other directly; they are independent
// subscribers on the same event hub and communicate through published
// events. The one direct call path (authentication → flow) goes through the
// FlowController interface.
package core

// MinVolumeToRecord is the smallest pour, in mL, worth recording as a drink.
const MinVolumeToRecord = 10.0

// MaxMeterReadingDelta is the largest difference between consecutive meter
// readings considered valid.
const MaxMeterReadingDelta = 2200 * 2

// Thermo sensor clamp range, degrees C.
const (
	ThermoSensorMin = -20.0
	ThermoSensorMax = 80.0
)

// AliasAllTaps is the wildcard meter name meaning "apply to every
// registered tap".
const AliasAllTaps = "__all_taps__"

// Well-known auth device names.
const (
	AuthDeviceOneWire     = "core.onewire"
	AuthDeviceRFID        = "core.rfid"
	AuthDevicePhidgetRFID = "contrib.phidget.rfid"
	authDeviceDefault     = "default"
)

// defaultCaptive marks whether an auth device physically retains its token
// and reliably signals removal. Removal on a captive device ends the flow
// immediately; removal on a contactless device is ignored and the flow ends
// by idle timeout.
var defaultCaptive = map[string]bool{
	AuthDeviceOneWire: true,
	AuthDeviceRFID:    false,
	authDeviceDefault: true,
}

// defaultMaxIdleSecs is the idle timeout applied to flows started by each
// auth device. Contactless devices get a shorter timeout since token removal
// cannot be observed.
var defaultMaxIdleSecs = map[string]int{
	AuthDeviceOneWire: 120,
	AuthDeviceRFID:    20,
	authDeviceDefault: 10,
}

// defaultDeviceAliases maps equivalent auth device names onto their
// canonical policy key.
var defaultDeviceAliases = map[string]string{
	AuthDevicePhidgetRFID: AuthDeviceRFID,
}
