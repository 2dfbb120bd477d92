// Package event defines the core event vocabulary and its JSON wire envelope.
//
// Every message exchanged on the hub or the kegnet channel is one of the
// concrete types below. Each type carries a fixed schema; fields are validated
// at decode time by the standard JSON machinery rather than by ad-hoc
// attribute injection.
package event

// Event is implemented by every message that can travel through the hub or
// the kegnet channel.
type Event interface {
	// EventName returns the wire name used in the JSON envelope.
	EventName() string
}

// Flow states carried by FlowUpdate.
const (
	FlowStateActive    = "active"
	FlowStateIdle      = "idle"
	FlowStateCompleted = "completed"
)

// Token states carried by TokenAuthEvent.
const (
	TokenAdded   = "added"
	TokenRemoved = "removed"
)

// Relay output modes carried by SetRelayOutputEvent.
const (
	RelayEnabled  = "enabled"
	RelayDisabled = "disabled"
)

// Flow request actions carried by FlowRequest.
const (
	RequestStartFlow    = "start_flow"
	RequestStopFlow     = "stop_flow"
	RequestReportStatus = "report_status"
)

// MeterUpdate reports an instantaneous raw tick reading from a flow meter.
type MeterUpdate struct {
	MeterName string `json:"meter_name"`
	Reading   uint64 `json:"reading"`
}

func (MeterUpdate) EventName() string { return "MeterUpdate" }

// FlowUpdate describes the current state of a flow. A FlowUpdate with state
// "completed" is terminal for its flow id.
type FlowUpdate struct {
	FlowID           uint64   `json:"flow_id"`
	MeterName        string   `json:"meter_name"`
	State            string   `json:"state"`
	Username         string   `json:"username,omitempty"`
	StartTime        UnixTime `json:"start_time"`
	LastActivityTime UnixTime `json:"last_activity_time"`
	Ticks            uint64   `json:"ticks"`
	VolumeML         *float64 `json:"volume_ml,omitempty"`
}

func (FlowUpdate) EventName() string { return "FlowUpdate" }

// DrinkCreatedEvent announces that a completed flow has been recorded as a
// drink on the backend.
type DrinkCreatedEvent struct {
	FlowID    uint64   `json:"flow_id"`
	DrinkID   uint64   `json:"drink_id"`
	MeterName string   `json:"meter_name"`
	StartTime UnixTime `json:"start_time"`
	EndTime   UnixTime `json:"end_time"`
	Username  string   `json:"username,omitempty"`
}

func (DrinkCreatedEvent) EventName() string { return "DrinkCreatedEvent" }

// TokenAuthEvent reports an authentication token being presented to or
// removed from a reader.
type TokenAuthEvent struct {
	MeterName      string `json:"meter_name"`
	AuthDeviceName string `json:"auth_device_name"`
	TokenValue     string `json:"token_value"`
	Status         string `json:"status"`
}

func (TokenAuthEvent) EventName() string { return "TokenAuthEvent" }

// ThermoEvent reports a temperature sensor reading in degrees C.
type ThermoEvent struct {
	SensorName  string  `json:"sensor_name"`
	SensorValue float64 `json:"sensor_value"`
}

func (ThermoEvent) EventName() string { return "ThermoEvent" }

// FlowRequest asks the core to start or stop a flow, or to report the status
// of all active flows.
type FlowRequest struct {
	MeterName string `json:"meter_name"`
	Request   string `json:"request"`
}

func (FlowRequest) EventName() string { return "FlowRequest" }

// ControllerConnectedEvent reports a hardware controller coming online.
type ControllerConnectedEvent struct {
	ControllerName string `json:"controller_name"`
}

func (ControllerConnectedEvent) EventName() string { return "ControllerConnectedEvent" }

// SetRelayOutputEvent instructs a controller to switch a relay output.
type SetRelayOutputEvent struct {
	OutputName string `json:"output_name"`
	OutputMode string `json:"output_mode"`
}

func (SetRelayOutputEvent) EventName() string { return "SetRelayOutputEvent" }

// SyncEvent carries an opaque status payload from the periodic backend sync.
// The payload shape is owned by the backend; consumers pick out the parts
// they understand (the tap manager reads the "taps" list).
type SyncEvent struct {
	Data map[string]interface{} `json:"data"`
}

func (SyncEvent) EventName() string { return "SyncEvent" }

// HeartbeatSecondEvent fires once per second.
type HeartbeatSecondEvent struct{}

func (HeartbeatSecondEvent) EventName() string { return "HeartbeatSecondEvent" }

// HeartbeatMinuteEvent fires once per minute.
type HeartbeatMinuteEvent struct{}

func (HeartbeatMinuteEvent) EventName() string { return "HeartbeatMinuteEvent" }

// Ping is a liveness probe with no payload.
type Ping struct{}

func (Ping) EventName() string { return "Ping" }

// StartedEvent is published once when the core finishes starting up.
type StartedEvent struct{}

func (StartedEvent) EventName() string { return "StartedEvent" }

// QuitEvent asks every worker to shut down.
type QuitEvent struct{}

func (QuitEvent) EventName() string { return "QuitEvent" }
