package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownEvent is returned by Decode for event names this core does not
// recognise. Callers are expected to skip such messages so that newer devices
// can speak to an older core.
var ErrUnknownEvent = errors.New("unknown event name")

// envelope is the wire framing shared by all events:
//
//	{"event": "<EventName>", "data": {...}}
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// decoders maps wire names to constructors for the concrete types.
var decoders = map[string]func() Event{
	"MeterUpdate":              func() Event { return &MeterUpdate{} },
	"FlowUpdate":               func() Event { return &FlowUpdate{} },
	"DrinkCreatedEvent":        func() Event { return &DrinkCreatedEvent{} },
	"TokenAuthEvent":           func() Event { return &TokenAuthEvent{} },
	"ThermoEvent":              func() Event { return &ThermoEvent{} },
	"FlowRequest":              func() Event { return &FlowRequest{} },
	"ControllerConnectedEvent": func() Event { return &ControllerConnectedEvent{} },
	"SetRelayOutputEvent":      func() Event { return &SetRelayOutputEvent{} },
	"SyncEvent":                func() Event { return &SyncEvent{} },
	"HeartbeatSecondEvent":     func() Event { return &HeartbeatSecondEvent{} },
	"HeartbeatMinuteEvent":     func() Event { return &HeartbeatMinuteEvent{} },
	"Ping":                     func() Event { return &Ping{} },
	"StartedEvent":             func() Event { return &StartedEvent{} },
	"QuitEvent":                func() Event { return &QuitEvent{} },
}

// Encode serialises an event into its JSON envelope.
func Encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.EventName(), err)
	}
	return json.Marshal(envelope{Event: ev.EventName(), Data: data})
}

// Decode parses a JSON envelope into its concrete event type. Unknown event
// names yield ErrUnknownEvent; malformed payloads yield a decode error.
func Decode(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	ctor, ok := decoders[env.Event]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	ev := ctor()
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
	}
	return ev, nil
}
