package core

import (
	"sync"
	"time"

	"kegnet.io/kegcore/internal/backend"
	"kegnet.io/kegcore/internal/bus"
	"kegnet.io/kegcore/internal/event"
)

// collector records every event dispatched for a set of event names.
type collector struct {
	mu     sync.Mutex
	events []event.Event
}

func collect(hub *bus.EventHub, names ...string) *collector {
	c := &collector{}
	for _, name := range names {
		hub.Subscribe(name, func(ev event.Event) {
			c.mu.Lock()
			c.events = append(c.events, ev)
			c.mu.Unlock()
		})
	}
	return c
}

func (c *collector) all() []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]event.Event(nil), c.events...)
}

func (c *collector) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// flowUpdates filters collected events down to FlowUpdates.
func (c *collector) flowUpdates() []*event.FlowUpdate {
	var updates []*event.FlowUpdate
	for _, ev := range c.all() {
		if fu, ok := ev.(*event.FlowUpdate); ok {
			updates = append(updates, fu)
		}
	}
	return updates
}

// relayEvents filters collected events down to SetRelayOutputEvents.
func (c *collector) relayEvents() []*event.SetRelayOutputEvent {
	var relays []*event.SetRelayOutputEvent
	for _, ev := range c.all() {
		if re, ok := ev.(*event.SetRelayOutputEvent); ok {
			relays = append(relays, re)
		}
	}
	return relays
}

// fakeBackend implements backend.Client with per-method hooks. Methods
// without a hook succeed with zero values.
type fakeBackend struct {
	mu sync.Mutex

	statusFn      func() (map[string]interface{}, error)
	recordDrinkFn func(req backend.DrinkRequest) (*backend.Drink, error)
	sensorFn      func(name string, value float64, when time.Time) error
	tokenFn       func(device, value string) (*backend.AuthToken, error)
	controllerFn  func(name string) (*backend.Controller, error)

	recordedDrinks []backend.DrinkRequest
	sensorReadings []string
}

func (f *fakeBackend) GetStatus() (map[string]interface{}, error) {
	if f.statusFn != nil {
		return f.statusFn()
	}
	return map[string]interface{}{}, nil
}

func (f *fakeBackend) GetAllTaps() ([]backend.TapDescriptor, error) {
	return nil, nil
}

func (f *fakeBackend) RecordDrink(req backend.DrinkRequest) (*backend.Drink, error) {
	f.mu.Lock()
	f.recordedDrinks = append(f.recordedDrinks, req)
	f.mu.Unlock()
	if f.recordDrinkFn != nil {
		return f.recordDrinkFn(req)
	}
	return &backend.Drink{ID: 1, Ticks: req.Ticks, Username: req.Username}, nil
}

func (f *fakeBackend) CancelDrink(drinkID uint64, spilled bool) error { return nil }

func (f *fakeBackend) LogSensorReading(name string, value float64, when time.Time) error {
	f.mu.Lock()
	f.sensorReadings = append(f.sensorReadings, name)
	f.mu.Unlock()
	if f.sensorFn != nil {
		return f.sensorFn(name, value, when)
	}
	return nil
}

func (f *fakeBackend) GetAuthToken(device, value string) (*backend.AuthToken, error) {
	if f.tokenFn != nil {
		return f.tokenFn(device, value)
	}
	return nil, &backend.Error{Kind: backend.KindNotFound, Op: "get_auth_token"}
}

func (f *fakeBackend) CreateController(name string) (*backend.Controller, error) {
	if f.controllerFn != nil {
		return f.controllerFn(name)
	}
	return &backend.Controller{ID: 1, Name: name}, nil
}

func (f *fakeBackend) CreateFlowMeter(controllerID uint64, name string) error { return nil }

func (f *fakeBackend) drinkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recordedDrinks)
}
