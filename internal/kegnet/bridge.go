package kegnet

import (
	"context"
	"sync"

	"kegnet.io/kegcore/internal/bus"
	"kegnet.io/kegcore/internal/event"
	"kegnet.io/kegcore/internal/log"
)

// outboundEvents is the set of hub event types re-published to external
// consumers. Internal coordination events (heartbeats, quit) stay inside.
var outboundEvents = []string{
	"MeterUpdate",
	"ThermoEvent",
	"TokenAuthEvent",
	"FlowUpdate",
	"DrinkCreatedEvent",
	"SetRelayOutputEvent",
	"ControllerConnectedEvent",
}

// Bridge wires the event hub to a kegnet Client in both directions. Events
// that arrived from the channel are tracked so they are not echoed back out.
type Bridge struct {
	client *Client
	hub    *bus.EventHub
	subs   []*bus.Subscription

	mu       sync.Mutex
	inflight map[event.Event]struct{}

	logger log.Logger
}

// NewBridge builds a bridge; call AttachOutbound before starting dispatch
// and run Run (inbound side) on its own worker.
func NewBridge(client *Client, hub *bus.EventHub) *Bridge {
	return &Bridge{
		client:   client,
		hub:      hub,
		inflight: make(map[event.Event]struct{}),
		logger:   log.GetLogger().WithField("component", "bridge"),
	}
}

// AttachOutbound subscribes the bridge to every externally visible event
// type. Subscribers run on the dispatch worker; Send never blocks beyond
// the broker write.
func (b *Bridge) AttachOutbound(ctx context.Context) {
	for _, name := range outboundEvents {
		sub := b.hub.Subscribe(name, func(ev event.Event) {
			if b.fromChannel(ev) {
				return
			}
			b.client.Send(ctx, ev)
		})
		b.subs = append(b.subs, sub)
	}
}

// DetachOutbound removes the outbound subscriptions.
func (b *Bridge) DetachOutbound() {
	for _, sub := range b.subs {
		b.hub.Unsubscribe(sub)
	}
	b.subs = nil
}

// Name implements worker.Worker.
func (b *Bridge) Name() string { return "kegnet-bridge" }

// Run is the inbound side: it listens on the broker channel and publishes
// every decoded event into the hub until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) {
	b.client.Listen(ctx, func(ev event.Event) {
		b.mu.Lock()
		b.inflight[ev] = struct{}{}
		b.mu.Unlock()
		b.hub.Publish(ev)
	})
}

// fromChannel reports (and forgets) whether ev was injected by the inbound
// side of this bridge.
func (b *Bridge) fromChannel(ev event.Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.inflight[ev]; ok {
		delete(b.inflight, ev)
		return true
	}
	return false
}
