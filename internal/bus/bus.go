// Package bus implements the in-process event hub.
//
// The hub is a typed publish/subscribe queue: producers enqueue events from
// any goroutine, and a single dispatch worker drains the queue, invoking
// every subscriber registered for the concrete event type. Dispatch is
// strictly FIFO in publish order; all subscribers of one event run before
// the next event is dispatched.
package bus

import (
	"runtime/debug"
	"sync"
	"time"

	"kegnet.io/kegcore/internal/event"
	"kegnet.io/kegcore/internal/log"
	"kegnet.io/kegcore/internal/metrics"
)

// Handler processes one dispatched event.
type Handler func(ev event.Event)

// Binding associates an event wire name with a handler. Managers expose
// their bindings as a list consumed once during wiring.
type Binding struct {
	Event   string
	Handler Handler
}

// Subscription is the handle returned by Subscribe, used to unsubscribe.
type Subscription struct {
	eventName string
	handler   Handler
	id        uint64
}

// Stats is a snapshot of hub counters.
type Stats struct {
	Published   uint64
	Dispatched  uint64
	Queued      int
	Subscribers int
}

// EventHub is the central event queue of the core.
type EventHub struct {
	mu     sync.Mutex
	queue  []event.Event
	wake   chan struct{}
	closed bool

	subMu  sync.RWMutex
	subs   map[string][]*Subscription
	nextID uint64

	published  uint64
	dispatched uint64

	logger log.Logger
}

// New creates an empty hub. The queue is unbounded: publishers never block,
// at the cost of memory under sustained subscriber stall.
func New() *EventHub {
	return &EventHub{
		wake:   make(chan struct{}, 1),
		subs:   make(map[string][]*Subscription),
		logger: log.GetLogger().WithField("component", "eventhub"),
	}
}

// Subscribe registers a handler for the given event wire name and returns a
// handle for Unsubscribe. Registering the same handle twice is not possible;
// each call creates a distinct subscription.
func (h *EventHub) Subscribe(eventName string, handler Handler) *Subscription {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	h.nextID++
	sub := &Subscription{eventName: eventName, handler: handler, id: h.nextID}
	h.subs[eventName] = append(h.subs[eventName], sub)
	return sub
}

// SubscribeAll registers every binding in the list.
func (h *EventHub) SubscribeAll(bindings []Binding) {
	for _, b := range bindings {
		h.Subscribe(b.Event, b.Handler)
	}
}

// Unsubscribe removes a subscription. Removing one that is absent (or already
// removed) is tolerated.
func (h *EventHub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.subMu.Lock()
	defer h.subMu.Unlock()
	list := h.subs[sub.eventName]
	for i, s := range list {
		if s.id == sub.id {
			h.subs[sub.eventName] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Publish appends an event to the queue. It never blocks.
func (h *EventHub) Publish(ev event.Event) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		h.logger.WithField("event", ev.EventName()).Debug("hub closed, dropping event")
		return
	}
	h.queue = append(h.queue, ev)
	h.published++
	h.mu.Unlock()

	metrics.EventsPublishedTotal.WithLabelValues(ev.EventName()).Inc()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// DispatchNext dequeues up to one event within the timeout and synchronously
// invokes every subscriber for its type. It reports whether an event was
// dispatched.
func (h *EventHub) DispatchNext(timeout time.Duration) bool {
	ev := h.pop()
	if ev == nil {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-h.wake:
			ev = h.pop()
		case <-timer.C:
			return false
		}
	}
	if ev == nil {
		return false
	}
	h.dispatch(ev)
	return true
}

// Flush dispatches all currently queued events and returns the count.
func (h *EventHub) Flush() int {
	count := 0
	for {
		ev := h.pop()
		if ev == nil {
			return count
		}
		h.dispatch(ev)
		count++
	}
}

// Close marks the hub closed; subsequent publishes are dropped.
func (h *EventHub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
}

// Stats returns a snapshot of hub counters.
func (h *EventHub) Stats() Stats {
	h.mu.Lock()
	queued := len(h.queue)
	published := h.published
	dispatched := h.dispatched
	h.mu.Unlock()

	h.subMu.RLock()
	subscribers := 0
	for _, list := range h.subs {
		subscribers += len(list)
	}
	h.subMu.RUnlock()

	return Stats{
		Published:   published,
		Dispatched:  dispatched,
		Queued:      queued,
		Subscribers: subscribers,
	}
}

func (h *EventHub) pop() event.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.queue) == 0 {
		return nil
	}
	ev := h.queue[0]
	h.queue = h.queue[1:]
	return ev
}

func (h *EventHub) dispatch(ev event.Event) {
	name := ev.EventName()

	h.subMu.RLock()
	list := make([]*Subscription, len(h.subs[name]))
	copy(list, h.subs[name])
	h.subMu.RUnlock()

	for _, sub := range list {
		h.invoke(sub, ev)
	}

	h.mu.Lock()
	h.dispatched++
	h.mu.Unlock()
	metrics.EventsDispatchedTotal.WithLabelValues(name).Inc()
}

// invoke runs one subscriber, isolating the rest from its panics.
func (h *EventHub) invoke(sub *Subscription, ev event.Event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.DispatchErrorsTotal.WithLabelValues(ev.EventName()).Inc()
			h.logger.WithFields(map[string]interface{}{
				"event": ev.EventName(),
				"panic": r,
			}).Errorf("subscriber panicked: %s", debug.Stack())
		}
	}()
	sub.handler(ev)
}
