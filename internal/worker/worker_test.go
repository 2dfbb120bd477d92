package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kegnet.io/kegcore/internal/backend"
	"kegnet.io/kegcore/internal/bus"
	"kegnet.io/kegcore/internal/event"
)

// blockingWorker runs until cancelled, or exits immediately when dieFast.
type blockingWorker struct {
	name    string
	dieFast bool
}

func (w *blockingWorker) Name() string { return w.name }

func (w *blockingWorker) Run(ctx context.Context) {
	if w.dieFast {
		return
	}
	<-ctx.Done()
}

func TestRegistryTracksLiveness(t *testing.T) {
	r := NewRegistry()
	r.Add(&blockingWorker{name: "healthy"})

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)

	assert.Empty(t, r.DeadWorker())

	cancel()
	r.Wait()
	assert.Equal(t, "healthy", r.DeadWorker())
}

func TestWatchdogDetectsDeadWorker(t *testing.T) {
	r := NewRegistry()
	r.Add(&blockingWorker{name: "doomed", dieFast: true})

	hub := bus.New()
	quits := 0
	hub.Subscribe("QuitEvent", func(event.Event) { quits++ })

	var fatalName atomic.Value
	wd := NewWatchdog(r, hub, func(name string) { fatalName.Store(name) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	done := make(chan struct{})
	go func() {
		wd.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("watchdog did not fire")
	}

	assert.Equal(t, "doomed", fatalName.Load())
	hub.Flush()
	assert.Equal(t, 1, quits)
}

func TestHeartbeatPublishesSecondsAndMinutes(t *testing.T) {
	hub := bus.New()
	clock := clockwork.NewFakeClock()
	w := NewHeartbeatWorker(hub, clock, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	clock.BlockUntil(1)
	for i := 1; i <= 60; i++ {
		clock.Advance(time.Second)
		// Pace the advances so no tick is coalesced away.
		want := uint64(i)
		if i == 60 {
			want++ // the minute beat rides on the 60th second
		}
		require.Eventually(t, func() bool {
			return hub.Stats().Published >= want
		}, 3*time.Second, time.Millisecond)
	}

	seconds, minutes := 0, 0
	hub.Subscribe("HeartbeatSecondEvent", func(event.Event) { seconds++ })
	hub.Subscribe("HeartbeatMinuteEvent", func(event.Event) { minutes++ })
	hub.Flush()

	assert.Equal(t, 60, seconds)
	assert.Equal(t, 1, minutes)
}

// fakeSyncBackend implements backend.Client for sync worker tests.
type fakeSyncBackend struct {
	status map[string]interface{}
	err    error
}

func (f *fakeSyncBackend) GetStatus() (map[string]interface{}, error) { return f.status, f.err }
func (f *fakeSyncBackend) GetAllTaps() ([]backend.TapDescriptor, error) { return nil, nil }
func (f *fakeSyncBackend) RecordDrink(backend.DrinkRequest) (*backend.Drink, error) {
	return nil, nil
}
func (f *fakeSyncBackend) CancelDrink(uint64, bool) error                       { return nil }
func (f *fakeSyncBackend) LogSensorReading(string, float64, time.Time) error    { return nil }
func (f *fakeSyncBackend) GetAuthToken(string, string) (*backend.AuthToken, error) {
	return nil, &backend.Error{Kind: backend.KindNotFound, Op: "get_auth_token"}
}
func (f *fakeSyncBackend) CreateController(string) (*backend.Controller, error) { return nil, nil }
func (f *fakeSyncBackend) CreateFlowMeter(uint64, string) error                 { return nil }

func TestSyncPublishesStatus(t *testing.T) {
	hub := bus.New()
	be := &fakeSyncBackend{status: map[string]interface{}{
		"current_session": map[string]interface{}{"id": 1},
		"taps":            []interface{}{},
	}}
	w := NewSyncWorker(hub, be, clockwork.NewFakeClock())

	var synced []*event.SyncEvent
	hub.Subscribe("SyncEvent", func(ev event.Event) {
		synced = append(synced, ev.(*event.SyncEvent))
	})

	status := w.SyncNow()
	hub.Flush()

	require.NotNil(t, status)
	require.Len(t, synced, 1)
	assert.NotNil(t, synced[0].Data["current_session"])
}

func TestSyncFailureSkipsCycle(t *testing.T) {
	hub := bus.New()
	be := &fakeSyncBackend{err: &backend.Error{Kind: backend.KindTransport, Op: "get_status"}}
	w := NewSyncWorker(hub, be, clockwork.NewFakeClock())

	published := false
	hub.Subscribe("SyncEvent", func(event.Event) { published = true })

	assert.Nil(t, w.SyncNow())
	hub.Flush()
	assert.False(t, published, "a failed sync publishes nothing")
}

func TestDispatchWorkerDrainsQueue(t *testing.T) {
	hub := bus.New()

	got := make(chan event.Event, 10)
	hub.Subscribe("Ping", func(ev event.Event) { got <- ev })

	w := NewDispatchWorker(hub)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	hub.Publish(&event.Ping{})
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch worker did not deliver")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch worker did not stop on cancel")
	}
}
