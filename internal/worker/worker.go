// Package worker runs the core's long-lived goroutines under a registry
// that the watchdog can inspect. Every worker observes context
// cancellation within one tick of its loop.
package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"kegnet.io/kegcore/internal/log"
)

// Worker is one long-running loop. Run must return promptly once ctx is
// cancelled.
type Worker interface {
	Name() string
	Run(ctx context.Context)
}

// entry tracks one worker's lifecycle for the watchdog.
type entry struct {
	worker  Worker
	started atomic.Bool
	done    atomic.Bool
}

// Registry starts workers and exposes their liveness.
type Registry struct {
	mu      sync.Mutex
	entries []*entry
	wg      sync.WaitGroup
	logger  log.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{logger: log.GetLogger().WithField("component", "workers")}
}

// Add registers a worker. Workers added after Start are not run.
func (r *Registry) Add(w Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, &entry{worker: w})
}

// Start launches every registered worker on its own goroutine.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	entries := r.entries
	r.mu.Unlock()

	for _, e := range entries {
		e := e
		r.wg.Add(1)
		e.started.Store(true)
		go func() {
			defer r.wg.Done()
			defer e.done.Store(true)
			r.logger.Infof("worker %s started", e.worker.Name())
			e.worker.Run(ctx)
			r.logger.Infof("worker %s stopped", e.worker.Name())
		}()
	}
}

// Wait blocks until every worker has returned.
func (r *Registry) Wait() {
	r.wg.Wait()
}

// DeadWorker returns the name of a worker that has started and then died,
// or "" when all are healthy.
func (r *Registry) DeadWorker() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.started.Load() && e.done.Load() {
			return e.worker.Name()
		}
	}
	return ""
}
