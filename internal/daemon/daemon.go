// Package daemon assembles and runs the coordination core: configuration,
// logging, metrics, the event hub, the five managers, the kegnet bridge and
// the worker pool.
package daemon

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jonboulle/clockwork"

	"kegnet.io/kegcore/internal/backend"
	"kegnet.io/kegcore/internal/bus"
	"kegnet.io/kegcore/internal/config"
	"kegnet.io/kegcore/internal/core"
	"kegnet.io/kegcore/internal/event"
	"kegnet.io/kegcore/internal/kegnet"
	"kegnet.io/kegcore/internal/log"
	"kegnet.io/kegcore/internal/metrics"
	"kegnet.io/kegcore/internal/worker"
)

// Daemon owns the lifecycle of one core instance. Exactly one core runs per
// deployment.
type Daemon struct {
	config *config.Config

	hub           *bus.EventHub
	backend       backend.Client
	client        *kegnet.Client
	bridge        *kegnet.Bridge
	workers       *worker.Registry
	watchdog      *worker.Watchdog
	metricsServer *metrics.Server

	tapManager    *core.TapManager
	flowManager   *core.FlowManager
	authManager   *core.AuthenticationManager
	drinkManager  *core.DrinkManager
	thermoManager *core.ThermoManager

	ctx      context.Context
	cancel   context.CancelFunc
	quitOnce sync.Once
	quitCh   chan struct{}

	logger log.Logger
}

// New builds a daemon from configuration. Nothing external is touched until
// Start.
func New(cfg *config.Config) *Daemon {
	d := &Daemon{
		config: cfg,
		quitCh: make(chan struct{}),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Start wires and launches every component.
func (d *Daemon) Start() error {
	log.Init(&d.config.Log)
	d.logger = log.GetLogger().WithField("component", "daemon")
	d.logger.Info("kegcore is starting up")

	if d.config.Metrics.Enabled {
		d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
		if err := d.metricsServer.Start(); err != nil {
			return err
		}
	}

	clock := clockwork.NewRealClock()
	d.hub = bus.New()
	d.backend = backend.NewHTTPClient(d.config.API.URL, d.config.API.Key, d.config.API.Timeout)

	// Managers. Authentication reaches flows through the FlowController
	// interface; everything else communicates via the hub.
	d.tapManager = core.NewTapManager(d.hub, d.backend)
	d.flowManager = core.NewFlowManager(d.hub, d.tapManager, clock, d.config.Core.MaxMeterDelta)
	d.authManager = core.NewAuthenticationManager(d.hub, d.flowManager, d.tapManager, d.backend, d.config.Auth)
	d.drinkManager = core.NewDrinkManager(d.hub, d.backend, d.config.Core.MinVolumeToRecord)
	d.thermoManager = core.NewThermoManager(d.hub, d.backend, clock)

	d.hub.SubscribeAll(d.tapManager.Handlers())
	d.hub.SubscribeAll(d.flowManager.Handlers())
	d.hub.SubscribeAll(d.authManager.Handlers())
	d.hub.SubscribeAll(d.drinkManager.Handlers())
	d.hub.SubscribeAll(d.thermoManager.Handlers())

	// Kegnet bridge.
	d.client = kegnet.NewClient(d.config.Broker.Addr, d.config.Broker.Channel, d.config.Broker.ReconnectDelay)
	d.bridge = kegnet.NewBridge(d.client, d.hub)
	d.bridge.AttachOutbound(d.ctx)

	// A QuitEvent from anywhere (watchdog, external channel) stops the core.
	d.hub.Subscribe("QuitEvent", func(event.Event) { d.triggerQuit() })

	// Workers.
	d.workers = worker.NewRegistry()
	d.workers.Add(worker.NewDispatchWorker(d.hub))
	d.workers.Add(worker.NewHeartbeatWorker(d.hub, clock, 0))
	d.workers.Add(worker.NewSyncWorker(d.hub, d.backend, clock))
	d.workers.Add(d.bridge)
	d.workers.Start(d.ctx)

	// The watchdog runs outside the registry it watches; any unexpected
	// worker death is fatal.
	d.watchdog = worker.NewWatchdog(d.workers, d.hub, func(name string) {
		d.logger.Errorf("fatal: worker %s died, shutting down", name)
		d.triggerQuit()
	})
	go d.watchdog.Run(d.ctx)

	d.hub.Publish(&event.StartedEvent{})
	d.logger.Info("kegcore started")
	return nil
}

// Run blocks until a shutdown signal or QuitEvent arrives, then stops the
// core. SIGHUP re-applies the configured log level.
func (d *Daemon) Run() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				d.logger.Infof("received signal %s, shutting down", sig)
				d.Stop()
				return nil
			case syscall.SIGHUP:
				d.logger.Info("received reload signal")
				log.SetLevel(d.config.Log.Level)
			}
		case <-d.quitCh:
			d.logger.Info("quit requested, shutting down")
			d.Stop()
			return nil
		}
	}
}

// Stop performs a graceful shutdown: cancel workers, flush the remaining
// queue, post any pending drinks one last time, release the broker.
func (d *Daemon) Stop() {
	d.cancel()
	d.workers.Wait()

	d.hub.Flush()
	d.drinkManager.Flush()

	d.bridge.DetachOutbound()
	if err := d.client.Close(); err != nil {
		d.logger.WithError(err).Warn("error closing broker connection")
	}
	d.hub.Close()

	if d.metricsServer != nil {
		if err := d.metricsServer.Stop(context.Background()); err != nil {
			d.logger.WithError(err).Warn("error stopping metrics server")
		}
	}

	d.logger.Info("kegcore stopped")
}

func (d *Daemon) triggerQuit() {
	d.quitOnce.Do(func() { close(d.quitCh) })
}
