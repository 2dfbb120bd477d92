// Package kegnet bridges the in-process event hub to the external pub/sub
// channel that device daemons and UI consumers speak.
//
// The transport is a single Redis pub/sub channel carrying the JSON event
// envelope. Inbound messages decode into hub events; a selected set of hub
// events is re-published outbound. The channel is telemetry-grade: dropped
// messages are tolerated in both directions.
package kegnet

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"kegnet.io/kegcore/internal/event"
	"kegnet.io/kegcore/internal/log"
	"kegnet.io/kegcore/internal/metrics"
)

// DefaultChannel is the conventional channel name.
const DefaultChannel = "kegnet"

// DefaultReconnectDelay is the pause between subscribe attempts after a
// connection failure.
const DefaultReconnectDelay = 5 * time.Second

// Client speaks the kegnet protocol over one Redis channel. It is used by
// the core's bridge and doubles as the client surface for device daemons
// and tests.
type Client struct {
	rdb            *redis.Client
	channel        string
	reconnectDelay time.Duration
	logger         log.Logger
}

// NewClient connects to the broker at addr and speaks on the named channel.
// An empty channel selects DefaultChannel.
func NewClient(addr, channel string, reconnectDelay time.Duration) *Client {
	if channel == "" {
		channel = DefaultChannel
	}
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	return &Client{
		rdb:            redis.NewClient(&redis.Options{Addr: addr}),
		channel:        channel,
		reconnectDelay: reconnectDelay,
		logger:         log.GetLogger().WithField("component", "kegnet"),
	}
}

// Close releases the broker connection.
func (c *Client) Close() error { return c.rdb.Close() }

// Ping tests the liveness of the broker connection.
func (c *Client) Ping(ctx context.Context) bool {
	return c.rdb.Ping(ctx).Err() == nil
}

// Send publishes one event to the channel. Publish failures are logged and
// the message dropped; downstream consumers are telemetry sinks, not
// critical.
func (c *Client) Send(ctx context.Context, ev event.Event) {
	payload, err := event.Encode(ev)
	if err != nil {
		c.logger.WithError(err).Errorf("cannot encode %s, dropping message", ev.EventName())
		return
	}
	if err := c.rdb.Publish(ctx, c.channel, payload).Err(); err != nil {
		c.logger.WithError(err).Warnf("connection unavailable, dropping message: %s", ev.EventName())
		return
	}
	metrics.BrokerMessagesTotal.WithLabelValues("outbound").Inc()
}

// Listen subscribes to the channel and hands every decoded event to
// handler, reconnecting with a delay on connection failure. It returns when
// ctx is cancelled. Unknown event names are skipped for forward
// compatibility.
func (c *Client) Listen(ctx context.Context, handler func(event.Event)) {
	for {
		if err := c.listenOnce(ctx, handler); err != nil {
			c.logger.WithError(err).Warn("error listening")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectDelay):
			metrics.BrokerReconnectsTotal.Inc()
		}
	}
}

func (c *Client) listenOnce(ctx context.Context, handler func(event.Event)) error {
	pubsub := c.rdb.Subscribe(ctx, c.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before consuming.
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	c.logger.Infof("listening on channel %q", c.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			c.handleMessage([]byte(msg.Payload), handler)
		}
	}
}

func (c *Client) handleMessage(payload []byte, handler func(event.Event)) {
	ev, err := event.Decode(payload)
	if err != nil {
		// Forward compatibility: ignore unknown or malformed events.
		c.logger.WithError(err).Debug("ignoring message")
		return
	}
	metrics.BrokerMessagesTotal.WithLabelValues("inbound").Inc()
	handler(ev)
}

// Convenience senders used by device daemons and tests.

func (c *Client) SendControllerConnectedEvent(ctx context.Context, controllerName string) {
	c.Send(ctx, &event.ControllerConnectedEvent{ControllerName: controllerName})
}

func (c *Client) SendMeterUpdate(ctx context.Context, meterName string, reading uint64) {
	c.Send(ctx, &event.MeterUpdate{MeterName: meterName, Reading: reading})
}

func (c *Client) SendFlowStart(ctx context.Context, meterName string) {
	c.Send(ctx, &event.FlowRequest{MeterName: meterName, Request: event.RequestStartFlow})
}

func (c *Client) SendFlowStop(ctx context.Context, meterName string) {
	c.Send(ctx, &event.FlowRequest{MeterName: meterName, Request: event.RequestStopFlow})
}

func (c *Client) SendThermoUpdate(ctx context.Context, sensorName string, sensorValue float64) {
	c.Send(ctx, &event.ThermoEvent{SensorName: sensorName, SensorValue: sensorValue})
}

func (c *Client) SendAuthTokenAdd(ctx context.Context, meterName, authDevice, tokenValue string) {
	c.Send(ctx, &event.TokenAuthEvent{
		MeterName:      meterName,
		AuthDeviceName: authDevice,
		TokenValue:     tokenValue,
		Status:         event.TokenAdded,
	})
}

func (c *Client) SendAuthTokenRemove(ctx context.Context, meterName, authDevice, tokenValue string) {
	c.Send(ctx, &event.TokenAuthEvent{
		MeterName:      meterName,
		AuthDeviceName: authDevice,
		TokenValue:     tokenValue,
		Status:         event.TokenRemoved,
	})
}
