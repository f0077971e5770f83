package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/WVandergrift/rachio-bridge/internal/device"
	"github.com/WVandergrift/rachio-bridge/internal/infrastructure/mqtt"
	"github.com/WVandergrift/rachio-bridge/internal/valve"
)

// commandTimeout bounds a single valve command round trip to the
// vendor cloud, including the bridge-side dispatch.
const commandTimeout = 20 * time.Second

// MQTTClient is the interface for MQTT operations.
// Satisfied by *mqtt.Client; mocked in tests.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options holds the dependencies for creating a bridge.
type Options struct {
	// MQTT is the bus client. Required.
	MQTT MQTTClient

	// Provider hands out valve facades by device id. Required.
	Provider *valve.Provider

	// Registry is the device registry. Required.
	Registry *device.Registry

	// Logger is optional structured logging.
	Logger Logger

	// QoS for published messages. Defaults to 1.
	QoS byte
}

// Bridge relays between the MQTT bus and the valve facades.
//
// Commands flow bus -> facade -> cloud; state and lifecycle events flow
// registry -> bus. All methods are safe for concurrent use.
type Bridge struct {
	mqtt     MQTTClient
	provider *valve.Provider
	registry *device.Registry
	logger   Logger
	qos      byte

	topics mqtt.Topics

	ctx       context.Context
	ctxCancel context.CancelFunc
	stopOnce  sync.Once
}

// New creates a bridge from options. MQTT, Provider, and Registry are
// required.
func New(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("bridge: MQTT client is required")
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("bridge: facade provider is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("bridge: device registry is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	qos := opts.QoS
	if qos == 0 {
		qos = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		mqtt:      opts.MQTT,
		provider:  opts.Provider,
		registry:  opts.Registry,
		logger:    logger,
		qos:       qos,
		ctx:       ctx,
		ctxCancel: cancel,
	}, nil
}

// Start subscribes to command topics, hooks registry events onto the
// bus, and publishes retained state for every known device so bus
// subscribers see the current inventory immediately.
func (b *Bridge) Start(ctx context.Context) error {
	commandTopic := b.topics.AllDeviceCommands()
	if err := b.mqtt.Subscribe(commandTopic, b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}

	b.registry.Subscribe(b.handleRegistryEvent)

	for _, d := range b.registry.List(ctx) {
		b.publishState(d)
	}

	b.logger.Info("bridge started", "command_topic", commandTopic)
	return nil
}

// Stop cancels in-flight command handling. The MQTT client itself is
// owned and closed by the caller.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()
		b.logger.Info("bridge stopped")
	})
}

// handleCommand processes one inbound command message.
//
// Unknown devices and malformed payloads are rejected with a nack; a
// command topic that doesn't parse is dropped with a log line since
// there is no device to ack against.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	deviceID, ok := b.topics.CommandDeviceID(topic)
	if !ok {
		return fmt.Errorf("unrecognised command topic %q", topic)
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	if _, err := b.registry.Get(ctx, deviceID); err != nil {
		b.publishAck(newAck(deviceID, "unknown", fmt.Errorf("unknown device %s", deviceID)))
		return nil
	}

	var msg CommandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.publishAck(newAck(deviceID, "unknown", fmt.Errorf("invalid payload: %w", err)))
		return nil
	}

	facade := b.provider.Get(deviceID)

	var command string
	var err error
	if msg.On {
		command = "turn_on"
		err = facade.TurnOnFor(ctx, msg.DurationSeconds)
	} else {
		command = "turn_off"
		err = facade.TurnOff(ctx)
	}

	if err != nil {
		b.logger.Warn("command dispatch failed",
			"device_id", deviceID,
			"command", command,
			"error", err,
		)
	} else {
		b.logger.Debug("command dispatched", "device_id", deviceID, "command", command)
	}

	b.publishAck(newAck(deviceID, command, err))
	return nil
}

// handleRegistryEvent relays registry changes onto the bus.
func (b *Bridge) handleRegistryEvent(ev device.Event) {
	switch ev.Type {
	case device.EventRemoved:
		// Clear the retained state so new subscribers don't see a
		// ghost device.
		topic := b.topics.DeviceState(ev.Device.ID)
		if err := b.mqtt.Publish(topic, nil, b.qos, true); err != nil {
			b.logger.Warn("clearing retained state failed", "device_id", ev.Device.ID, "error", err)
		}
	default:
		b.publishState(ev.Device)
	}

	b.publishEvent(ev)
}

// publishState publishes the retained state snapshot for a device.
func (b *Bridge) publishState(d device.Device) {
	payload, err := json.Marshal(newStateMessage(d))
	if err != nil {
		b.logger.Error("marshaling state failed", "device_id", d.ID, "error", err)
		return
	}

	topic := b.topics.DeviceState(d.ID)
	if err := b.mqtt.Publish(topic, payload, b.qos, true); err != nil {
		b.logger.Warn("publishing state failed", "device_id", d.ID, "error", err)
	}
}

// publishEvent publishes a registry lifecycle event.
func (b *Bridge) publishEvent(ev device.Event) {
	msg := EventMessage{
		Type:      string(ev.Type),
		Device:    ev.Device,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("marshaling event failed", "type", ev.Type, "error", err)
		return
	}

	topic := b.topics.Event(string(ev.Type))
	if err := b.mqtt.Publish(topic, payload, b.qos, false); err != nil {
		b.logger.Warn("publishing event failed", "type", ev.Type, "error", err)
	}
}

// publishAck publishes a command acknowledgement.
func (b *Bridge) publishAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logger.Error("marshaling ack failed", "device_id", ack.DeviceID, "error", err)
		return
	}

	topic := b.topics.DeviceAck(ack.DeviceID)
	if err := b.mqtt.Publish(topic, payload, b.qos, false); err != nil {
		b.logger.Warn("publishing ack failed", "device_id", ack.DeviceID, "error", err)
	}
}
