package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-weather/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-weather/internal/sensor"
)

// subscribeQoS is used for every inbound subscription.
const subscribeQoS = 1

// Bridge translates inbound MQTT sensor messages into sensor events and
// hands them to a Handler.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt      MQTTClient
	topics    mqtt.Topics
	handler   Handler
	validator *Validator
	now       func() time.Time

	subscribed []string
	subMu      sync.Mutex

	received atomic.Uint64
	rejected atomic.Uint64
	failed   atomic.Uint64

	// Shutdown coordination
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// MQTTClient is the subset of the MQTT client the bridge needs.
// *mqtt.Client satisfies it.
type MQTTClient interface {
	SubscribeSensors(kind string, qos byte, handler mqtt.SensorHandler) (string, error)
	Unsubscribe(topic string) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Handler consumes decoded sensor events.
type Handler interface {
	HandleAdded(ctx context.Context, ev sensor.Added) error
	HandleUpdated(ctx context.Context, ev sensor.Updated) error
	HandleStatus(ctx context.Context, ev sensor.StatusChanged) error
}

// Options holds configuration for creating a bridge.
type Options struct {
	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// Topics builds and parses topic names.
	Topics mqtt.Topics

	// Handler receives every decoded event.
	Handler Handler

	// Logger is optional structured logger.
	Logger Logger
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if opts.Topics.Prefix() == "" {
		opts.Topics = mqtt.NewTopics("")
	}

	validator, err := NewValidator()
	if err != nil {
		return nil, err
	}

	ctx, ctxCancel := context.WithCancel(context.Background())
	return &Bridge{
		mqtt:      opts.MQTTClient,
		topics:    opts.Topics,
		handler:   opts.Handler,
		validator: validator,
		now:       time.Now,
		ctx:       ctx,
		ctxCancel: ctxCancel,
		logger:    opts.Logger,
	}, nil
}

// Start subscribes to the added, reading and status topics of all sensors.
// Added is subscribed first so retained announcements arrive before the
// readings that refer to them.
func (b *Bridge) Start(ctx context.Context) error {
	for _, kind := range []string{mqtt.KindAdded, mqtt.KindStatus, mqtt.KindReading} {
		if err := ctx.Err(); err != nil {
			return err
		}
		topic, err := b.mqtt.SubscribeSensors(kind, subscribeQoS, b.handleMessage)
		if err != nil {
			return fmt.Errorf("subscribe to %s: %w", kind, err)
		}
		b.subMu.Lock()
		b.subscribed = append(b.subscribed, topic)
		b.subMu.Unlock()
		b.logInfo("subscribed", "topic", topic)
	}

	b.logInfo("bridge started", "prefix", b.topics.Prefix())
	return nil
}

// Stop unsubscribes and cancels in-flight handler calls.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()

		b.subMu.Lock()
		topics := b.subscribed
		b.subscribed = nil
		b.subMu.Unlock()

		for _, topic := range topics {
			if err := b.mqtt.Unsubscribe(topic); err != nil {
				b.logError("unsubscribe failed", err)
			}
		}
		b.logInfo("bridge stopped")
	})
}

// handleMessage routes one inbound sensor message to the handler.
func (b *Bridge) handleMessage(sensorID, kind string, payload []byte) error {
	b.received.Add(1)

	topic := b.topics.Sensor(sensorID, kind)
	if len(payload) == 0 {
		// Retained message cleared by a publisher.
		b.logDebug("ignoring empty payload", "topic", topic)
		return nil
	}
	if err := b.validator.Validate(kind, payload); err != nil {
		b.rejected.Add(1)
		return fmt.Errorf("%s: %w", topic, err)
	}

	var err error
	switch kind {
	case mqtt.KindAdded:
		err = b.handleAdded(sensorID, payload)
	case mqtt.KindReading:
		err = b.handleReading(sensorID, payload)
	case mqtt.KindStatus:
		err = b.handleStatus(sensorID, payload)
	}
	if err != nil {
		b.failed.Add(1)
		return fmt.Errorf("%s: %w", topic, err)
	}
	return nil
}

func (b *Bridge) handleAdded(sensorID string, payload []byte) error {
	var msg AddedMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	s := msg.toSensor(sensorID)
	b.logDebug("sensor announced", "sensor_id", sensorID, "measurements", len(s.Measurements))
	return b.handler.HandleAdded(b.ctx, sensor.Added{Sensor: *s})
}

func (b *Bridge) handleReading(sensorID string, payload []byte) error {
	var msg ReadingMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	updates, err := msg.toUpdates(sensorID, b.now())
	if err != nil {
		return err
	}

	var errs []error
	for _, u := range updates {
		if err := b.handler.HandleUpdated(b.ctx, u); err != nil {
			errs = append(errs, fmt.Errorf("measurement %s: %w", u.MeasurementID, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Bridge) handleStatus(sensorID string, payload []byte) error {
	var msg StatusMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return b.handler.HandleStatus(b.ctx, msg.toStatus(sensorID))
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// Metrics contains counters for the API metrics endpoint.
type Metrics struct {
	MessagesReceived uint64 `json:"messages_received"`
	MessagesRejected uint64 `json:"messages_rejected"`
	HandlerErrors    uint64 `json:"handler_errors"`
}

// GetMetrics returns current bridge counters.
func (b *Bridge) GetMetrics() Metrics {
	return Metrics{
		MessagesReceived: b.received.Load(),
		MessagesRejected: b.rejected.Load(),
		HandlerErrors:    b.failed.Load(),
	}
}
