package systemair

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-systemair/internal/coordinator"
	"github.com/nerrad567/gray-logic-systemair/internal/infrastructure/mqtt"
	iam "github.com/nerrad567/gray-logic-systemair/internal/systemair"
)

const qosAtLeastOnce = 1

// MQTTClient is the MQTT surface the bridge needs. *mqtt.Client satisfies it.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Unit is the local state of the unit. *iam.Unit satisfies it.
type Unit interface {
	Set(property string, value int) error
	Snapshot() iam.Snapshot
}

// Poller drives sync cycles. *coordinator.Coordinator satisfies it.
type Poller interface {
	UnitMonitor
	RequestRefresh()
}

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	// UnitID is the device id and the address segment of every topic.
	UnitID string

	// Address is the unit's host, reported in state and health messages.
	Address string

	Version        string
	HealthInterval time.Duration

	MQTTClient MQTTClient
	Unit       Unit
	Poller     Poller
	Logger     Logger
}

// Bridge connects one unit to MQTT.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	unitID  string
	address string
	mqtt    MQTTClient
	unit    Unit
	poller  Poller
	health  *HealthReporter

	availMu       sync.Mutex
	lastAvailable *bool

	stopOnce sync.Once

	logger Logger
}

// NewBridge creates a bridge. Call Start to subscribe to commands, and
// register the bridge as a coordinator listener to publish state.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	switch {
	case opts.UnitID == "":
		return nil, fmt.Errorf("%w: unit id", ErrMissingOption)
	case opts.MQTTClient == nil:
		return nil, fmt.Errorf("%w: MQTT client", ErrMissingOption)
	case opts.Unit == nil:
		return nil, fmt.Errorf("%w: unit", ErrMissingOption)
	case opts.Poller == nil:
		return nil, fmt.Errorf("%w: poller", ErrMissingOption)
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	b := &Bridge{
		unitID:  opts.UnitID,
		address: opts.Address,
		mqtt:    opts.MQTTClient,
		unit:    opts.Unit,
		poller:  opts.Poller,
		logger:  opts.Logger,
	}
	b.health = NewHealthReporter(HealthReporterConfig{
		UnitID:    opts.UnitID,
		Address:   opts.Address,
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTTClient,
		Monitor:   opts.Poller,
	})
	b.health.SetLogger(opts.Logger)

	return b, nil
}

// Start publishes "starting", subscribes to the unit's command topic and
// starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logger.Warn("failed to publish starting status", "error", err)
	}

	topic := b.CommandTopic()
	if err := b.mqtt.Subscribe(topic, qosAtLeastOnce, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logger.Info("subscribed to commands", "topic", topic)

	b.health.Start(ctx)
	b.logger.Info("bridge started", "unit", b.unitID)
	return nil
}

// Stop ends health reporting, publishing a final "stopping" status.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.health.Stop()
		b.logger.Info("bridge stopped", "unit", b.unitID)
	})
}

// StateTopic returns graylogic/state/systemair/{unit}.
func (b *Bridge) StateTopic() string { return mqtt.Topics{}.BridgeState(Protocol, b.unitID) }

// CommandTopic returns graylogic/command/systemair/{unit}.
func (b *Bridge) CommandTopic() string { return mqtt.Topics{}.BridgeCommand(Protocol, b.unitID) }

// AckTopic returns graylogic/ack/systemair/{unit}.
func (b *Bridge) AckTopic() string { return mqtt.Topics{}.BridgeAck(Protocol, b.unitID) }

// OnCycle implements coordinator.Listener. Successful cycles publish state;
// availability changes publish health straight away.
func (b *Bridge) OnCycle(rep coordinator.Report) {
	if rep.Err == nil {
		b.publishState(rep.At)
	}

	b.availMu.Lock()
	changed := b.lastAvailable == nil || *b.lastAvailable != rep.Available
	avail := rep.Available
	b.lastAvailable = &avail
	b.availMu.Unlock()

	if changed {
		if err := b.health.PublishNow(); err != nil {
			b.logger.Warn("failed to publish health", "error", err)
		}
	}
}

func (b *Bridge) publishState(at time.Time) {
	snap := b.unit.Snapshot()

	registers := make(map[string]int, len(snap.Raw))
	for id, v := range snap.Raw {
		registers[string(id)] = v
	}

	msg := NewStateMessage(b.unitID, b.address, snap.Properties, registers, snap.Dirty, at)
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("failed to marshal state", "error", err)
		return
	}
	if err := b.mqtt.Publish(b.StateTopic(), payload, qosAtLeastOnce, true); err != nil {
		b.logger.Warn("failed to publish state", "topic", b.StateTopic(), "error", err)
	}
}

// handleCommand applies one command message. Payloads that are not JSON
// cannot be acked and are returned as errors for the client to log.
func (b *Bridge) handleCommand(_ string, payload []byte) error {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	b.logger.Info("received command", "command_id", cmd.ID, "device_id", cmd.DeviceID, "command", cmd.Command)

	if cmd.DeviceID != "" && cmd.DeviceID != b.unitID {
		b.publishAckError(cmd, ErrCodeNotConfigured, fmt.Sprintf("device %s not configured", cmd.DeviceID))
		return nil
	}

	switch cmd.Command {
	case CommandRefresh:
		b.poller.RequestRefresh()
	case CommandSetSetpoint:
		value, err := intParam(cmd.Parameters, "value")
		if err != nil {
			b.publishAckError(cmd, ErrCodeInvalidParameters, err.Error())
			return nil
		}
		if !b.applySet(cmd, iam.PropertySetpoint, value) {
			return nil
		}
	case CommandSetProperty:
		property, err := stringParam(cmd.Parameters, "property")
		if err != nil {
			b.publishAckError(cmd, ErrCodeInvalidParameters, err.Error())
			return nil
		}
		value, err := intParam(cmd.Parameters, "value")
		if err != nil {
			b.publishAckError(cmd, ErrCodeInvalidParameters, err.Error())
			return nil
		}
		if !b.applySet(cmd, property, value) {
			return nil
		}
	default:
		b.publishAckError(cmd, ErrCodeInvalidCommand, fmt.Sprintf("unknown command: %s", cmd.Command))
		return nil
	}

	b.publishAck(NewAckMessage(cmd, b.address))
	return nil
}

// applySet stores the value and requests a refresh. It acks failures itself.
func (b *Bridge) applySet(cmd CommandMessage, property string, value int) bool {
	if err := b.unit.Set(property, value); err != nil {
		code := ErrCodeInvalidParameters
		if !errors.Is(err, iam.ErrUnknownProperty) {
			code = ErrCodeInvalidCommand
		}
		b.publishAckError(cmd, code, err.Error())
		return false
	}
	b.poller.RequestRefresh()
	return true
}

func (b *Bridge) publishAckError(cmd CommandMessage, code, message string) {
	b.logger.Warn("command rejected", "command_id", cmd.ID, "code", code, "message", message)
	b.publishAck(NewAckError(cmd, b.address, code, message))
}

func (b *Bridge) publishAck(ack AckMessage) {
	if ack.CommandID == "" {
		return
	}
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logger.Error("failed to marshal ack", "error", err)
		return
	}
	if err := b.mqtt.Publish(b.AckTopic(), payload, qosAtLeastOnce, false); err != nil {
		b.logger.Warn("failed to publish ack", "error", err)
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

var _ coordinator.Listener = (*Bridge)(nil)
