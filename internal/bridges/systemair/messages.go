package systemair

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/gray-logic-systemair/internal/coordinator"
)

// Protocol is the protocol segment in every topic this bridge uses.
const Protocol = "systemair"

// Commands accepted on the command topic.
const (
	CommandSetProperty = "set_property"
	CommandSetSetpoint = "set_setpoint"
	CommandRefresh     = "refresh"
)

// CommandMessage is sent from Core to the bridge.
// Topic: graylogic/command/systemair/{unit}
type CommandMessage struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	DeviceID   string         `json:"device_id"`
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Source     string         `json:"source,omitempty"`
}

// AckStatus is the outcome reported for a command.
type AckStatus string

const (
	// AckAccepted means the change is stored locally and a sync is pending.
	AckAccepted AckStatus = "accepted"

	// AckFailed means the command was rejected.
	AckFailed AckStatus = "failed"
)

// AckMessage acknowledges a command.
// Topic: graylogic/ack/systemair/{unit}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Address   string    `json:"address"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError describes why a command failed.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Ack error codes.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
)

// StateMessage carries the unit's state after a successful cycle.
// Topic: graylogic/state/systemair/{unit}
// QoS: 1, Retained: Yes
type StateMessage struct {
	DeviceID  string         `json:"device_id"`
	Timestamp time.Time      `json:"timestamp"`
	State     map[string]any `json:"state"`
	Protocol  string         `json:"protocol"`
	Address   string         `json:"address"`

	// Registers holds raw register values keyed by register id.
	Registers map[string]int `json:"registers"`

	// Dirty is true when local changes are still waiting to be written.
	Dirty bool `json:"dirty"`
}

// HealthStatus is the bridge's operational status.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports bridge health.
// Topic: graylogic/health/systemair
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge        string       `json:"bridge"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Version       string       `json:"version,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Unit          *UnitStatus  `json:"unit,omitempty"`
	Reason        string       `json:"reason,omitempty"`
}

// UnitStatus is the unit section of a health message.
type UnitStatus struct {
	ID        string     `json:"id"`
	Address   string     `json:"address"`
	Available bool       `json:"available"`
	LastSync  *time.Time `json:"last_sync,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// NewAckMessage creates an accepted ack for cmd.
func NewAckMessage(cmd CommandMessage, address string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    AckAccepted,
		Protocol:  Protocol,
		Address:   address,
	}
}

// NewAckError creates a failed ack for cmd.
func NewAckError(cmd CommandMessage, address, code, message string) AckMessage {
	ack := NewAckMessage(cmd, address)
	ack.Status = AckFailed
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// NewStateMessage builds a state message from a unit snapshot.
func NewStateMessage(deviceID, address string, properties map[string]int, registers map[string]int, dirty bool, at time.Time) StateMessage {
	state := make(map[string]any, len(properties))
	for k, v := range properties {
		state[k] = v
	}
	return StateMessage{
		DeviceID:  deviceID,
		Timestamp: at.UTC(),
		State:     state,
		Protocol:  Protocol,
		Address:   address,
		Registers: registers,
		Dirty:     dirty,
	}
}

// NewLWTMessage is the payload the broker publishes if the bridge vanishes.
func NewLWTMessage() HealthMessage {
	return HealthMessage{
		Bridge:    Protocol,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}

// LWTPayload returns the JSON-encoded LWT message.
func LWTPayload() []byte {
	payload, err := json.Marshal(NewLWTMessage())
	if err != nil {
		// HealthMessage always marshals.
		panic(err)
	}
	return payload
}

// unitStatusFromReport fills a UnitStatus from the last cycle, if any.
func unitStatusFromReport(id, address string, rep coordinator.Report, ok bool) *UnitStatus {
	st := &UnitStatus{ID: id, Address: address}
	if !ok {
		return st
	}
	st.Available = rep.Available
	at := rep.At.UTC()
	st.LastSync = &at
	if rep.Err != nil {
		st.LastError = rep.Err.Error()
	}
	return st
}

// intParam reads a whole-number parameter. JSON numbers decode as float64,
// so fractional values are rejected rather than truncated.
func intParam(params map[string]any, key string) (int, error) {
	raw, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("missing parameter %q", key)
	}
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, fmt.Errorf("parameter %q must be a whole number", key)
		}
		if v > math.MaxInt32 || v < math.MinInt32 {
			return 0, fmt.Errorf("parameter %q out of range", key)
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("parameter %q must be a whole number", key)
		}
		if n > math.MaxInt32 || n < math.MinInt32 {
			return 0, fmt.Errorf("parameter %q out of range", key)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("parameter %q must be a number", key)
	}
}

// stringParam reads a non-empty string parameter.
func stringParam(params map[string]any, key string) (string, error) {
	v, ok := params[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("missing parameter %q", key)
	}
	return v, nil
}
