package screenlogic

import (
	"encoding/json"
	"fmt"
	"time"
)

// Protocol is the protocol identifier carried in every MQTT message.
const Protocol = "screenlogic"

// CommandMessage asks the bridge to switch a circuit.
// Topic: graylogic/command/screenlogic/{key}
type CommandMessage struct {
	// ID correlates the command with its acknowledgement.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the registry key. When empty the topic key is used.
	DeviceID string `json:"device_id"`

	// Command is "on", "off" or "toggle".
	Command string `json:"command"`

	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated.
	Source string `json:"source"`
}

// AckStatus is the outcome reported for a command.
type AckStatus string

const (
	// AckAccepted means the controller acknowledged the command.
	AckAccepted AckStatus = "accepted"

	// AckFailed means the command could not be executed.
	AckFailed AckStatus = "failed"

	// AckTimeout means the controller did not answer in time.
	AckTimeout AckStatus = "timeout"
)

// AckMessage acknowledges a command.
// Topic: graylogic/ack/screenlogic/{key}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError carries failure details.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeTimeout           = "TIMEOUT"
)

// StateMessage publishes the latest value of one device.
// Topic: graylogic/state/screenlogic/{key}
// QoS: 1, Retained: Yes
type StateMessage struct {
	DeviceID  string         `json:"device_id"`
	Timestamp time.Time      `json:"timestamp"`
	State     map[string]any `json:"state"`
	Protocol  string         `json:"protocol"`
}

// HealthStatus is the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports bridge status.
// Topic: graylogic/health/screenlogic
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge         string            `json:"bridge"`
	Timestamp      time.Time         `json:"timestamp"`
	Status         HealthStatus      `json:"status"`
	Version        string            `json:"version"`
	UptimeSeconds  int64             `json:"uptime_seconds"`
	Gateway        *GatewayStatus    `json:"gateway,omitempty"`
	Statistics     *BridgeStatistics `json:"statistics,omitempty"`
	DevicesManaged int               `json:"devices_managed"`
	Reason         string            `json:"reason,omitempty"`
}

// GatewayStatus describes the controller as last seen.
type GatewayStatus struct {
	// Status is "reachable" or "unreachable".
	Status string `json:"status"`

	Address     string     `json:"address,omitempty"`
	Firmware    string     `json:"firmware,omitempty"`
	LastRefresh *time.Time `json:"last_refresh,omitempty"`
}

// BridgeStatistics contains operational counters.
type BridgeStatistics struct {
	Refreshes uint64 `json:"refreshes"`
	Commands  uint64 `json:"commands"`
	Errors    uint64 `json:"errors"`
}

// MarshalJSON writes the timestamp in RFC 3339.
func (m *CommandMessage) MarshalJSON() ([]byte, error) {
	type Alias CommandMessage
	return json.Marshal(&struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias:     (*Alias)(m),
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
	})
}

// UnmarshalJSON accepts an RFC 3339 timestamp or none.
func (m *CommandMessage) UnmarshalJSON(data []byte) error {
	type Alias CommandMessage
	aux := &struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("unmarshal command message: %w", err)
	}
	if aux.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parse timestamp: %w", err)
		}
		m.Timestamp = t
	}
	return nil
}

// NewAckMessage creates a successful acknowledgement.
func NewAckMessage(cmd CommandMessage, status AckStatus) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    status,
		Protocol:  Protocol,
	}
}

// NewAckError creates a failed acknowledgement.
func NewAckError(cmd CommandMessage, code, message string) AckMessage {
	status := AckFailed
	if code == ErrCodeTimeout {
		status = AckTimeout
	}
	msg := NewAckMessage(cmd, status)
	msg.Error = &AckError{Code: code, Message: message}
	return msg
}

// NewStateMessage builds the state message for a device.
func NewStateMessage(d Device) StateMessage {
	r := d.Reading()
	state := map[string]any{
		"name":  d.Name(),
		"kind":  d.Kind().String(),
		"state": d.State(),
		"raw":   r.Raw,
	}
	if r.Unit != "" {
		state["unit"] = r.Unit
	}
	if r.Kind == KindSensor {
		state["value"] = r.Float()
	}
	if sw, ok := d.(*Switch); ok {
		state["on"] = sw.IsOn()
	}

	return StateMessage{
		DeviceID:  d.Key(),
		Timestamp: time.Now().UTC(),
		State:     state,
		Protocol:  Protocol,
	}
}

// NewLWTMessage creates the Last Will and Testament health message.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}

// LWTPayload encodes the Last Will and Testament message for bridgeID.
// The broker publishes it retained on HealthTopic when the bridge drops
// off without a clean disconnect.
func LWTPayload(bridgeID string) ([]byte, error) {
	return json.Marshal(NewLWTMessage(bridgeID))
}

// TopicPrefix is the base topic for all Gray Logic messages.
const TopicPrefix = "graylogic"

// CommandTopic returns the command topic for a device key.
// Example: graylogic/command/screenlogic/502
func CommandTopic(key string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, Protocol, key)
}

// AckTopic returns the acknowledgement topic for a device key.
func AckTopic(key string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, Protocol, key)
}

// StateTopic returns the state topic for a device key.
// Example: graylogic/state/screenlogic/air_temperature
func StateTopic(key string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, Protocol, key)
}

// HealthTopic returns the health topic.
func HealthTopic() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, Protocol)
}

// CommandSubscribeTopic returns the subscription pattern for all commands.
func CommandSubscribeTopic() string {
	return fmt.Sprintf("%s/command/%s/#", TopicPrefix, Protocol)
}
