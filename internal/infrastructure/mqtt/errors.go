package mqtt

import "errors"

// Sentinel errors for MQTT operations. Use errors.Is() to check for them.
var (
	ErrNotConnected = errors.New("mqtt: client not connected")

	ErrConnectionFailed = errors.New("mqtt: connection failed")

	ErrPublishFailed = errors.New("mqtt: publish failed")

	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned for QoS levels other than 0, 1 or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
