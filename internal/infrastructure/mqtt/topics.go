package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every Gray Logic topic.
//
// Bridge topics use the flat scheme graylogic/{category}/{protocol}/{address}.
const TopicPrefix = "graylogic"

// Topics provides builders for Gray Logic bridge topics.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.BridgeState("screenlogic", "ph")
//	// Returns: "graylogic/state/screenlogic/ph"
type Topics struct{}

// BridgeState returns the topic for device state updates from a bridge.
func (Topics) BridgeState(protocol, address string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, protocol, address)
}

// BridgeCommand returns the topic for commands to one bridge device.
func (Topics) BridgeCommand(protocol, address string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, protocol, address)
}

// BridgeCommands returns the wildcard filter covering every device command
// for a bridge.
func (Topics) BridgeCommands(protocol string) string {
	return fmt.Sprintf("%s/command/%s/#", TopicPrefix, protocol)
}

// BridgeAck returns the topic for command acknowledgements from a bridge.
func (Topics) BridgeAck(protocol, address string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, protocol, address)
}

// BridgeHealth returns the topic for bridge health status.
func (Topics) BridgeHealth(protocol string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, protocol)
}

// Match reports whether topic matches the subscription filter, honouring
// the + and # wildcards.
func Match(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")

	for i, f := range fp {
		if f == "#" {
			return i == len(fp)-1
		}
		if i >= len(tp) {
			return false
		}
		if f != "+" && f != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}
