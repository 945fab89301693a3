package mqtt

import "strings"

// TopicPrefix is the root of every Gray Logic topic.
const TopicPrefix = "graylogic"

// Topics builds bridge topics using the flat scheme
// graylogic/{category}/{protocol}/{address}.
//
//	topics := mqtt.Topics{}
//	topics.BridgeState("systemair", "ahu-loft")
//	// "graylogic/state/systemair/ahu-loft"
type Topics struct{}

// BridgeState is where a bridge publishes device state.
func (Topics) BridgeState(protocol, address string) string {
	return join("state", protocol, address)
}

// BridgeCommand is where a bridge receives device commands.
func (Topics) BridgeCommand(protocol, address string) string {
	return join("command", protocol, address)
}

// BridgeAck is where a bridge acknowledges commands.
func (Topics) BridgeAck(protocol, address string) string {
	return join("ack", protocol, address)
}

// BridgeHealth is where a bridge publishes its health.
func (Topics) BridgeHealth(protocol string) string {
	return join("health", protocol)
}

// AllBridgeCommands matches every command for protocol.
func (Topics) AllBridgeCommands(protocol string) string {
	return join("command", protocol, "#")
}

// ValidatePublishTopic rejects empty topics and topics containing wildcards.
func ValidatePublishTopic(topic string) error {
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return ErrInvalidTopic
	}
	return nil
}

func join(parts ...string) string {
	return TopicPrefix + "/" + strings.Join(parts, "/")
}
