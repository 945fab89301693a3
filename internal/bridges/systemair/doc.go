// Package systemair bridges a SystemAir IAM unit onto the Gray Logic MQTT bus.
//
// The bridge is a coordinator listener: after every successful cycle it
// publishes the unit's state, retained, on
//
//	graylogic/state/systemair/{unit}
//
// and it accepts commands on graylogic/command/systemair/{unit}:
//
//	{"id":"c1","device_id":"ahu","command":"set_setpoint","parameters":{"value":21}}
//	{"id":"c2","device_id":"ahu","command":"set_property","parameters":{"property":"setpoint","value":21}}
//	{"id":"c3","device_id":"ahu","command":"refresh"}
//
// A command is applied to local state and a refresh is requested so the
// next cycle writes it. Every command with an id gets an ack on
// graylogic/ack/systemair/{unit}; the ack reports acceptance, not the
// unit's reply, which arrives later as a state message.
//
// Health is published every 30 seconds on graylogic/health/systemair.
// Use LWTPayload as the MQTT will so subscribers see "offline" when the
// process dies.
package systemair
