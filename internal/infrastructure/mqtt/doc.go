// Package mqtt wraps the Eclipse Paho client for the SystemAir bridge.
//
// It adds subscription tracking (restored after reconnect), panic-safe
// handlers, publish validation, and topic builders for the Gray Logic flat
// scheme:
//
//	graylogic/state/systemair/{unit}     retained unit state
//	graylogic/command/systemair/{unit}   commands to the unit
//	graylogic/ack/systemair/{unit}       command acknowledgements
//	graylogic/health/systemair           retained bridge health, also the LWT
//
// Usage:
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT, &mqtt.Will{Topic: topic, Payload: offline, QoS: 1, Retained: true})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
package mqtt
