// Package mqtt provides MQTT client connectivity for the pool bridge.
//
// This package manages:
//   - Connection to the Mosquitto broker with auto-reconnect
//   - Publishing with QoS and retain control
//   - Wildcard subscriptions that are restored after reconnects
//   - An optional Last Will so consumers see the bridge go offline
//
// # Architecture
//
// The bridge publishes retained pool device state and health, and
// accepts switch commands, over the Gray Logic bus:
//
//	ScreenLogic gateway ↔ poolbridge ↔ MQTT broker ↔ Gray Logic Core
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.WithWill(will))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.BridgeCommands("screenlogic"), 1, handler)
package mqtt
