// Package mqtt provides the MQTT message bus connectivity for the
// Rachio bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The bridge publishes valve device state and events onto the bus and
// accepts valve commands from it, so the bridge plugs into an existing
// home-automation MQTT deployment without any HTTP coupling.
//
//	Automation host ↔ MQTT Broker ↔ Rachio bridge ↔ vendor cloud
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        return dispatch(topic, payload)
//	    })
package mqtt
