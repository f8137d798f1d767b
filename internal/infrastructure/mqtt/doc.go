// Package mqtt provides the MQTT client used by the channel-access
// gateway transport.
//
// The gateway mirrors EPICS process variables onto MQTT: every PV update
// is published retained to epics/value/{pv}, and writes are requested by
// publishing to epics/put/{pv}. This package wraps paho.mqtt.golang with
// connection management, tracked re-subscription after reconnect, Last
// Will and Testament status, and panic-safe message handlers.
//
// The epics package builds its gateway Conn on top of this client; nothing
// here knows about state tables or devices.
package mqtt
