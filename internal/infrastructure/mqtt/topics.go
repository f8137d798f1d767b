package mqtt

import "fmt"

// Topic prefixes for the channel-access gateway scheme.
//
// The gateway bridges EPICS Channel Access to MQTT with one topic per
// process variable. PV names (e.g. "XCS:SB2:VGC:01:OPN_SW") never contain
// '/' so they are safe as a single topic level.
const (
	// TopicPrefixValue is the base for monitor/value topics. The gateway
	// publishes every PV update here, retained, so new subscribers see the
	// current value immediately.
	TopicPrefixValue = "epics/value"

	// TopicPrefixPut is the base for put-request topics. Clients publish
	// here; the gateway forwards the write to the IOC.
	TopicPrefixPut = "epics/put"

	// TopicPrefixSystem is the base for core/gateway status topics.
	TopicPrefixSystem = "epics/system"
)

// Topics provides builders for gateway MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	t := topics.Value("XCS:SB2:VGC:01:OPN_SW")
//	// Returns: "epics/value/XCS:SB2:VGC:01:OPN_SW"
type Topics struct{}

// Value returns the monitor topic for a PV.
//
// Example: epics/value/XCS:SB2:VGC:01:OPN_SW
func (Topics) Value(pv string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixValue, pv)
}

// Put returns the put-request topic for a PV.
//
// Example: epics/put/XCS:SB2:VGC:01:OPN_SW
func (Topics) Put(pv string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixPut, pv)
}

// SystemStatus returns the core status topic (online/offline, LWT).
//
// Example: epics/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllValues returns a pattern matching every PV monitor topic.
//
// Pattern: epics/value/+
func (Topics) AllValues() string {
	return fmt.Sprintf("%s/+", TopicPrefixValue)
}

// AllPuts returns a pattern matching every put-request topic.
//
// Pattern: epics/put/+
func (Topics) AllPuts() string {
	return fmt.Sprintf("%s/+", TopicPrefixPut)
}

// PVFromValueTopic extracts the PV name from a monitor topic.
// Returns the empty string if the topic is not a value topic.
func PVFromValueTopic(topic string) string {
	prefix := TopicPrefixValue + "/"
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return ""
	}
	return topic[len(prefix):]
}

// PVFromPutTopic extracts the PV name from a put-request topic.
// Returns the empty string if the topic is not a put topic.
func PVFromPutTopic(topic string) string {
	prefix := TopicPrefixPut + "/"
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return ""
	}
	return topic[len(prefix):]
}
