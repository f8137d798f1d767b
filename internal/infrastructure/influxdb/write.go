package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteStateTransition records a composite-state transition for a device.
//
// This is the primary archiver method: every time a device's derived
// state changes (gate valve opens, stopper inserts), one point lands in
// the "state_transitions" measurement. The write is non-blocking; data
// is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Unique identifier for the device
//   - fromState: Composite label before the transition
//   - toState: Composite label after the transition
//
// Example:
//
//	client.WriteStateTransition("vgc-sb2-01", "closed", "open")
func (c *Client) WriteStateTransition(deviceID, fromState, toState string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"state_transitions",
		map[string]string{
			"device_id": deviceID,
			"to_state":  toState,
		},
		map[string]interface{}{
			"from_state": fromState,
			// A constant field makes transition counts a simple sum().
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePVSample records a numeric sample of a single process variable.
//
// Used for trending raw readbacks (limit switches, readback indices)
// alongside the derived states.
//
// Parameters:
//   - pv: Full PV name (e.g., "XCS:SB2:VGC:01:OPN_SW")
//   - value: The numeric value to record
func (c *Client) WritePVSample(pv string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"pv_samples",
		map[string]string{
			"pv": pv,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
