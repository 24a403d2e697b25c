package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-switch/internal/entity"
)

// MeasurementSwitchState is the measurement switch state changes are written to.
const MeasurementSwitchState = "switch_state"

// SwitchStatePoint builds the point for one state change: tags entity_id and
// source, integer field "on" (1 or 0), timestamped at the change.
func SwitchStatePoint(change entity.StateChange) *write.Point {
	on := int64(0)
	if change.On {
		on = 1
	}

	ts := change.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return write.NewPoint(
		MeasurementSwitchState,
		map[string]string{
			"entity_id": change.EntityID,
			"source":    change.Source,
		},
		map[string]interface{}{
			"on": on,
		},
		ts,
	)
}

// WriteSwitchState queues a state change for writing.
func (c *Client) WriteSwitchState(change entity.StateChange) {
	if c.closed.Load() {
		return
	}
	c.writeAPI.WritePoint(SwitchStatePoint(change))
}

// OnStateChange lets the client observe an entity.Registry directly.
func (c *Client) OnStateChange(change entity.StateChange) {
	c.WriteSwitchState(change)
}
