package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the bridge.
const (
	MeasurementRegisters = "systemair_registers"
	MeasurementSync      = "systemair_sync"
)

// RegisterSample is one register value observed during a sync cycle.
type RegisterSample struct {
	UnitID   string
	Register string
	Property string
	Raw      int
	Value    int
}

// CycleSample summarises one sync cycle.
type CycleSample struct {
	UnitID        string
	Trigger       string
	Success       bool
	Wrote         bool
	WriteAccepted bool
	Duration      time.Duration
}

// WriteRegisterSample records both the raw register value and its scaled
// semantic value. The write is batched.
//
//	client.WriteRegisterSample(influxdb.RegisterSample{
//	    UnitID: "ahu", Register: "2000", Property: "setpoint", Raw: 215, Value: 21,
//	}, time.Now())
func (c *Client) WriteRegisterSample(s RegisterSample, at time.Time) {
	c.WritePointWithTime(MeasurementRegisters,
		map[string]string{
			"unit_id":  s.UnitID,
			"register": s.Register,
			"property": s.Property,
		},
		map[string]interface{}{
			"raw":   s.Raw,
			"value": s.Value,
		},
		at,
	)
}

// WriteCycleSample records the outcome of a sync cycle.
func (c *Client) WriteCycleSample(s CycleSample, at time.Time) {
	c.WritePointWithTime(MeasurementSync,
		map[string]string{
			"unit_id": s.UnitID,
			"trigger": s.Trigger,
		},
		map[string]interface{}{
			"success":        s.Success,
			"wrote":          s.Wrote,
			"write_accepted": s.WriteAccepted,
			"duration_ms":    s.Duration.Milliseconds(),
		},
		at,
	)
}

// WritePoint writes a custom point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point. Dropped silently when the
// client is not connected.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
