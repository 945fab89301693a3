// Package telemetry turns coordinator cycle reports into InfluxDB points.
package telemetry

import (
	"time"

	"github.com/nerrad567/gray-logic-systemair/internal/coordinator"
	"github.com/nerrad567/gray-logic-systemair/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-systemair/internal/systemair"
)

// Writer is the subset of *influxdb.Client used here.
type Writer interface {
	WriteRegisterSample(s influxdb.RegisterSample, at time.Time)
	WriteCycleSample(s influxdb.CycleSample, at time.Time)
}

// Recorder writes a cycle sample for every report and one register sample
// per value the unit returned.
type Recorder struct {
	writer Writer
	table  *systemair.Table
	unitID string
}

// NewRecorder creates a recorder that resolves register names through table.
func NewRecorder(writer Writer, table *systemair.Table, unitID string) *Recorder {
	return &Recorder{writer: writer, table: table, unitID: unitID}
}

// OnCycle implements coordinator.Listener.
func (r *Recorder) OnCycle(rep coordinator.Report) {
	r.writer.WriteCycleSample(influxdb.CycleSample{
		UnitID:        r.unitID,
		Trigger:       string(rep.Trigger),
		Success:       rep.Err == nil,
		Wrote:         rep.Result.Wrote,
		WriteAccepted: rep.Result.WriteAccepted,
		Duration:      rep.Result.Duration,
	}, rep.At)

	if rep.Err != nil {
		return
	}

	for _, id := range r.table.IDs() {
		raw, ok := rep.Result.Values[id]
		if !ok {
			continue
		}
		reg, _ := r.table.Register(id)
		r.writer.WriteRegisterSample(influxdb.RegisterSample{
			UnitID:   r.unitID,
			Register: string(id),
			Property: reg.Property,
			Raw:      raw,
			Value:    r.table.RawToSemantic(id, raw),
		}, rep.At)
	}
}

var _ coordinator.Listener = (*Recorder)(nil)
