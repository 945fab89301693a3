// Package influxdb writes SystemAir telemetry to InfluxDB v2.
//
// Two measurements are produced:
//
//	systemair_registers  tags unit_id, register, property; fields raw, value
//	systemair_sync       tags unit_id, trigger; fields success, wrote, write_accepted, duration_ms
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteCycleSample(influxdb.CycleSample{UnitID: "ahu", Trigger: "interval", Success: true}, time.Now())
//
// Writes are non-blocking and batched per batch_size and flush_interval.
// Async write errors are delivered to the SetOnError callback.
package influxdb
