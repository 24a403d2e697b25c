// Package influxdb records switch state changes in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Each state change
// becomes one point in the switch_state measurement:
//
//	switch_state,entity_id=porch,source=feedback on=1i
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	registry.AddObserver(client)
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are non-blocking and
// batched according to batch_size and flush_interval; write failures are
// delivered to the SetOnError callback.
package influxdb
