// Package influxdb mirrors device readings into InfluxDB v2.
//
// Each accepted event becomes one point of the device_readings
// measurement, tagged with the device id, uuid, type and the site,
// building and floor it sits in. SQLite stays the system of record; the
// mirror serves dashboards and long range queries.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without the mirror
//	}
//	client.SetOnError(func(err error) { logger.Warn("influx write", "error", err) })
//	client.WriteReading(influxdb.Reading{DeviceID: id, DeviceUUID: uuid, Value: "21.5"})
package influxdb
