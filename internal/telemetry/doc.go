// Package telemetry stores device events and ingests readings from
// external producers.
//
// Ingest is the only writer: it matches a reading to a device by its
// external uuid, updates the device value, appends an event, counts the
// point on the device's site, building and floor, then notifies sinks
// (InfluxDB mirror, Redis stream, MQTT fan-out, websocket subscribers).
// Sinks are best effort.
package telemetry
