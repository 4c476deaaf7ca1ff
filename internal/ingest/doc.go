// Package ingest connects external producers to the telemetry ingestor.
//
// Three producers feed readings ({"uuid": "...", "value": ...}) in:
//
//   - Subscriber listens on an MQTT topic pattern (facility/ingest/+ by default)
//   - Poller fetches a JSON array of readings from a sensor controller over HTTP
//   - the API webhook handlers decode request bodies with DecodeReadings
//
// Producers are trusted. A reading whose uuid matches no device is logged
// and skipped; it never stops the rest of a batch.
package ingest
