package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// measurementReadings holds one point per ingested device event.
const measurementReadings = "device_readings"

// Reading is one device event as mirrored to InfluxDB.
type Reading struct {
	DeviceID   string
	DeviceUUID string
	DeviceType string
	SiteID     string
	BuildingID string
	FloorID    string
	Value      string
	Time       time.Time
}

// readingPoint tags the point with the device and its location. Numeric
// values are stored in the float field "value", anything else in
// "value_text".
func readingPoint(r Reading) *write.Point {
	tags := map[string]string{
		"device_id":   r.DeviceID,
		"device_uuid": r.DeviceUUID,
	}
	for k, v := range map[string]string{
		"type":        r.DeviceType,
		"site_id":     r.SiteID,
		"building_id": r.BuildingID,
		"floor_id":    r.FloorID,
	} {
		if v != "" {
			tags[k] = v
		}
	}

	fields := map[string]any{}
	if f, err := strconv.ParseFloat(r.Value, 64); err == nil {
		fields["value"] = f
	} else {
		fields["value_text"] = r.Value
	}

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(measurementReadings, tags, fields, ts)
}

// WriteReading queues a reading for the next batch. Dropped silently
// when the client is closed.
func (c *Client) WriteReading(r Reading) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(readingPoint(r))
}
