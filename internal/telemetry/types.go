package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// timeFormat matches the hierarchy tables so range bounds compare lexically.
const timeFormat = "2006-01-02T15:04:05.000000Z"

// Event is one accepted reading of a device.
type Event struct {
	ID        string    `json:"id"`
	Device    string    `json:"device"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"createdAt"`
}

// Reading is a value reported by an external producer for the device with
// the given external uuid.
type Reading struct {
	UUID  string `json:"uuid"`
	Value Value  `json:"value"`
}

// Value is a reading value. It decodes from a JSON string or number and is
// kept in its textual form.
type Value string

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil || n == "" {
		return fmt.Errorf("value must be a string or a number, got %s", data)
	}
	*v = Value(n.String())
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
