package mqtt

import "fmt"

// Topic prefixes.
const (
	// TopicPrefix is the base of every facility topic.
	TopicPrefix = "facility"

	// TopicPrefixSystem is the base for process status topics.
	TopicPrefixSystem = "facility/system"
)

// Topics builds facility MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.DeviceEvents("boiler-temp-01")
//	// Returns: "facility/devices/boiler-temp-01/events"
type Topics struct{}

// IngestReadings is the subscription pattern for readings pushed by
// sensor controllers, one topic level per source.
//
// Pattern: facility/ingest/+
func (Topics) IngestReadings() string {
	return fmt.Sprintf("%s/ingest/+", TopicPrefix)
}

// DeviceEvents returns the topic accepted events of one device are
// published to, keyed by the device's external uuid.
//
// Example: facility/devices/boiler-temp-01/events
func (Topics) DeviceEvents(deviceUUID string) string {
	return fmt.Sprintf("%s/devices/%s/events", TopicPrefix, deviceUUID)
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: facility/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}
