package telemetry

import (
	"context"

	"github.com/nerrad567/facility-core/internal/hierarchy"
	"github.com/nerrad567/facility-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/facility-core/internal/infrastructure/mqtt"
)

// Notice is what sinks receive for every accepted reading.
type Notice struct {
	Event  Event
	Device hierarchy.Device
}

// Sink receives accepted events after they are stored. Delivery is best
// effort: errors are logged by the ingestor and never undo the event.
type Sink interface {
	Deliver(ctx context.Context, n Notice) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notice) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, n Notice) error { return f(ctx, n) }

// ReadingWriter is satisfied by *influxdb.Client.
type ReadingWriter interface {
	WriteReading(r influxdb.Reading)
}

// InfluxSink mirrors events as device_readings points.
func InfluxSink(w ReadingWriter) Sink {
	return SinkFunc(func(_ context.Context, n Notice) error {
		w.WriteReading(influxdb.Reading{
			DeviceID:   n.Device.ID,
			DeviceUUID: n.Device.UUID,
			DeviceType: n.Device.Type,
			SiteID:     n.Device.Site.ID,
			BuildingID: n.Device.Building.ID,
			FloorID:    n.Device.Floor.ID,
			Value:      n.Event.Value,
			Time:       n.Event.CreatedAt,
		})
		return nil
	})
}

// StreamPublisher is satisfied by *redisstream.Publisher.
type StreamPublisher interface {
	Publish(ctx context.Context, fields map[string]string) (string, error)
}

// StreamSink appends every event to a Redis stream.
func StreamSink(p StreamPublisher) Sink {
	return SinkFunc(func(ctx context.Context, n Notice) error {
		_, err := p.Publish(ctx, map[string]string{
			"event_id":    n.Event.ID,
			"device_id":   n.Device.ID,
			"device_uuid": n.Device.UUID,
			"site_id":     n.Device.Site.ID,
			"value":       n.Event.Value,
			"created_at":  formatTime(n.Event.CreatedAt),
		})
		return err
	})
}

// JSONPublisher is satisfied by *mqtt.Client.
type JSONPublisher interface {
	PublishJSON(topic string, v any) error
}

// MQTTSink republishes events on the device's events topic.
func MQTTSink(p JSONPublisher) Sink {
	return SinkFunc(func(_ context.Context, n Notice) error {
		return p.PublishJSON(mqtt.Topics{}.DeviceEvents(n.Device.UUID), n.Event)
	})
}
