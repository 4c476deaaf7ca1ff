package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/facility-core/internal/hierarchy"
)

// DeviceStore is the device surface ingestion needs. *hierarchy.Devices
// satisfies it.
type DeviceStore interface {
	LookupByUUID(ctx context.Context, deviceUUID string) (*hierarchy.Device, error)
	SetValue(ctx context.Context, id, value string) error
}

// Counters is satisfied by *hierarchy.Stats.
type Counters interface {
	IncreaseStats(ctx context.Context, kind hierarchy.Kind, id string, field hierarchy.CounterField) error
}

// Ingestor accepts readings from external producers. Producers are
// trusted: a reading is matched to its device by uuid alone, without any
// principal.
type Ingestor struct {
	devices DeviceStore
	stats   Counters
	events  *Repository
	sinks   []Sink
	logger  hierarchy.Logger
	now     func() time.Time
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithSinks adds sinks notified of every accepted event.
func WithSinks(sinks ...Sink) IngestorOption {
	return func(i *Ingestor) { i.sinks = append(i.sinks, sinks...) }
}

// WithLogger sets the logger for sink failures.
func WithLogger(logger hierarchy.Logger) IngestorOption {
	return func(i *Ingestor) { i.logger = logger }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) IngestorOption {
	return func(i *Ingestor) { i.now = now }
}

// NewIngestor creates an ingestor.
func NewIngestor(devices DeviceStore, stats Counters, events *Repository, opts ...IngestorOption) *Ingestor {
	i := &Ingestor{
		devices: devices,
		stats:   stats,
		events:  events,
		logger:  nopLogger{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// AddSink registers a sink after construction, e.g. the websocket hub
// created by the API server.
func (i *Ingestor) AddSink(s Sink) {
	i.sinks = append(i.sinks, s)
}

// pointsHolders are the ancestors that count a device's events.
var pointsHolders = []struct {
	kind hierarchy.Kind
	id   func(*hierarchy.Device) string
}{
	{hierarchy.KindSite, func(d *hierarchy.Device) string { return d.Site.ID }},
	{hierarchy.KindBuilding, func(d *hierarchy.Device) string { return d.Building.ID }},
	{hierarchy.KindFloor, func(d *hierarchy.Device) string { return d.Floor.ID }},
}

// Ingest stores a reading: the device's value is updated, an event is
// appended and the pointsCount of its site, building and floor grows by
// one. An unknown uuid returns hierarchy.ErrNotFound and stores nothing.
func (i *Ingestor) Ingest(ctx context.Context, r Reading) (*Event, error) {
	deviceUUID := strings.TrimSpace(r.UUID)
	if deviceUUID == "" {
		return nil, fmt.Errorf("%w: reading uuid is required", hierarchy.ErrValidation)
	}
	if r.Value == "" {
		return nil, fmt.Errorf("%w: reading value is required", hierarchy.ErrValidation)
	}

	dev, err := i.devices.LookupByUUID(ctx, deviceUUID)
	if err != nil {
		return nil, err
	}

	value := string(r.Value)
	if err := i.devices.SetValue(ctx, dev.ID, value); err != nil {
		return nil, err
	}
	ev, err := i.events.Append(ctx, dev.ID, value, i.now())
	if err != nil {
		return nil, err
	}
	for _, h := range pointsHolders {
		id := h.id(dev)
		if id == "" {
			continue
		}
		if err := i.stats.IncreaseStats(ctx, h.kind, id, hierarchy.PointsCount); err != nil {
			return nil, err
		}
	}

	dev.Value = value
	notice := Notice{Event: *ev, Device: *dev}
	for _, s := range i.sinks {
		if err := s.Deliver(ctx, notice); err != nil {
			i.logger.Warn("event sink failed", "device_uuid", dev.UUID, "event_id", ev.ID, "error", err)
		}
	}
	return ev, nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
