package hierarchy

import (
	"context"
	"fmt"
)

// CounterField names a denormalized count maintained on a parent entity.
type CounterField string

// Counter fields. JSON names are used at the API boundary.
const (
	SiteCount     CounterField = "siteCount"
	BuildingCount CounterField = "buildingCount"
	FloorCount    CounterField = "floorCount"
	RoomCount     CounterField = "roomCount"
	DeviceCount   CounterField = "deviceCount"
	PointsCount   CounterField = "pointsCount"
)

var counterColumns = map[CounterField]string{
	SiteCount:     "site_count",
	BuildingCount: "building_count",
	FloorCount:    "floor_count",
	RoomCount:     "room_count",
	DeviceCount:   "device_count",
	PointsCount:   "points_count",
}

// counterRegistry lists the fields each kind accepts. Devices are leaves.
var counterRegistry = map[Kind][]CounterField{
	KindOrganization: {SiteCount, DeviceCount},
	KindSite:         {BuildingCount, DeviceCount, PointsCount},
	KindBuilding:     {FloorCount, DeviceCount, PointsCount},
	KindFloor:        {RoomCount, DeviceCount, PointsCount},
	KindRoom:         {DeviceCount},
	KindDevice:       nil,
}

// childCounters maps a kind to the field its parent uses to count it.
var childCounters = map[Kind]CounterField{
	KindSite:     SiteCount,
	KindBuilding: BuildingCount,
	KindFloor:    FloorCount,
	KindRoom:     RoomCount,
	KindDevice:   DeviceCount,
}

// Allows reports whether field is registered for kind.
func Allows(kind Kind, field CounterField) bool {
	for _, f := range counterRegistry[kind] {
		if f == field {
			return true
		}
	}
	return false
}

// ChildCounter returns the parent's field counting entities of kind.
func ChildCounter(kind Kind) (CounterField, bool) {
	f, ok := childCounters[kind]
	return f, ok
}

// Stats mutates counters with single-statement relative updates, so
// concurrent siblings never lose an increment.
type Stats struct {
	db DB
}

// NewStats creates a counter mutator.
func NewStats(db DB) *Stats {
	return &Stats{db: db}
}

// IncreaseStats adds one to field on the entity.
func (s *Stats) IncreaseStats(ctx context.Context, kind Kind, id string, field CounterField) error {
	return s.AdjustStats(ctx, kind, id, field, 1)
}

// DecreaseStats subtracts one from field on the entity.
func (s *Stats) DecreaseStats(ctx context.Context, kind Kind, id string, field CounterField) error {
	return s.AdjustStats(ctx, kind, id, field, -1)
}

// AdjustStats adds delta to field on the entity. A missing row is not an
// error: a concurrent cascade may already have removed it.
func (s *Stats) AdjustStats(ctx context.Context, kind Kind, id string, field CounterField, delta int) error {
	if !Allows(kind, field) {
		return fmt.Errorf("%w: %s on %s", ErrUnknownCounter, field, kind)
	}
	if delta == 0 {
		return nil
	}
	col := counterColumns[field]
	query := "UPDATE " + kind.Table() + " SET " + col + " = " + col + " + ? WHERE id = ?"
	if _, err := s.db.ExecContext(ctx, query, delta, id); err != nil {
		return fmt.Errorf("adjusting %s.%s: %w", kind, field, err)
	}
	return nil
}

// propagate applies the counter changes caused by adding (sign +1) or
// removing (sign -1) one entity of kind under chain, together with the
// devices and events in its subtree.
//
// Every hop's deviceCount and pointsCount move by the subtree totals; the
// immediate parent's child counter moves by one. For a room, the child
// counter is deviceCount itself and is only counted once.
func (s *Stats) propagate(ctx context.Context, chain []Hop, kind Kind, devices, events, sign int) error {
	child, _ := ChildCounter(kind)
	for i, hop := range chain {
		deltas := map[CounterField]int{}
		if Allows(hop.Kind, DeviceCount) {
			deltas[DeviceCount] += devices
		}
		if Allows(hop.Kind, PointsCount) {
			deltas[PointsCount] += events
		}
		if i == len(chain)-1 && child != DeviceCount {
			deltas[child]++
		}
		for _, field := range counterRegistry[hop.Kind] {
			if err := s.AdjustStats(ctx, hop.Kind, hop.ID, field, sign*deltas[field]); err != nil {
				return err
			}
		}
	}
	return nil
}
