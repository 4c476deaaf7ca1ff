package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/facility-core/internal/hierarchy"
	"github.com/nerrad567/facility-core/internal/pagination"
)

var eventColumns = []string{"id", "device_id", "value", "created_at"}

var eventSortable = map[string]string{
	"createdAt": "created_at",
	"value":     "value",
}

// Range bounds an event listing by creation time. Zero bounds are open.
// Both bounds are inclusive.
type Range struct {
	From time.Time
	To   time.Time
}

// ParseRange reads from and to as RFC 3339 timestamps or plain dates
// (YYYY-MM-DD, midnight UTC). Empty values leave the bound open.
func ParseRange(from, to string) (Range, error) {
	var r Range
	var err error
	if r.From, err = parseBound("from", from); err != nil {
		return Range{}, err
	}
	if r.To, err = parseBound("to", to); err != nil {
		return Range{}, err
	}
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return Range{}, fmt.Errorf("%w: to is before from", hierarchy.ErrValidation)
	}
	return r, nil
}

func parseBound(name, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %s must be an RFC 3339 timestamp or a date", hierarchy.ErrValidation, name)
}

// Repository stores events in the events table.
type Repository struct {
	db hierarchy.DB
}

// NewRepository creates an event repository.
func NewRepository(db hierarchy.DB) *Repository {
	return &Repository{db: db}
}

// Append records a reading for the device.
func (r *Repository) Append(ctx context.Context, deviceID, value string, at time.Time) (*Event, error) {
	ev := &Event{
		ID:        uuid.NewString(),
		Device:    deviceID,
		Value:     value,
		CreatedAt: at.UTC().Truncate(time.Microsecond),
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO events (id, device_id, value, created_at) VALUES (?, ?, ?, ?)",
		ev.ID, ev.Device, ev.Value, formatTime(ev.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("inserting event: %w", err)
	}
	return ev, nil
}

// ListByDevice pages through a device's events, newest first unless
// opts.Sort says otherwise.
func (r *Repository) ListByDevice(ctx context.Context, deviceID string, rng Range, opts pagination.Options) (*pagination.Page[Event], error) {
	where := []string{"device_id = ?"}
	args := []any{deviceID}
	if !rng.From.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(rng.From))
	}
	if !rng.To.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, formatTime(rng.To))
	}

	q := pagination.Query{
		Table:    "events",
		Columns:  eventColumns,
		Where:    strings.Join(where, " AND "),
		Args:     args,
		Sortable: eventSortable,
	}
	return pagination.Paginate(ctx, r.db, q, opts, scanEvent)
}

func scanEvent(s pagination.Scanner) (Event, error) {
	var ev Event
	var created string
	err := s.Scan(&ev.ID, &ev.Device, &ev.Value, &created)
	ev.CreatedAt = parseTime(created)
	return ev, err
}
