package hierarchy

import (
	"context"
	"fmt"
	"strings"

	"github.com/nerrad567/facility-core/internal/pagination"
)

// Devices is the device collection plus the listings and lookups that
// use the denormalized site, building and floor ids.
type Devices struct {
	*Collection[Device]
}

// ListBySite pages through every device anywhere under a site.
// ancestors are the ids above the site; siteID is the site itself.
func (d *Devices) ListBySite(ctx context.Context, principal Principal, ancestors []string, siteID, search string, opts pagination.Options) (*pagination.Page[Device], error) {
	return d.listUnder(ctx, principal, KindSite, "site_id", ancestors, siteID, search, opts)
}

// ListByBuilding pages through every device anywhere under a building.
func (d *Devices) ListByBuilding(ctx context.Context, principal Principal, ancestors []string, buildingID, search string, opts pagination.Options) (*pagination.Page[Device], error) {
	return d.listUnder(ctx, principal, KindBuilding, "building_id", ancestors, buildingID, search, opts)
}

func (d *Devices) listUnder(ctx context.Context, principal Principal, kind Kind, column string, ancestors []string, id, search string, opts pagination.Options) (*pagination.Page[Device], error) {
	path, err := d.resolver.Resolve(ctx, principal, kind, ancestors, id)
	if err != nil {
		return nil, err
	}
	return d.list(ctx, column+" = ?", path.ID(kind), search, opts)
}

// LookupByUUID finds a device by its external identifier alone, without
// any ownership check. Ingestion uses it; it is not exposed to principals.
func (d *Devices) LookupByUUID(ctx context.Context, deviceUUID string) (*Device, error) {
	query := "SELECT " + strings.Join(d.def.columns, ", ") + " FROM devices WHERE uuid = ?"
	dev, err := d.def.scan(d.db.QueryRowContext(ctx, query, deviceUUID))
	if err != nil {
		return nil, notFoundOr(err, "looking up device uuid %s", deviceUUID)
	}
	return &dev, nil
}

// SetValue stores the latest reading on a device.
func (d *Devices) SetValue(ctx context.Context, id, value string) error {
	return d.exec(ctx, "UPDATE devices SET value = ?, updated_at = ? WHERE id = ?",
		value, formatTime(d.now()), id)
}

// refRow is the slice of an entity a populated reference needs.
type refRow struct {
	name, parentID string
}

// devicePopulates are the references a device listing can expand.
var devicePopulates = []struct {
	path string
	kind Kind
	ref  func(*Device) *Ref
}{
	{"site", KindSite, func(d *Device) *Ref { return &d.Site }},
	{"building", KindBuilding, func(d *Device) *Ref { return &d.Building }},
	{"floor", KindFloor, func(d *Device) *Ref { return &d.Floor }},
	{"room", KindRoom, func(d *Device) *Ref { return &d.Room }},
}

// populateDevices expands the requested references on devices to
// {id, name}. A nested path naming the reference's parent kind
// ("room.floor") expands that parent as well.
func (d *Devices) populateDevices(ctx context.Context, devices []Device, opts pagination.Options) error {
	topology := d.resolver.Topology()
	for _, p := range devicePopulates {
		nested, ok := opts.Populates(p.path)
		if !ok || len(devices) == 0 {
			continue
		}

		ids := make([]string, 0, len(devices))
		for i := range devices {
			ids = append(ids, p.ref(&devices[i]).ID)
		}
		rows, err := lookupRefs(ctx, d.db, p.kind, ids)
		if err != nil {
			return err
		}

		var parents map[string]refRow
		parentKind, hasParent := topology.Parent(p.kind)
		expandParent := hasParent && nested == string(parentKind)
		if expandParent {
			parentIDs := make([]string, 0, len(rows))
			for _, r := range rows {
				parentIDs = append(parentIDs, r.parentID)
			}
			if parents, err = lookupRefs(ctx, d.db, parentKind, parentIDs); err != nil {
				return err
			}
		}

		for i := range devices {
			ref := p.ref(&devices[i])
			row, found := rows[ref.ID]
			if !found {
				continue
			}
			ref.populate(row.name)
			if pr, ok := parents[row.parentID]; expandParent && ok {
				parent := Ref{ID: row.parentID}
				parent.populate(pr.name)
				ref.Parent = &parent
			}
		}
	}
	return nil
}

// lookupRefs loads names and parents for a set of ids of one kind.
func lookupRefs(ctx context.Context, db DB, kind Kind, ids []string) (map[string]refRow, error) {
	unique := make([]any, 0, len(ids))
	seen := map[string]bool{}
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	out := make(map[string]refRow, len(unique))
	if len(unique) == 0 {
		return out, nil
	}

	rows, err := db.QueryContext(ctx,
		"SELECT id, name, parent_id FROM "+kind.Table()+" WHERE id IN ("+placeholders(len(unique))+")", unique...)
	if err != nil {
		return nil, fmt.Errorf("populating %s: %w", kind, err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var r refRow
		if err := rows.Scan(&id, &r.name, &r.parentID); err != nil {
			return nil, fmt.Errorf("scanning %s reference: %w", kind, err)
		}
		out[id] = r
	}
	return out, rows.Err()
}
