package hierarchy

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/facility-core/internal/pagination"
)

// tableDef binds an entity type to its table.
type tableDef[T any] struct {
	kind    Kind
	columns []string
	// mutable lists the columns an update rewrites, besides updated_at.
	mutable  []string
	scan     func(pagination.Scanner) (T, error)
	values   func(*T) ([]any, error) // one per column
	base     func(*T) *Base
	prepare  func(*T, Path) // resets server-owned fields before insert
	patch    func(*T) map[string]any
	validate func(*T) error
	setImage func(*T, string)
	sortable map[string]string
}

var baseSortable = map[string]string{
	"name":      "name",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
}

func sortable(extra map[string]string) map[string]string {
	out := make(map[string]string, len(baseSortable)+len(extra))
	for k, v := range baseSortable {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func encodeAddress(a *Address) (sql.NullString, error) {
	if a == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding address: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeAddress(s sql.NullString) (*Address, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var a Address
	if err := json.Unmarshal([]byte(s.String), &a); err != nil {
		return nil, fmt.Errorf("decoding address: %w", err)
	}
	return &a, nil
}

// timestamps scans created_at and updated_at into b.
type timestamps struct {
	created, updated string
}

func (ts timestamps) into(b *Base) {
	b.CreatedAt = parseTime(ts.created)
	b.UpdatedAt = parseTime(ts.updated)
}

var organizationTable = &tableDef[Organization]{
	kind:    KindOrganization,
	columns: []string{"id", "parent_id", "name", "address", "logo", "site_count", "device_count", "created_at", "updated_at"},
	mutable: []string{"name", "address"},
	scan: func(s pagination.Scanner) (Organization, error) {
		var o Organization
		var addr sql.NullString
		var ts timestamps
		if err := s.Scan(&o.ID, &o.ParentID, &o.Name, &addr, &o.Logo, &o.SiteCount, &o.DeviceCount, &ts.created, &ts.updated); err != nil {
			return o, err
		}
		ts.into(&o.Base)
		var err error
		o.Address, err = decodeAddress(addr)
		return o, err
	},
	values: func(o *Organization) ([]any, error) {
		addr, err := encodeAddress(o.Address)
		return []any{o.ID, o.ParentID, o.Name, addr, o.Logo, o.SiteCount, o.DeviceCount,
			formatTime(o.CreatedAt), formatTime(o.UpdatedAt)}, err
	},
	base: func(o *Organization) *Base { return &o.Base },
	prepare: func(o *Organization, _ Path) {
		o.Logo, o.SiteCount, o.DeviceCount = "", 0, 0
	},
	patch: func(o *Organization) map[string]any {
		return map[string]any{"name": &o.Name, "address": &o.Address}
	},
	validate: validateOrganization,
	setImage: func(o *Organization, url string) { o.Logo = url },
	sortable: sortable(map[string]string{"siteCount": "site_count", "deviceCount": "device_count"}),
}

var siteTable = &tableDef[Site]{
	kind: KindSite,
	columns: []string{"id", "parent_id", "name", "description", "latitude", "longitude", "address", "cover",
		"building_count", "device_count", "points_count", "created_at", "updated_at"},
	mutable: []string{"name", "description", "latitude", "longitude", "address"},
	scan: func(s pagination.Scanner) (Site, error) {
		var st Site
		var lat, lng sql.NullFloat64
		var addr sql.NullString
		var ts timestamps
		if err := s.Scan(&st.ID, &st.ParentID, &st.Name, &st.Description, &lat, &lng, &addr, &st.Cover,
			&st.BuildingCount, &st.DeviceCount, &st.PointsCount, &ts.created, &ts.updated); err != nil {
			return st, err
		}
		ts.into(&st.Base)
		if lat.Valid && lng.Valid {
			st.Location = &Location{Latitude: lat.Float64, Longitude: lng.Float64}
		}
		var err error
		st.Address, err = decodeAddress(addr)
		return st, err
	},
	values: func(st *Site) ([]any, error) {
		var lat, lng sql.NullFloat64
		if st.Location != nil {
			lat = sql.NullFloat64{Float64: st.Location.Latitude, Valid: true}
			lng = sql.NullFloat64{Float64: st.Location.Longitude, Valid: true}
		}
		addr, err := encodeAddress(st.Address)
		return []any{st.ID, st.ParentID, st.Name, st.Description, lat, lng, addr, st.Cover,
			st.BuildingCount, st.DeviceCount, st.PointsCount, formatTime(st.CreatedAt), formatTime(st.UpdatedAt)}, err
	},
	base: func(st *Site) *Base { return &st.Base },
	prepare: func(st *Site, _ Path) {
		st.Cover, st.BuildingCount, st.DeviceCount, st.PointsCount = "", 0, 0, 0
	},
	patch: func(st *Site) map[string]any {
		return map[string]any{"name": &st.Name, "description": &st.Description, "location": &st.Location, "address": &st.Address}
	},
	validate: validateSite,
	setImage: func(st *Site, url string) { st.Cover = url },
	sortable: sortable(map[string]string{"buildingCount": "building_count", "deviceCount": "device_count", "pointsCount": "points_count"}),
}

var buildingTable = &tableDef[Building]{
	kind: KindBuilding,
	columns: []string{"id", "parent_id", "name", "description", "address", "cover",
		"floor_count", "device_count", "points_count", "created_at", "updated_at"},
	mutable: []string{"name", "description", "address"},
	scan: func(s pagination.Scanner) (Building, error) {
		var b Building
		var addr sql.NullString
		var ts timestamps
		if err := s.Scan(&b.ID, &b.ParentID, &b.Name, &b.Description, &addr, &b.Cover,
			&b.FloorCount, &b.DeviceCount, &b.PointsCount, &ts.created, &ts.updated); err != nil {
			return b, err
		}
		ts.into(&b.Base)
		var err error
		b.Address, err = decodeAddress(addr)
		return b, err
	},
	values: func(b *Building) ([]any, error) {
		addr, err := encodeAddress(b.Address)
		return []any{b.ID, b.ParentID, b.Name, b.Description, addr, b.Cover,
			b.FloorCount, b.DeviceCount, b.PointsCount, formatTime(b.CreatedAt), formatTime(b.UpdatedAt)}, err
	},
	base: func(b *Building) *Base { return &b.Base },
	prepare: func(b *Building, _ Path) {
		b.Cover, b.FloorCount, b.DeviceCount, b.PointsCount = "", 0, 0, 0
	},
	patch: func(b *Building) map[string]any {
		return map[string]any{"name": &b.Name, "description": &b.Description, "address": &b.Address}
	},
	validate: validateBuilding,
	setImage: func(b *Building, url string) { b.Cover = url },
	sortable: sortable(map[string]string{"floorCount": "floor_count", "deviceCount": "device_count", "pointsCount": "points_count"}),
}

var floorTable = &tableDef[Floor]{
	kind: KindFloor,
	columns: []string{"id", "parent_id", "name", "description", "diagram",
		"room_count", "device_count", "points_count", "created_at", "updated_at"},
	mutable: []string{"name", "description"},
	scan: func(s pagination.Scanner) (Floor, error) {
		var f Floor
		var ts timestamps
		err := s.Scan(&f.ID, &f.ParentID, &f.Name, &f.Description, &f.Diagram,
			&f.RoomCount, &f.DeviceCount, &f.PointsCount, &ts.created, &ts.updated)
		ts.into(&f.Base)
		return f, err
	},
	values: func(f *Floor) ([]any, error) {
		return []any{f.ID, f.ParentID, f.Name, f.Description, f.Diagram,
			f.RoomCount, f.DeviceCount, f.PointsCount, formatTime(f.CreatedAt), formatTime(f.UpdatedAt)}, nil
	},
	base: func(f *Floor) *Base { return &f.Base },
	prepare: func(f *Floor, _ Path) {
		f.Diagram, f.RoomCount, f.DeviceCount, f.PointsCount = "", 0, 0, 0
	},
	patch: func(f *Floor) map[string]any {
		return map[string]any{"name": &f.Name, "description": &f.Description}
	},
	validate: validateFloor,
	setImage: func(f *Floor, url string) { f.Diagram = url },
	sortable: sortable(map[string]string{"roomCount": "room_count", "deviceCount": "device_count", "pointsCount": "points_count"}),
}

var roomTable = &tableDef[Room]{
	kind:    KindRoom,
	columns: []string{"id", "parent_id", "name", "description", "diagram", "device_count", "created_at", "updated_at"},
	mutable: []string{"name", "description"},
	scan: func(s pagination.Scanner) (Room, error) {
		var r Room
		var ts timestamps
		err := s.Scan(&r.ID, &r.ParentID, &r.Name, &r.Description, &r.Diagram, &r.DeviceCount, &ts.created, &ts.updated)
		ts.into(&r.Base)
		return r, err
	},
	values: func(r *Room) ([]any, error) {
		return []any{r.ID, r.ParentID, r.Name, r.Description, r.Diagram, r.DeviceCount,
			formatTime(r.CreatedAt), formatTime(r.UpdatedAt)}, nil
	},
	base: func(r *Room) *Base { return &r.Base },
	prepare: func(r *Room, _ Path) {
		r.Diagram, r.DeviceCount = "", 0
	},
	patch: func(r *Room) map[string]any {
		return map[string]any{"name": &r.Name, "description": &r.Description}
	},
	validate: validateRoom,
	setImage: func(r *Room, url string) { r.Diagram = url },
	sortable: sortable(map[string]string{"deviceCount": "device_count"}),
}

var deviceTable = &tableDef[Device]{
	kind: KindDevice,
	columns: []string{"id", "parent_id", "site_id", "building_id", "floor_id", "name", "uuid", "type", "value",
		"created_at", "updated_at"},
	mutable: []string{"name", "uuid", "type"},
	scan: func(s pagination.Scanner) (Device, error) {
		var d Device
		var ts timestamps
		err := s.Scan(&d.ID, &d.ParentID, &d.Site.ID, &d.Building.ID, &d.Floor.ID, &d.Name, &d.UUID, &d.Type, &d.Value,
			&ts.created, &ts.updated)
		d.Room.ID = d.ParentID
		ts.into(&d.Base)
		return d, err
	},
	values: func(d *Device) ([]any, error) {
		return []any{d.ID, d.ParentID, d.Site.ID, d.Building.ID, d.Floor.ID, d.Name, d.UUID, d.Type, d.Value,
			formatTime(d.CreatedAt), formatTime(d.UpdatedAt)}, nil
	},
	base: func(d *Device) *Base { return &d.Base },
	prepare: func(d *Device, parent Path) {
		d.Site = Ref{ID: parent.ID(KindSite)}
		d.Building = Ref{ID: parent.ID(KindBuilding)}
		d.Floor = Ref{ID: parent.ID(KindFloor)}
		d.Room = Ref{ID: parent.ID(KindRoom)}
		if d.Value == "" {
			d.Value = "0"
		}
	},
	patch: func(d *Device) map[string]any {
		return map[string]any{"name": &d.Name, "uuid": &d.UUID, "type": &d.Type}
	},
	validate: validateDevice,
	sortable: sortable(map[string]string{"uuid": "uuid", "type": "type", "value": "value"}),
}
