package hierarchy

import (
	"encoding/json"
	"time"
)

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000Z"

// Principal is the authenticated caller, injected per request.
// The hierarchy trusts it and only checks ownership against SubjectID.
type Principal struct {
	SubjectID string
	Role      string
}

// Base holds the fields shared by every hierarchy entity.
//
// ParentID is the id of the owning entity; for the root kind it is the
// owning principal's subject id.
type Base struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parent"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Address is a postal address, stored as a JSON document.
type Address struct {
	StreetAddress string `json:"streetAddress"`
	AddressLine2  string `json:"addressLine2,omitempty"`
	City          string `json:"city"`
	State         string `json:"state"`
	Country       string `json:"country"`
	Zip           string `json:"zip,omitempty"`
}

// Location is a WGS84 coordinate.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Organization is the tenant boundary, owned by a principal.
type Organization struct {
	Base
	Name        string   `json:"name"`
	Address     *Address `json:"address,omitempty"`
	Logo        string   `json:"logo"`
	SiteCount   int      `json:"siteCount"`
	DeviceCount int      `json:"deviceCount"`
}

// Site is a physical campus or property.
type Site struct {
	Base
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Location      *Location `json:"location,omitempty"`
	Address       *Address  `json:"address,omitempty"`
	Cover         string    `json:"cover"`
	BuildingCount int       `json:"buildingCount"`
	DeviceCount   int       `json:"deviceCount"`
	PointsCount   int       `json:"pointsCount"`
}

// Building belongs to a site.
type Building struct {
	Base
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Address     *Address `json:"address,omitempty"`
	Cover       string   `json:"cover"`
	FloorCount  int      `json:"floorCount"`
	DeviceCount int      `json:"deviceCount"`
	PointsCount int      `json:"pointsCount"`
}

// Floor belongs to a building.
type Floor struct {
	Base
	Name        string `json:"name"`
	Description string `json:"description"`
	Diagram     string `json:"diagram"`
	RoomCount   int    `json:"roomCount"`
	DeviceCount int    `json:"deviceCount"`
	PointsCount int    `json:"pointsCount"`
}

// Room belongs to a floor.
type Room struct {
	Base
	Name        string `json:"name"`
	Description string `json:"description"`
	Diagram     string `json:"diagram"`
	DeviceCount int    `json:"deviceCount"`
}

// Device is a leaf sensor or actuator. UUID is its stable external
// identifier used by ingestion. Site, Building and Floor are copied from
// the room's chain at creation and never change.
type Device struct {
	Base
	Name     string `json:"name"`
	UUID     string `json:"uuid"`
	Type     string `json:"type"`
	Value    string `json:"value"`
	Site     Ref    `json:"site"`
	Building Ref    `json:"building"`
	Floor    Ref    `json:"floor"`
	Room     Ref    `json:"room"`
}

// Ref is a reference to another entity. It encodes as the bare id unless
// populated, in which case it encodes as {"id", "name"} and, when nested
// population was requested, the referenced entity's own parent.
type Ref struct {
	ID     string
	Name   string
	Parent *Ref

	populated bool
}

// populate marks r for expanded encoding.
func (r *Ref) populate(name string) {
	r.Name = name
	r.populated = true
}

// Populated reports whether r carries the referenced entity's name.
func (r Ref) Populated() bool { return r.populated }

// MarshalJSON implements json.Marshaler.
func (r Ref) MarshalJSON() ([]byte, error) {
	if !r.populated {
		return json.Marshal(r.ID)
	}
	doc := struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Parent *Ref   `json:"parent,omitempty"`
	}{r.ID, r.Name, r.Parent}
	return json.Marshal(doc)
}

// UnmarshalJSON accepts either a bare id or an {"id": ...} object.
func (r *Ref) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*r = Ref{ID: id}
		return nil
	}
	var doc struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*r = Ref{ID: doc.ID, Name: doc.Name}
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
