package hierarchy

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Validation limits.
const (
	maxNameLength        = 100
	maxDescriptionLength = 500
	maxDeviceUUIDLength  = 100
	maxDeviceTypeLength  = 50
	maxAddressLineLength = 200
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

func validateName(kind Kind, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return invalid("%s name is required", kind)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return invalid("%s name exceeds %d characters", kind, maxNameLength)
	}
	return nil
}

func validateDescription(kind Kind, description string) error {
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return invalid("%s description exceeds %d characters", kind, maxDescriptionLength)
	}
	return nil
}

// validate checks an optional address. A nil address is valid.
func (a *Address) validate() error {
	if a == nil {
		return nil
	}
	required := []struct{ field, value string }{
		{"streetAddress", a.StreetAddress},
		{"city", a.City},
		{"state", a.State},
		{"country", a.Country},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return invalid("address.%s is required", r.field)
		}
	}
	for _, v := range []string{a.StreetAddress, a.AddressLine2, a.City, a.State, a.Country, a.Zip} {
		if utf8.RuneCountInString(v) > maxAddressLineLength {
			return invalid("address field exceeds %d characters", maxAddressLineLength)
		}
	}
	return nil
}

// validate checks an optional location. A nil location is valid.
func (l *Location) validate() error {
	if l == nil {
		return nil
	}
	if l.Latitude < -90 || l.Latitude > 90 {
		return invalid("location.latitude must be within [-90, 90]")
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return invalid("location.longitude must be within [-180, 180]")
	}
	return nil
}

func validateOrganization(o *Organization) error {
	if err := validateName(KindOrganization, o.Name); err != nil {
		return err
	}
	return o.Address.validate()
}

func validateSite(s *Site) error {
	if err := validateName(KindSite, s.Name); err != nil {
		return err
	}
	if err := validateDescription(KindSite, s.Description); err != nil {
		return err
	}
	if err := s.Location.validate(); err != nil {
		return err
	}
	return s.Address.validate()
}

func validateBuilding(b *Building) error {
	if err := validateName(KindBuilding, b.Name); err != nil {
		return err
	}
	if err := validateDescription(KindBuilding, b.Description); err != nil {
		return err
	}
	return b.Address.validate()
}

func validateFloor(f *Floor) error {
	if err := validateName(KindFloor, f.Name); err != nil {
		return err
	}
	return validateDescription(KindFloor, f.Description)
}

func validateRoom(r *Room) error {
	if err := validateName(KindRoom, r.Name); err != nil {
		return err
	}
	return validateDescription(KindRoom, r.Description)
}

func validateDevice(d *Device) error {
	if err := validateName(KindDevice, d.Name); err != nil {
		return err
	}
	uuid := strings.TrimSpace(d.UUID)
	if uuid == "" {
		return invalid("device uuid is required")
	}
	if len(uuid) > maxDeviceUUIDLength {
		return invalid("device uuid exceeds %d characters", maxDeviceUUIDLength)
	}
	if strings.TrimSpace(d.Type) == "" {
		return invalid("device type is required")
	}
	if len(d.Type) > maxDeviceTypeLength {
		return invalid("device type exceeds %d characters", maxDeviceTypeLength)
	}
	return nil
}

// Patch is a partial update: JSON field names mapped to their new values.
type Patch map[string]json.RawMessage

// apply decodes each patched field into its destination. Fields missing
// from targets are read-only or unknown and rejected.
func (p Patch) apply(kind Kind, targets map[string]any) error {
	for field, raw := range p {
		dst, ok := targets[field]
		if !ok {
			return invalid("%s field %q cannot be updated", kind, field)
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return invalid("%s field %q: %v", kind, field, err)
		}
	}
	return nil
}
