package pagination

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Projection selects the fields returned for each result. Include wins over
// Exclude when both are present. The id field is always kept.
type Projection struct {
	Include []string
	Exclude []string
}

// ParseProjection reads "name,address" (include) or "-cover,-address" (exclude).
func ParseProjection(raw string) Projection {
	var p Projection
	for _, f := range splitList(raw) {
		if name, ok := strings.CutPrefix(f, "-"); ok {
			if name != "" {
				p.Exclude = append(p.Exclude, name)
			}
			continue
		}
		p.Include = append(p.Include, f)
	}
	return p
}

// Empty reports whether the projection keeps every field.
func (p Projection) Empty() bool {
	return len(p.Include) == 0 && len(p.Exclude) == 0
}

// Apply filters a decoded JSON object in place.
func (p Projection) Apply(doc map[string]any) {
	if len(p.Include) > 0 {
		keep := map[string]bool{"id": true}
		for _, f := range p.Include {
			keep[f] = true
		}
		for k := range doc {
			if !keep[k] {
				delete(doc, k)
			}
		}
		return
	}
	for _, f := range p.Exclude {
		if f != "id" {
			delete(doc, f)
		}
	}
}

// Project re-encodes every result as a JSON object filtered by proj.
func (pg *Page[T]) Project(proj Projection) (*Page[map[string]any], error) {
	out := &Page[map[string]any]{
		Results:    make([]map[string]any, 0, len(pg.Results)),
		Pagination: pg.Pagination,
	}
	for _, r := range pg.Results {
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("encoding result: %w", err)
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("projecting result: %w", err)
		}
		proj.Apply(doc)
		out.Results = append(out.Results, doc)
	}
	return out, nil
}
