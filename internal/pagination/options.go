package pagination

import (
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// Window defaults.
const (
	DefaultPage  = 1
	DefaultLimit = 10
)

// Options controls windowing, ordering and shaping of a list call.
type Options struct {
	Page       int
	Limit      int
	Sort       []SortField
	Projection Projection
	Populate   []Populate
}

// SortField is one entry of a sortBy list.
type SortField struct {
	Field string
	Desc  bool
}

// Populate names a relation to expand, optionally one level further
// ("floor.building" expands floor and the floor's building).
type Populate struct {
	Path   string
	Nested string
}

// Offset returns the number of rows skipped before the current page.
func (o Options) Offset() int {
	return (o.Page - 1) * o.Limit
}

// Populates reports whether path was requested, and its nested relation.
func (o Options) Populates(path string) (nested string, ok bool) {
	for _, p := range o.Populate {
		if p.Path == path {
			return p.Nested, true
		}
	}
	return "", false
}

// UnknownPopulate returns the first requested path not in allowed.
func (o Options) UnknownPopulate(allowed ...string) (string, bool) {
	for _, p := range o.Populate {
		if !slices.Contains(allowed, p.Path) {
			return p.Path, true
		}
	}
	return "", false
}

// ParseOptions reads page, limit, sortBy, projection and populate from a
// query string. Malformed numbers fall back to the defaults; it never fails.
func ParseOptions(q url.Values) Options {
	opts := Options{
		Page:  positiveOr(q.Get("page"), DefaultPage),
		Limit: positiveOr(q.Get("limit"), DefaultLimit),
	}

	for _, entry := range splitList(q.Get("sortBy")) {
		field, dir, _ := strings.Cut(entry, ":")
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		opts.Sort = append(opts.Sort, SortField{
			Field: field,
			Desc:  strings.EqualFold(strings.TrimSpace(dir), "desc"),
		})
	}

	opts.Projection = ParseProjection(q.Get("projection"))

	for _, entry := range splitList(q.Get("populate")) {
		path, nested, _ := strings.Cut(entry, ".")
		// Only one nested level is honoured; "a.b.c" keeps "b".
		nested, _, _ = strings.Cut(nested, ".")
		opts.Populate = append(opts.Populate, Populate{Path: path, Nested: nested})
	}

	return opts
}

func positiveOr(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
