// Package pagination implements offset pagination and ranked fuzzy search
// over any SQL-backed collection.
//
// A list call produces the uniform envelope
//
//	{"results": [...], "pagination": {"page": 1, "limit": 10, "totalPages": 3, "totalResults": 27}}
//
// Query string options (see ParseOptions):
//
//	page=2&limit=20              window; malformed values fall back to 1 and 10
//	sortBy=name:asc,createdAt:desc
//	projection=name,address      or projection=-cover
//	populate=room,floor.building
//
// Ordering always ends with created_at DESC, id DESC so that pages are
// stable. PaginateSearch ranks rows with the fuzzy_score SQL function, which
// this package registers with the database driver at init.
package pagination
