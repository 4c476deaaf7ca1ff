package hierarchy

import "errors"

// Domain errors for the hierarchy package.
//
//	if errors.Is(err, hierarchy.ErrNotFound) {
//	    // 404, whatever hop failed
//	}
var (
	// ErrNotFound covers every broken ownership hop and missing entity.
	// It never says which hop failed.
	ErrNotFound = errors.New("hierarchy: not found")

	// ErrConflict is returned when an insert violates a unique key.
	ErrConflict = errors.New("hierarchy: conflict")

	// ErrValidation is returned for malformed input, before any storage call.
	ErrValidation = errors.New("hierarchy: validation failed")

	// ErrUpstream is returned when the image store fails an upload.
	ErrUpstream = errors.New("hierarchy: upstream failure")

	// ErrUnknownCounter is a programming error: the counter field is not
	// registered for the entity kind.
	ErrUnknownCounter = errors.New("hierarchy: unknown counter field")

	// ErrInvalidTopology is returned for an unsupported hierarchy root.
	ErrInvalidTopology = errors.New("hierarchy: invalid topology")
)
