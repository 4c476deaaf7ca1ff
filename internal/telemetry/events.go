package telemetry

import (
	"context"
	"fmt"

	"github.com/nerrad567/facility-core/internal/hierarchy"
	"github.com/nerrad567/facility-core/internal/pagination"
)

// Events lists a device's events for a principal. The device must resolve
// through the full ownership chain.
type Events struct {
	resolver *hierarchy.Resolver
	repo     *Repository
}

// NewEvents creates the scoped event listing.
func NewEvents(resolver *hierarchy.Resolver, repo *Repository) *Events {
	return &Events{resolver: resolver, repo: repo}
}

// List pages through the events of the device at ancestors/deviceID.
func (e *Events) List(ctx context.Context, principal hierarchy.Principal, ancestors []string, deviceID string, rng Range, opts pagination.Options) (*pagination.Page[Event], error) {
	if path, ok := opts.UnknownPopulate(); ok {
		return nil, fmt.Errorf("%w: events cannot populate %q", hierarchy.ErrValidation, path)
	}
	path, err := e.resolver.Resolve(ctx, principal, hierarchy.KindDevice, ancestors, deviceID)
	if err != nil {
		return nil, err
	}
	return e.repo.ListByDevice(ctx, path.ID(hierarchy.KindDevice), rng, opts)
}

// Resolve verifies that the principal owns the device, for callers that
// stream rather than list.
func (e *Events) Resolve(ctx context.Context, principal hierarchy.Principal, ancestors []string, deviceID string) error {
	_, err := e.resolver.Resolve(ctx, principal, hierarchy.KindDevice, ancestors, deviceID)
	return err
}
