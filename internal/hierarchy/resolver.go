package hierarchy

import (
	"context"
)

// Hop is one resolved link of an ownership chain.
type Hop struct {
	Kind Kind
	ID   string
}

// Path is a verified ownership chain, outermost first.
type Path struct {
	Principal Principal
	Chain     []Hop
}

// Parent returns the id that direct children of the path's end store as
// parent_id: the last hop, or the principal for an empty chain.
func (p Path) Parent() string {
	if len(p.Chain) == 0 {
		return p.Principal.SubjectID
	}
	return p.Chain[len(p.Chain)-1].ID
}

// ID returns the resolved id for kind, or "" when kind is not on the path.
func (p Path) ID(kind Kind) string {
	for _, h := range p.Chain {
		if h.Kind == kind {
			return h.ID
		}
	}
	return ""
}

// With returns a copy of the path extended by one hop.
func (p Path) With(kind Kind, id string) Path {
	chain := make([]Hop, len(p.Chain), len(p.Chain)+1)
	copy(chain, p.Chain)
	return Path{Principal: p.Principal, Chain: append(chain, Hop{Kind: kind, ID: id})}
}

// Resolver verifies ownership chains hop by hop.
type Resolver struct {
	db       DB
	topology Topology
}

// NewResolver creates a resolver for the given topology.
func NewResolver(db DB, topology Topology) *Resolver {
	return &Resolver{db: db, topology: topology}
}

// Topology returns the resolver's topology.
func (r *Resolver) Topology() Topology { return r.topology }

// ResolveParent verifies ancestors, the ids from the root down to the
// direct parent of an entity of kind. Each entity must be owned by the one
// before it, and the first by the principal.
//
// A wrong chain length, a missing entity or a foreign parent all return
// ErrNotFound; malformed ids return ErrValidation before any query runs.
func (r *Resolver) ResolveParent(ctx context.Context, principal Principal, kind Kind, ancestors []string) (Path, error) {
	depth, ok := r.topology.Depth(kind)
	if !ok || len(ancestors) != depth {
		return Path{}, ErrNotFound
	}
	chain := r.topology.Kinds()[:depth]
	for i, id := range ancestors {
		if err := validateID(chain[i], id); err != nil {
			return Path{}, err
		}
	}

	path := Path{Principal: principal, Chain: make([]Hop, 0, depth)}
	for i, id := range ancestors {
		if err := r.checkHop(ctx, chain[i], id, path.Parent()); err != nil {
			return Path{}, err
		}
		path.Chain = append(path.Chain, Hop{Kind: chain[i], ID: id})
	}
	return path, nil
}

// Resolve verifies the full chain and the terminal entity, returning the
// path including the entity itself.
func (r *Resolver) Resolve(ctx context.Context, principal Principal, kind Kind, ancestors []string, id string) (Path, error) {
	if err := validateID(kind, id); err != nil {
		return Path{}, err
	}
	parent, err := r.ResolveParent(ctx, principal, kind, ancestors)
	if err != nil {
		return Path{}, err
	}
	if err := r.checkHop(ctx, kind, id, parent.Parent()); err != nil {
		return Path{}, err
	}
	return parent.With(kind, id), nil
}

func (r *Resolver) checkHop(ctx context.Context, kind Kind, id, parentID string) error {
	var one int
	err := r.db.QueryRowContext(ctx,
		"SELECT 1 FROM "+kind.Table()+" WHERE id = ? AND parent_id = ?", id, parentID).Scan(&one)
	return notFoundOr(err, "resolving %s %s", kind, id)
}
