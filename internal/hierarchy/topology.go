package hierarchy

import (
	"fmt"
	"slices"
)

// Kind identifies one level of the hierarchy.
type Kind string

// Hierarchy levels, outermost first.
const (
	KindOrganization Kind = "organization"
	KindSite         Kind = "site"
	KindBuilding     Kind = "building"
	KindFloor        Kind = "floor"
	KindRoom         Kind = "room"
	KindDevice       Kind = "device"
)

var fullChain = []Kind{KindOrganization, KindSite, KindBuilding, KindFloor, KindRoom, KindDevice}

type kindMeta struct {
	table string
	image string // image column, empty when the kind has none
}

var kinds = map[Kind]kindMeta{
	KindOrganization: {table: "organizations", image: "logo"},
	KindSite:         {table: "sites", image: "cover"},
	KindBuilding:     {table: "buildings", image: "cover"},
	KindFloor:        {table: "floors", image: "diagram"},
	KindRoom:         {table: "rooms", image: "diagram"},
	KindDevice:       {table: "devices"},
}

// Table returns the SQL table storing entities of this kind.
func (k Kind) Table() string { return kinds[k].table }

// ImageColumn returns the column holding the entity's image URL, if any.
func (k Kind) ImageColumn() string { return kinds[k].image }

// Topology is the ordered chain of kinds from the root down to devices.
// The root is owned directly by a principal.
type Topology struct {
	chain []Kind
}

// NewTopology builds a topology rooted at organization or site.
func NewTopology(root Kind) (Topology, error) {
	i := slices.Index(fullChain, root)
	if i < 0 || i > slices.Index(fullChain, KindSite) {
		return Topology{}, fmt.Errorf("%w: root %q", ErrInvalidTopology, root)
	}
	return Topology{chain: fullChain[i:]}, nil
}

// MustTopology is NewTopology for constant roots.
func MustTopology(root Kind) Topology {
	t, err := NewTopology(root)
	if err != nil {
		panic(err)
	}
	return t
}

// Root returns the outermost kind.
func (t Topology) Root() Kind { return t.chain[0] }

// Kinds returns the chain, outermost first.
func (t Topology) Kinds() []Kind { return slices.Clone(t.chain) }

// Has reports whether k is part of the topology.
func (t Topology) Has(k Kind) bool { return slices.Contains(t.chain, k) }

// Depth is the number of ancestors an entity of kind k has.
func (t Topology) Depth(k Kind) (int, bool) {
	i := slices.Index(t.chain, k)
	return i, i >= 0
}

// Parent returns the kind owning k. The root has no parent kind.
func (t Topology) Parent(k Kind) (Kind, bool) {
	i := slices.Index(t.chain, k)
	if i <= 0 {
		return "", false
	}
	return t.chain[i-1], true
}

// Child returns the kind owned by k. Devices have no child kind.
func (t Topology) Child(k Kind) (Kind, bool) {
	i := slices.Index(t.chain, k)
	if i < 0 || i == len(t.chain)-1 {
		return "", false
	}
	return t.chain[i+1], true
}
