package hierarchy

import (
	"time"
)

// Options configures a Service.
type Options struct {
	Topology Topology
	// Images stores logos, covers and diagrams. Nil disables image uploads;
	// cascades then skip image cleanup.
	Images ImageStore
	Logger Logger
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Service wires one collection per level of the topology around a shared
// resolver, counter mutator and cascade coordinator.
//
// Organizations is nil when the topology is rooted at site.
type Service struct {
	Topology      Topology
	Resolver      *Resolver
	Stats         *Stats
	Cascade       *Coordinator
	Organizations *Collection[Organization]
	Sites         *Collection[Site]
	Buildings     *Collection[Building]
	Floors        *Collection[Floor]
	Rooms         *Collection[Room]
	Devices       *Devices
}

// NewService creates the hierarchy service.
func NewService(db DB, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if len(opts.Topology.chain) == 0 {
		opts.Topology = MustTopology(KindOrganization)
	}

	s := &Service{
		Topology: opts.Topology,
		Resolver: NewResolver(db, opts.Topology),
		Stats:    NewStats(db),
	}
	s.Cascade = NewCoordinator(db, opts.Topology, s.Stats, opts.Images, opts.Logger)

	if opts.Topology.Has(KindOrganization) {
		s.Organizations = newCollection(s, db, organizationTable, opts)
	}
	s.Sites = newCollection(s, db, siteTable, opts)
	s.Buildings = newCollection(s, db, buildingTable, opts)
	s.Floors = newCollection(s, db, floorTable, opts)
	s.Rooms = newCollection(s, db, roomTable, opts)
	s.Devices = &Devices{Collection: newCollection(s, db, deviceTable, opts)}
	s.Devices.populate = s.Devices.populateDevices
	for _, p := range devicePopulates {
		if opts.Topology.Has(p.kind) {
			s.Devices.populates = append(s.Devices.populates, p.path)
		}
	}

	return s
}

func newCollection[T any](s *Service, db DB, def *tableDef[T], opts Options) *Collection[T] {
	return &Collection[T]{
		def:      def,
		db:       db,
		resolver: s.Resolver,
		stats:    s.Stats,
		cascade:  s.Cascade,
		images:   opts.Images,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}
