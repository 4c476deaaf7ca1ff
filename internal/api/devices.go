package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/facility-core/internal/hierarchy"
	"github.com/nerrad567/facility-core/internal/pagination"
	"github.com/nerrad567/facility-core/internal/telemetry"
)

// deviceListingUnder lists every device below a site or building,
// whatever floor and room it sits in.
func (s *Server) deviceListingUnder(kind hierarchy.Kind) http.HandlerFunc {
	list := s.hierarchy.Devices.ListBySite
	if kind == hierarchy.KindBuilding {
		list = s.hierarchy.Devices.ListByBuilding
	}
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := pagination.ParseOptions(q)
		page, err := list(r.Context(), principal(r), s.ancestors(r, kind), chi.URLParam(r, string(kind)),
			q.Get("search"), opts)
		if err != nil {
			writeServiceError(w, r, s.logger, err)
			return
		}
		writePage(w, r, s.logger, page, opts.Projection)
	}
}

// handleListEvents pages through a device's events. from and to bound the
// creation time, inclusive.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := telemetry.ParseRange(q.Get("from"), q.Get("to"))
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}

	opts := pagination.ParseOptions(q)
	page, err := s.events.List(r.Context(), principal(r), s.ancestors(r, hierarchy.KindDevice),
		chi.URLParam(r, string(hierarchy.KindDevice)), rng, opts)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writePage(w, r, s.logger, page, opts.Projection)
}
