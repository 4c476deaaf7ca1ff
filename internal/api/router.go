package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/facility-core/internal/hierarchy"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/auth/signup", s.handleSignup)
		r.Post("/auth/login", s.handleLogin)

		// Producers are trusted; readings carry no principal.
		r.Route("/webhook", func(r chi.Router) {
			r.Use(s.webhookSecretMiddleware)
			r.Post("/readings", s.handleWebhookReadings)
			r.Post("/receive-events-raw", s.handleWebhookRaw)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/users/me", s.handleMe)
			s.mountLevel(r, s.hierarchy.Topology.Kinds(), 0)
		})
	})

	return r
}

// mountLevel mounts the collection of kinds[i] and, below each entity,
// the next level.
//
//	/sites            POST, GET
//	/sites/{site}     GET, PATCH, DELETE
//	/sites/{site}/cover
//	/sites/{site}/devices
//	/sites/{site}/buildings/...
func (s *Server) mountLevel(r chi.Router, kinds []hierarchy.Kind, i int) {
	kind := kinds[i]
	res := s.resource(kind)

	r.Route("/"+kind.Table(), func(r chi.Router) {
		r.Post("/", res.create)
		r.Get("/", res.list)

		r.Route("/{"+string(kind)+"}", func(r chi.Router) {
			r.Get("/", res.get)
			r.Patch("/", res.update)
			r.Delete("/", res.remove)
			if image := kind.ImageColumn(); image != "" {
				r.Put("/"+image, res.setImage)
			}

			switch kind {
			case hierarchy.KindSite, hierarchy.KindBuilding:
				r.Get("/devices", s.deviceListingUnder(kind))
			case hierarchy.KindDevice:
				r.Get("/events", s.handleListEvents)
				r.Get("/events/live", s.handleLiveEvents)
			}

			if i+1 < len(kinds) {
				s.mountLevel(r, kinds, i+1)
			}
		})
	})
}

// handleHealth reports every registered component. Any failing component
// turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	components := make(map[string]string, len(s.checks))
	for name, c := range s.checks {
		if err := c.HealthCheck(r.Context()); err != nil {
			components[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":     overall,
		"version":    s.version,
		"components": components,
	})
}
