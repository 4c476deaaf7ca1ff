package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/facility-core/internal/hierarchy"
	"github.com/nerrad567/facility-core/internal/infrastructure/objectstore"
	"github.com/nerrad567/facility-core/internal/pagination"
)

// imageFormField is the multipart field carrying an uploaded image.
const imageFormField = "file"

// resourceHandlers is the uniform surface of one hierarchy level.
type resourceHandlers struct {
	create, list, get, update, remove, setImage http.HandlerFunc
}

// resource returns the handlers for kind.
func (s *Server) resource(kind hierarchy.Kind) resourceHandlers {
	svc := s.hierarchy
	switch kind {
	case hierarchy.KindOrganization:
		return collectionHandlers(s, svc.Organizations)
	case hierarchy.KindSite:
		return collectionHandlers(s, svc.Sites)
	case hierarchy.KindBuilding:
		return collectionHandlers(s, svc.Buildings)
	case hierarchy.KindFloor:
		return collectionHandlers(s, svc.Floors)
	case hierarchy.KindRoom:
		return collectionHandlers(s, svc.Rooms)
	case hierarchy.KindDevice:
		return collectionHandlers(s, svc.Devices.Collection)
	}
	panic(fmt.Sprintf("api: no collection for kind %q", kind))
}

type collectionHandler[T any] struct {
	s *Server
	c *hierarchy.Collection[T]
}

func collectionHandlers[T any](s *Server, c *hierarchy.Collection[T]) resourceHandlers {
	h := collectionHandler[T]{s: s, c: c}
	return resourceHandlers{
		create:   h.create,
		list:     h.list,
		get:      h.get,
		update:   h.update,
		remove:   h.remove,
		setImage: h.setImage,
	}
}

func (h collectionHandler[T]) kind() hierarchy.Kind { return h.c.Kind() }

func (h collectionHandler[T]) create(w http.ResponseWriter, r *http.Request) {
	var entity T
	if err := decodeJSON(r, &entity); err != nil {
		writeDecodeError(w, err)
		return
	}
	created, err := h.c.Create(r.Context(), principal(r), h.s.ancestors(r, h.kind()), &entity)
	if err != nil {
		writeServiceError(w, r, h.s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h collectionHandler[T]) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := pagination.ParseOptions(q)
	page, err := h.c.List(r.Context(), principal(r), h.s.ancestors(r, h.kind()), q.Get("search"), opts)
	if err != nil {
		writeServiceError(w, r, h.s.logger, err)
		return
	}
	writePage(w, r, h.s.logger, page, opts.Projection)
}

func (h collectionHandler[T]) get(w http.ResponseWriter, r *http.Request) {
	entity, err := h.c.Get(r.Context(), principal(r), h.s.ancestors(r, h.kind()), h.id(r))
	if err != nil {
		writeServiceError(w, r, h.s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

func (h collectionHandler[T]) update(w http.ResponseWriter, r *http.Request) {
	var patch hierarchy.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	entity, err := h.c.Update(r.Context(), principal(r), h.s.ancestors(r, h.kind()), h.id(r), patch)
	if err != nil {
		writeServiceError(w, r, h.s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

func (h collectionHandler[T]) remove(w http.ResponseWriter, r *http.Request) {
	tally, err := h.c.Delete(r.Context(), principal(r), h.s.ancestors(r, h.kind()), h.id(r))
	if err != nil {
		writeServiceError(w, r, h.s.logger, err)
		return
	}
	h.s.logger.Info("entity deleted",
		"kind", h.kind(),
		"id", h.id(r),
		"devices", tally.Devices(),
		"events", tally.Events,
		"request_id", requestID(r),
	)
	w.WriteHeader(http.StatusNoContent)
}

func (h collectionHandler[T]) setImage(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile(imageFormField)
	if err != nil {
		writeBadRequest(w, fmt.Sprintf("multipart field %q is required", imageFormField))
		return
	}
	defer file.Close()

	upload := objectstore.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}
	entity, err := h.c.SetImage(r.Context(), principal(r), h.s.ancestors(r, h.kind()), h.id(r), upload)
	if err != nil {
		writeServiceError(w, r, h.s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

func (h collectionHandler[T]) id(r *http.Request) string {
	return chi.URLParam(r, string(h.kind()))
}

// ancestors reads the ids of kind's ancestors from the route, root first.
func (s *Server) ancestors(r *http.Request, kind hierarchy.Kind) []string {
	var ids []string
	for _, k := range s.hierarchy.Topology.Kinds() {
		if k == kind {
			break
		}
		ids = append(ids, chi.URLParam(r, string(k)))
	}
	return ids
}

// decodeJSON decodes a single JSON object, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is required")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
