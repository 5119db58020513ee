package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ecoback/reward-engine/collection"
	"github.com/ecoback/reward-engine/core"
)

func (h *Handler) ListCollectionPoints(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	points, err := h.svc.Collection.List(r.Context(), collection.ListQuery{
		City:     q.str("city"),
		Material: core.Material(q.str("material")),
		Search:   q.str("search"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, points, "")
}

// NearbyCollectionPoints takes maxDistance in meters.
func (h *Handler) NearbyCollectionPoints(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	lat := q.number("lat", true)
	lng := q.number("lng", true)
	maxDistance := q.number("maxDistance", false)
	limit := q.integer("limit", collection.DefaultNearbyLimit)
	if err := q.err(); err != nil {
		h.writeError(w, r, err)
		return
	}
	points, err := h.svc.Collection.Nearby(r.Context(), lat, lng, maxDistance, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, points, "")
}

func (h *Handler) GetCollectionPoint(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Collection.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, p, "")
}

func (h *Handler) CreateCollectionPoint(w http.ResponseWriter, r *http.Request) {
	var in collection.PointInput
	if err := decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.svc.Collection.Create(r.Context(), principal(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	created(w, p, "collection point created")
}

func (h *Handler) UpdateCollectionPoint(w http.ResponseWriter, r *http.Request) {
	var in collection.PointUpdate
	if err := decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.svc.Collection.Update(r.Context(), principal(r), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, p, "collection point updated")
}

// DeleteCollectionPoint sets isActive=false; dropoff history is kept.
func (h *Handler) DeleteCollectionPoint(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Collection.Deactivate(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, p, "collection point deleted")
}

func (h *Handler) RecordDropoff(w http.ResponseWriter, r *http.Request) {
	var in DropoffRequest
	if err := decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.svc.Collection.RecordDropoff(r.Context(), principal(r).ID, chi.URLParam(r, "id"), in.Items)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, p, "dropoff recorded")
}

func (h *Handler) CollectionPointStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Collection.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, st, "")
}
