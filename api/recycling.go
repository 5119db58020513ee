package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ecoback/reward-engine/core"
	"github.com/ecoback/reward-engine/recycle"
)

func (h *Handler) CreateRecycleRequest(w http.ResponseWriter, r *http.Request) {
	var in recycle.CreateInput
	if err := decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	req, err := h.svc.Recycle.Create(r.Context(), principal(r).ID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	created(w, req, "recycle request submitted")
}

func (h *Handler) MyRecycleRequests(w http.ResponseWriter, r *http.Request) {
	status := core.RequestStatus(newQuery(r).str("status"))
	if status != "" && !status.Valid() {
		h.writeError(w, r, core.Invalid("status", "unknown status"))
		return
	}
	reqs, err := h.svc.Recycle.MyRequests(r.Context(), principal(r).ID, status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, reqs, "")
}

// AllRecycleRequests accepts ?status=&userId=&collectorId=&from=&to=&page=&limit=.
func (h *Handler) AllRecycleRequests(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f := core.RequestFilter{
		UserID:      core.UserID(q.str("userId")),
		Status:      core.RequestStatus(q.str("status")),
		CollectorID: core.UserID(q.str("collectorId")),
		From:        q.date("from", false),
		To:          q.date("to", true),
	}
	if f.Status != "" && !f.Status.Valid() {
		q.v.Add("status", "unknown status")
	}
	page := q.integer("page", 1)
	limit := q.integer("limit", recycle.DefaultPageSize)
	if err := q.err(); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.Recycle.All(r.Context(), principal(r), f, page, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, res, "")
}

func (h *Handler) RecycleStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Recycle.Stats(r.Context(), principal(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, st, "")
}

func (h *Handler) GetRecycleRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.svc.Recycle.Get(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, req, "")
}

func (h *Handler) AssignRecycleRequest(w http.ResponseWriter, r *http.Request) {
	var in recycle.AssignInput
	if err := decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	req, err := h.svc.Recycle.Assign(r.Context(), principal(r), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, req, "collector assigned")
}

// UpdateRecycleStatus handles both staff progress updates and owner
// cancellation; the service decides who may do what.
func (h *Handler) UpdateRecycleStatus(w http.ResponseWriter, r *http.Request) {
	var in StatusRequest
	if err := decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	req, err := h.svc.Recycle.UpdateStatus(r.Context(), principal(r), chi.URLParam(r, "id"), in.Status, in.Note)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, req, "status updated")
}

func (h *Handler) CompleteRecycleRequest(w http.ResponseWriter, r *http.Request) {
	var in recycle.CompleteInput
	if err := decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.Recycle.Complete(r.Context(), principal(r), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, res, "pickup completed")
}
