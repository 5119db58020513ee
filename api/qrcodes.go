package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ecoback/reward-engine/core"
	"github.com/ecoback/reward-engine/qrcode"
)

// =============================================================================
// PRODUCTS
// =============================================================================

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	products, err := h.svc.QRCodes.ListProducts(r.Context(), core.ProductFilter{
		BrandOwnerID: core.UserID(q.str("brand")),
		Category:     q.str("category"),
		ActiveOnly:   true,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, products, "")
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.QRCodes.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, p, "")
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var in qrcode.ProductInput
	if err := decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.svc.QRCodes.CreateProduct(r.Context(), principal(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	created(w, p, "product created")
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var in qrcode.ProductUpdate
	if err := decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.svc.QRCodes.UpdateProduct(r.Context(), principal(r), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, p, "product updated")
}

// DeleteProduct is a soft delete.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.QRCodes.DeactivateProduct(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, p, "product deleted")
}

// =============================================================================
// QR CODES
// =============================================================================

func (h *Handler) GenerateQRCodes(w http.ResponseWriter, r *http.Request) {
	var in GenerateRequest
	if err := decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	b, err := h.svc.QRCodes.GenerateBatch(r.Context(), principal(r), in.ProductID, in.Quantity, in.BatchName)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	created(w, b, "QR codes generated")
}

func (h *Handler) ScanQRCode(w http.ResponseWriter, r *http.Request) {
	var in ScanRequest
	if err := decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.QRCodes.Scan(r.Context(), principal(r).ID, in.Code, in.Location)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, res, "")
}

func (h *Handler) ActivateCashback(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.QRCodes.ActivateCashback(r.Context(), principal(r).ID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, res, "cashback activated")
}

func (h *Handler) RedeemRecycle(w http.ResponseWriter, r *http.Request) {
	var in qrcode.RecycleClaim
	if err := decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.QRCodes.RedeemRecycle(r.Context(), principal(r).ID, chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, res, "recycle reward credited")
}

func (h *Handler) DeactivateQRCode(w http.ResponseWriter, r *http.Request) {
	q, err := h.svc.QRCodes.Deactivate(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, q, "QR code deactivated")
}

func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.svc.QRCodes.Batches(r.Context(), principal(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, batches, "")
}

func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.QRCodes.BatchDetail(r.Context(), principal(r), chi.URLParam(r, "batchId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, b, "")
}

func (h *Handler) QRCodeStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.QRCodes.Stats(r.Context(), principal(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, st, "")
}

func (h *Handler) MyScans(w http.ResponseWriter, r *http.Request) {
	scans, err := h.svc.QRCodes.MyScans(r.Context(), principal(r).ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, scans, "")
}
