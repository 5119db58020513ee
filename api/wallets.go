package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ecoback/reward-engine/core"
	"github.com/ecoback/reward-engine/wallet"
)

func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Wallet.Summary(r.Context(), principal(r).ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, sum, "")
}

// ListTransactions serves the caller's ledger. Filters:
//
//	?kind=cashback,recycle-reward  ?status=completed
//	?from=2025-01-01&to=2025-01-31 ?minAmount=1000&maxAmount=50000
//	?page=1&limit=20
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f := core.TxFilter{
		UserID:    principal(r).ID,
		From:      q.date("from", false),
		To:        q.date("to", true),
		MinAmount: q.money("minAmount"),
		MaxAmount: q.money("maxAmount"),
	}
	for _, k := range q.list("kind") {
		f.Kinds = append(f.Kinds, core.TxKind(k))
	}
	for _, s := range q.list("status") {
		f.Statuses = append(f.Statuses, core.TxStatus(s))
	}
	page := q.integer("page", 1)
	limit := q.integer("limit", wallet.DefaultPageSize)
	if err := q.err(); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.svc.Wallet.Transactions(r.Context(), f, page, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, res, "")
}

func (h *Handler) WalletStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Wallet.Stats(r.Context(), principal(r).ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, st, "")
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var in WithdrawRequest
	if err := decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	tx, err := h.svc.Wallet.RequestWithdrawal(r.Context(), principal(r).ID, in.Amount, in.BankInfo)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	created(w, tx, "withdrawal request submitted")
}

func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	txs, err := h.svc.Wallet.Withdrawals(r.Context(), principal(r).ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, txs, "")
}

func (h *Handler) CancelWithdrawal(w http.ResponseWriter, r *http.Request) {
	id := core.TransactionID(chi.URLParam(r, "id"))
	tx, err := h.svc.Wallet.CancelWithdrawal(r.Context(), principal(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, tx, "withdrawal cancelled")
}

func (h *Handler) ProcessWithdrawal(w http.ResponseWriter, r *http.Request) {
	var in ProcessRequest
	if err := decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	id := core.TransactionID(chi.URLParam(r, "id"))
	tx, err := h.svc.Wallet.ProcessWithdrawal(r.Context(), principal(r), id, in.Status, in.Note)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, tx, "withdrawal "+string(tx.Status))
}
