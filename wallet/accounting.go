/*
Package wallet owns the balance invariant and the withdrawal lifecycle.

PURPOSE:
  A user's wallet is a snapshot; the transaction ledger explains it. Every
  completed credit or debit goes through ApplyDelta (or withdrawal
  settlement, which shares the same wallet arithmetic), so the two never
  disagree.

CRITICAL INVARIANTS:
  1. balance >= 0 at every commit
  2. balance == totalEarned - totalWithdrawn
  3. completed tx.balanceAfter == balance right after tx.amount applied
  4. one rewarding transaction per idempotency key

ATOMICITY:
  ApplyDelta runs on a core.Repository, i.e. inside the caller's unit of
  work. The caller's claim guard, the wallet write and the ledger append
  commit or roll back together.

WITHDRAWALS:
  request:  pending tx, amount negative, wallet untouched
  cancel:   owner, pending -> cancelled
  process:  admin, pending -> completed (wallet debited) | failed
  available = balance - sum(|pending withdrawals|)
*/
package wallet

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/ecoback/reward-engine/core"
)

// Entry describes one balance change.
type Entry struct {
	Kind           core.TxKind
	Amount         core.Money // signed: credits positive, debits negative
	Description    string
	Refs           core.TxRefs
	IdempotencyKey string
	Metadata       map[string]string
}

// NewTransactionID returns a fresh ledger id.
func NewTransactionID() core.TransactionID {
	return core.TransactionID(uuid.NewString())
}

// ApplyDelta credits or debits userID's wallet and appends the completed
// transaction. It returns the transaction and the saved user so callers
// can keep updating the user in the same unit of work.
//
// Errors: ErrValidation (zero amount, bad kind), ErrNotFound,
// *InsufficientBalanceError (debit larger than balance),
// ErrAlreadyClaimed (idempotency key already used).
func ApplyDelta(ctx context.Context, r core.Repository, userID core.UserID, e Entry, now time.Time) (*core.Transaction, *core.User, error) {
	if e.Amount.IsZero() {
		return nil, nil, core.Invalid("amount", "must not be zero")
	}
	if !e.Kind.Valid() {
		return nil, nil, core.Invalid("kind", fmt.Sprintf("unknown transaction kind %q", e.Kind))
	}

	if e.IdempotencyKey != "" {
		exists, err := r.TransactionExists(ctx, e.IdempotencyKey)
		if err != nil {
			return nil, nil, err
		}
		if exists {
			return nil, nil, fmt.Errorf("%s: %w", e.IdempotencyKey, core.ErrAlreadyClaimed)
		}
	}

	u, err := r.GetUser(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("user %s: %w", userID, err)
	}
	if err := applyToWallet(&u.Wallet, userID, e.Amount); err != nil {
		return nil, nil, err
	}
	u.UpdatedAt = now
	if err := r.UpdateUser(ctx, *u); err != nil {
		return nil, nil, err
	}

	tx := core.Transaction{
		ID:             NewTransactionID(),
		UserID:         userID,
		Kind:           e.Kind,
		Amount:         e.Amount,
		BalanceAfter:   u.Wallet.Balance,
		Status:         core.TxCompleted,
		Description:    e.Description,
		Refs:           e.Refs,
		IdempotencyKey: e.IdempotencyKey,
		Metadata:       maps.Clone(e.Metadata),
		CreatedAt:      now,
		ProcessedAt:    core.TimePtr(now),
	}
	if err := r.AppendTransaction(ctx, tx); err != nil {
		if errors.Is(err, core.ErrDuplicate) {
			return nil, nil, fmt.Errorf("%s: %w", e.IdempotencyKey, core.ErrAlreadyClaimed)
		}
		return nil, nil, err
	}
	return &tx, u, nil
}

// applyToWallet is the only wallet arithmetic in the engine.
func applyToWallet(w *core.Wallet, userID core.UserID, amount core.Money) error {
	if amount.IsNegative() {
		debit := amount.Abs()
		if debit.GreaterThan(w.Balance) {
			return &core.InsufficientBalanceError{UserID: userID, Available: w.Balance, Requested: debit}
		}
		w.Balance = w.Balance.Sub(debit)
		w.TotalWithdrawn = w.TotalWithdrawn.Add(debit)
		return nil
	}
	w.Balance = w.Balance.Add(amount)
	w.TotalEarned = w.TotalEarned.Add(amount)
	return nil
}

// PendingWithdrawals sums the absolute amounts of userID's pending withdrawals.
func PendingWithdrawals(ctx context.Context, r core.Repository, userID core.UserID) (core.Money, error) {
	pending, _, err := r.ListTransactions(ctx, core.TxFilter{
		UserID:   userID,
		Kinds:    []core.TxKind{core.TxWithdrawal},
		Statuses: []core.TxStatus{core.TxPending, core.TxProcessing},
	})
	if err != nil {
		return core.Money{}, err
	}
	return core.SumAbs(pending), nil
}
