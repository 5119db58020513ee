/*
ledger.go - Append-only record of every balance-affecting event

PURPOSE:
  The Transaction ledger is the source of truth for "what happened".
  The wallet on the user document is a mutable snapshot; the ledger is
  what you replay to explain it.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: transactions are never deleted
  2. AMOUNT-IMMUTABLE: amount, kind and user never change after append
  3. MONOTONIC STATUS: only forward moves (see txTransitions); the single
     backwards-looking move allowed is pending -> cancelled
  4. BALANCE-AFTER: for completed transactions, balanceAfter equals the
     wallet balance immediately after amount was applied
  5. IDEMPOTENT: a non-empty idempotency key is unique across the ledger

LIFECYCLE:
  rewards (cashback, recycle-reward, referral-bonus, adjustment):
      created completed
  withdrawals:
      pending ──▶ completed       (admin settles, wallet debited)
         │  └──▶ failed          (admin rejects)
         └─────▶ cancelled       (owner cancels)

SEE ALSO:
  - wallet/accounting.go: ApplyDelta, the only writer of completed credits/debits
  - store.go: TransactionRepository
*/
package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TRANSACTION
// =============================================================================

type TxKind string

const (
	TxCashback      TxKind = "cashback"
	TxRecycleReward TxKind = "recycle-reward"
	TxReferralBonus TxKind = "referral-bonus"
	TxWithdrawal    TxKind = "withdrawal"
	TxRefund        TxKind = "refund"
	TxAdjustment    TxKind = "adjustment"
	TxPurchase      TxKind = "purchase"
)

func (k TxKind) Valid() bool {
	switch k {
	case TxCashback, TxRecycleReward, TxReferralBonus, TxWithdrawal, TxRefund, TxAdjustment, TxPurchase:
		return true
	}
	return false
}

// IsEarning reports whether the kind counts toward earnings statistics.
func (k TxKind) IsEarning() bool {
	return k == TxCashback || k == TxRecycleReward || k == TxReferralBonus
}

type TxStatus string

const (
	TxPending    TxStatus = "pending"
	TxProcessing TxStatus = "processing"
	TxCompleted  TxStatus = "completed"
	TxFailed     TxStatus = "failed"
	TxCancelled  TxStatus = "cancelled"
)

var txTransitions = map[TxStatus][]TxStatus{
	TxPending:    {TxProcessing, TxCompleted, TxFailed, TxCancelled},
	TxProcessing: {TxCompleted, TxFailed},
}

// CanTransition reports whether a stored transaction may move from s to next.
func (s TxStatus) CanTransition(next TxStatus) bool {
	for _, allowed := range txTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s TxStatus) IsTerminal() bool {
	return len(txTransitions[s]) == 0
}

// TxRefs links a transaction to the entities that caused it.
type TxRefs struct {
	ProductID         string `json:"productId,omitempty"`
	QRCodeID          string `json:"qrCodeId,omitempty"`
	RecycleRequestID  string `json:"recycleRequestId,omitempty"`
	CollectionPointID string `json:"collectionPointId,omitempty"`
	RelatedUserID     UserID `json:"relatedUserId,omitempty"`
}

type Transaction struct {
	ID             TransactionID     `json:"id"`
	UserID         UserID            `json:"userId"`
	Kind           TxKind            `json:"kind"`
	Amount         Money             `json:"amount"` // signed; withdrawals are negative
	BalanceAfter   Money             `json:"balanceAfter"`
	Status         TxStatus          `json:"status"`
	Description    string            `json:"description"`
	Refs           TxRefs            `json:"refs"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	ProcessedAt    *time.Time        `json:"processedAt,omitempty"`
	ProcessedBy    UserID            `json:"processedBy,omitempty"`
}

// TxFilter selects ledger entries. Zero fields do not filter.
type TxFilter struct {
	UserID    UserID
	Kinds     []TxKind
	Statuses  []TxStatus
	From      *time.Time
	To        *time.Time
	MinAmount *Money
	MaxAmount *Money
	Offset    int
	Limit     int // 0 = no limit
}

// Matches evaluates the filter in memory. Stores that can push the
// predicate into a query do so; this is the reference semantics.
func (f TxFilter) Matches(tx Transaction) bool {
	if f.UserID != "" && tx.UserID != f.UserID {
		return false
	}
	if len(f.Kinds) > 0 && !containsKind(f.Kinds, tx.Kind) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, tx.Status) {
		return false
	}
	if f.From != nil && tx.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && tx.CreatedAt.After(*f.To) {
		return false
	}
	if f.MinAmount != nil && tx.Amount.LessThan(*f.MinAmount) {
		return false
	}
	if f.MaxAmount != nil && tx.Amount.GreaterThan(*f.MaxAmount) {
		return false
	}
	return true
}

func containsKind(ks []TxKind, k TxKind) bool {
	for _, x := range ks {
		if x == k {
			return true
		}
	}
	return false
}

func containsStatus(ss []TxStatus, s TxStatus) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

// =============================================================================
// REPLAY
// =============================================================================

// Replay recomputes a wallet from completed ledger entries, oldest first.
// Used to audit the stored wallet snapshot.
func Replay(txs []Transaction) Wallet {
	var w Wallet
	for _, tx := range txs {
		if tx.Status != TxCompleted {
			continue
		}
		w.Balance = w.Balance.Add(tx.Amount)
		if tx.Amount.IsPositive() {
			w.TotalEarned = w.TotalEarned.Add(tx.Amount)
		} else {
			w.TotalWithdrawn = w.TotalWithdrawn.Add(tx.Amount.Abs())
		}
	}
	return w
}

// SumAbs totals the absolute amounts of the given transactions.
func SumAbs(txs []Transaction) Money {
	total := Money{Value: decimal.Zero}
	for _, tx := range txs {
		total = total.Add(tx.Amount.Abs())
	}
	return total
}
