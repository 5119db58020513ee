package wallet

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ecoback/reward-engine/core"
	"github.com/ecoback/reward-engine/rewards"
)

type Service struct {
	store core.Store
	clock core.Clock
	log   *zap.Logger
}

func NewService(store core.Store, clock core.Clock, log *zap.Logger) *Service {
	return &Service{store: store, clock: clock, log: log.Named("wallet")}
}

// =============================================================================
// WITHDRAWALS
// =============================================================================

type BankInfo struct {
	BankName      string `json:"bankName"`
	AccountNumber string `json:"accountNumber"`
	AccountName   string `json:"accountName"`
	Branch        string `json:"branch,omitempty"`
}

func (b BankInfo) validate(v *core.ValidationError) {
	if strings.TrimSpace(b.BankName) == "" {
		v.Add("bankInfo.bankName", "required")
	}
	if strings.TrimSpace(b.AccountNumber) == "" {
		v.Add("bankInfo.accountNumber", "required")
	}
	if strings.TrimSpace(b.AccountName) == "" {
		v.Add("bankInfo.accountName", "required")
	}
}

// RequestWithdrawal records a pending withdrawal. The wallet is not
// touched until an admin completes it, but the amount is reserved: the
// request must fit in balance minus other pending withdrawals.
func (s *Service) RequestWithdrawal(ctx context.Context, userID core.UserID, amount core.Money, bank BankInfo) (*core.Transaction, error) {
	v := &core.ValidationError{}
	if !amount.IsPositive() {
		v.Add("amount", "must be positive")
	} else if amount.LessThan(core.NewMoney(rewards.MinWithdrawal)) {
		v.Add("amount", fmt.Sprintf("minimum withdrawal is %d VND", rewards.MinWithdrawal))
	}
	bank.validate(v)
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var tx core.Transaction
	err := s.store.WithTx(ctx, func(r core.Repository) error {
		u, err := r.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		pending, err := PendingWithdrawals(ctx, r, userID)
		if err != nil {
			return err
		}
		available := u.Wallet.Balance.Sub(pending)
		if amount.GreaterThan(available) {
			return &core.InsufficientBalanceError{UserID: userID, Available: available, Requested: amount}
		}

		tx = core.Transaction{
			ID:           NewTransactionID(),
			UserID:       userID,
			Kind:         core.TxWithdrawal,
			Amount:       amount.Neg(),
			BalanceAfter: u.Wallet.Balance,
			Status:       core.TxPending,
			Description:  fmt.Sprintf("Withdrawal to %s", bank.BankName),
			Metadata: map[string]string{
				"bankName":      bank.BankName,
				"accountNumber": bank.AccountNumber,
				"accountName":   bank.AccountName,
				"branch":        bank.Branch,
			},
			CreatedAt: now,
		}
		return r.AppendTransaction(ctx, tx)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("withdrawal requested",
		zap.String("user_id", string(userID)),
		zap.String("kind", string(core.TxWithdrawal)),
		zap.String("amount", amount.String()),
		zap.String("transaction_id", string(tx.ID)))
	return &tx, nil
}

// CancelWithdrawal lets the owner withdraw a pending request.
func (s *Service) CancelWithdrawal(ctx context.Context, caller core.Principal, id core.TransactionID) (*core.Transaction, error) {
	var tx *core.Transaction
	err := s.store.WithTx(ctx, func(r core.Repository) error {
		var err error
		tx, err = r.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if tx.Kind != core.TxWithdrawal || tx.UserID != caller.ID {
			// do not reveal other users' transactions
			return core.ErrNotFound
		}
		if tx.Status != core.TxPending {
			return fmt.Errorf("withdrawal %s is %s: %w", id, tx.Status, core.ErrAlreadyCompleted)
		}
		tx.Status = core.TxCancelled
		tx.ProcessedAt = core.TimePtr(s.clock.Now())
		tx.ProcessedBy = caller.ID
		return r.UpdateTransactionStatus(ctx, *tx)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("withdrawal cancelled", zap.String("user_id", string(caller.ID)), zap.String("transaction_id", string(id)))
	return tx, nil
}

type Decision string

const (
	DecisionComplete Decision = "completed"
	DecisionReject   Decision = "rejected"
)

// ProcessWithdrawal settles a pending withdrawal. Completing debits the
// wallet in the same unit of work; rejecting marks the request failed.
func (s *Service) ProcessWithdrawal(ctx context.Context, admin core.Principal, id core.TransactionID, d Decision, note string) (*core.Transaction, error) {
	if !admin.IsAdmin() {
		return nil, core.ErrForbidden
	}
	if d != DecisionComplete && d != DecisionReject {
		return nil, core.Invalid("status", "must be completed or rejected")
	}

	now := s.clock.Now()
	var tx *core.Transaction
	err := s.store.WithTx(ctx, func(r core.Repository) error {
		var err error
		tx, err = r.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if tx.Kind != core.TxWithdrawal {
			return core.Invalid("id", "transaction is not a withdrawal")
		}
		if tx.Status != core.TxPending && tx.Status != core.TxProcessing {
			return fmt.Errorf("withdrawal %s is %s: %w", id, tx.Status, core.ErrAlreadyCompleted)
		}

		next := core.TxFailed
		if d == DecisionComplete {
			next = core.TxCompleted
		}
		if !tx.Status.CanTransition(next) {
			return &core.TransitionError{Entity: "withdrawal", From: string(tx.Status), To: string(next)}
		}
		if next == core.TxCompleted {
			u, err := r.GetUser(ctx, tx.UserID)
			if err != nil {
				return err
			}
			if err := applyToWallet(&u.Wallet, u.ID, tx.Amount); err != nil {
				return err
			}
			u.UpdatedAt = now
			if err := r.UpdateUser(ctx, *u); err != nil {
				return err
			}
			tx.BalanceAfter = u.Wallet.Balance
		}

		tx.Status = next
		tx.ProcessedAt = core.TimePtr(now)
		tx.ProcessedBy = admin.ID
		if note != "" {
			if tx.Metadata == nil {
				tx.Metadata = map[string]string{}
			}
			tx.Metadata["adminNote"] = note
		}
		return r.UpdateTransactionStatus(ctx, *tx)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("withdrawal processed",
		zap.String("user_id", string(tx.UserID)),
		zap.String("kind", string(tx.Kind)),
		zap.String("amount", tx.Amount.String()),
		zap.String("transaction_id", string(tx.ID)),
		zap.String("status", string(tx.Status)),
		zap.String("processed_by", string(admin.ID)))
	return tx, nil
}

// Withdrawals lists userID's withdrawal requests, newest first.
func (s *Service) Withdrawals(ctx context.Context, userID core.UserID) ([]core.Transaction, error) {
	var out []core.Transaction
	err := s.store.View(ctx, func(r core.Repository) error {
		var err error
		out, _, err = r.ListTransactions(ctx, core.TxFilter{UserID: userID, Kinds: []core.TxKind{core.TxWithdrawal}})
		return err
	})
	return out, err
}

// =============================================================================
// READS
// =============================================================================

type Summary struct {
	Balance            core.Money         `json:"balance"`
	TotalEarned        core.Money         `json:"totalEarned"`
	TotalWithdrawn     core.Money         `json:"totalWithdrawn"`
	PendingWithdrawals core.Money         `json:"pendingWithdrawals"`
	Available          core.Money         `json:"availableBalance"`
	Recent             []core.Transaction `json:"recentTransactions"`
}

const recentCount = 5

func (s *Service) Summary(ctx context.Context, userID core.UserID) (*Summary, error) {
	var sum Summary
	err := s.store.View(ctx, func(r core.Repository) error {
		u, err := r.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		pending, err := PendingWithdrawals(ctx, r, userID)
		if err != nil {
			return err
		}
		recent, _, err := r.ListTransactions(ctx, core.TxFilter{UserID: userID, Limit: recentCount})
		if err != nil {
			return err
		}
		sum = Summary{
			Balance:            u.Wallet.Balance,
			TotalEarned:        u.Wallet.TotalEarned,
			TotalWithdrawn:     u.Wallet.TotalWithdrawn,
			PendingWithdrawals: pending,
			Available:          u.Wallet.Balance.Sub(pending),
			Recent:             nonNil(recent),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sum, nil
}

type KindTotal struct {
	Kind  core.TxKind `json:"kind"`
	Total core.Money  `json:"total"`
	Count int         `json:"count"`
}

type TxPage struct {
	Items   []core.Transaction `json:"transactions"`
	Page    int                `json:"page"`
	Limit   int                `json:"limit"`
	Total   int                `json:"total"`
	Pages   int                `json:"pages"`
	Summary []KindTotal        `json:"summary"`
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Transactions returns one page of the filtered ledger and per-kind
// totals over every match. page is 1-based. f.Offset/Limit are ignored.
func (s *Service) Transactions(ctx context.Context, f core.TxFilter, page, limit int) (*TxPage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	out := &TxPage{Page: page, Limit: limit}
	err := s.store.View(ctx, func(r core.Repository) error {
		all := f
		all.Offset, all.Limit = 0, 0
		matched, total, err := r.ListTransactions(ctx, all)
		if err != nil {
			return err
		}
		paged := f
		paged.Offset, paged.Limit = (page-1)*limit, limit
		items, _, err := r.ListTransactions(ctx, paged)
		if err != nil {
			return err
		}
		out.Items = nonNil(items)
		out.Total = total
		out.Summary = byKind(matched)
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.Pages = (out.Total + limit - 1) / limit
	return out, nil
}

type MonthTotal struct {
	Year  int        `json:"year"`
	Month int        `json:"month"`
	Total core.Money `json:"total"`
	Count int        `json:"count"`
}

type Stats struct {
	Balance         core.Money   `json:"currentBalance"`
	TotalEarned     core.Money   `json:"totalEarned"`
	TotalWithdrawn  core.Money   `json:"totalWithdrawn"`
	ByKind          []KindTotal  `json:"byType"`
	MonthlyEarnings []MonthTotal `json:"monthlyEarnings"`
}

const statsMonths = 6

// Stats aggregates completed transactions by kind, plus earnings per
// calendar month over the last six months.
func (s *Service) Stats(ctx context.Context, userID core.UserID) (*Stats, error) {
	now := s.clock.Now()
	var st Stats
	err := s.store.View(ctx, func(r core.Repository) error {
		u, err := r.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		completed, _, err := r.ListTransactions(ctx, core.TxFilter{
			UserID:   userID,
			Statuses: []core.TxStatus{core.TxCompleted},
		})
		if err != nil {
			return err
		}
		st = Stats{
			Balance:         u.Wallet.Balance,
			TotalEarned:     u.Wallet.TotalEarned,
			TotalWithdrawn:  u.Wallet.TotalWithdrawn,
			ByKind:          byKind(completed),
			MonthlyEarnings: monthly(completed, now.AddDate(0, -statsMonths, 0)),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func byKind(txs []core.Transaction) []KindTotal {
	idx := map[core.TxKind]int{}
	out := []KindTotal{}
	for _, tx := range txs {
		i, ok := idx[tx.Kind]
		if !ok {
			i = len(out)
			idx[tx.Kind] = i
			out = append(out, KindTotal{Kind: tx.Kind, Total: core.NewMoney(0)})
		}
		out[i].Total = out[i].Total.Add(tx.Amount)
		out[i].Count++
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

func monthly(txs []core.Transaction, since time.Time) []MonthTotal {
	type ym struct{ y, m int }
	idx := map[ym]int{}
	out := []MonthTotal{}
	for _, tx := range txs {
		if !tx.Kind.IsEarning() || tx.CreatedAt.Before(since) {
			continue
		}
		k := ym{tx.CreatedAt.Year(), int(tx.CreatedAt.Month())}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, MonthTotal{Year: k.y, Month: k.m, Total: core.NewMoney(0)})
		}
		out[i].Total = out[i].Total.Add(tx.Amount)
		out[i].Count++
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out
}

func nonNil(txs []core.Transaction) []core.Transaction {
	if txs == nil {
		return []core.Transaction{}
	}
	return txs
}
