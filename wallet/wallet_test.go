package wallet_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ecoback/reward-engine/core"
	"github.com/ecoback/reward-engine/core/store"
	"github.com/ecoback/reward-engine/wallet"
)

var t0 = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

var (
	alice = core.Principal{ID: "alice", Role: core.RoleUser}
	bob   = core.Principal{ID: "bob", Role: core.RoleUser}
	admin = core.Principal{ID: "admin", Role: core.RoleAdmin}
)

var bank = wallet.BankInfo{BankName: "VCB", AccountNumber: "0123456789", AccountName: "ALICE"}

type fixture struct {
	ctx   context.Context
	store *store.Memory
	clock *core.FixedClock
	svc   *wallet.Service
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:   context.Background(),
		store: store.NewMemory(),
		clock: core.NewFixedClock(t0),
	}
	f.svc = wallet.NewService(f.store, f.clock, zap.NewNop())
	require.NoError(t, f.store.WithTx(f.ctx, func(r core.Repository) error {
		for _, p := range []core.Principal{alice, bob, admin} {
			if err := r.CreateUser(f.ctx, core.User{
				ID: p.ID, Email: string(p.ID) + "@ecoback.vn", Role: p.Role, Level: 1, IsActive: true, CreatedAt: t0,
			}); err != nil {
				return err
			}
		}
		return nil
	}))
	return f
}

// credit runs one ApplyDelta in its own unit of work.
func (f *fixture) credit(t *testing.T, user core.UserID, kind core.TxKind, amount int64, key string) (*core.Transaction, error) {
	t.Helper()
	var tx *core.Transaction
	err := f.store.WithTx(f.ctx, func(r core.Repository) error {
		var err error
		tx, _, err = wallet.ApplyDelta(f.ctx, r, user, wallet.Entry{
			Kind:           kind,
			Amount:         core.NewMoney(amount),
			Description:    "test",
			IdempotencyKey: key,
		}, f.clock.Now())
		return err
	})
	return tx, err
}

func (f *fixture) user(t *testing.T, id core.UserID) *core.User {
	t.Helper()
	var u *core.User
	require.NoError(t, f.store.View(f.ctx, func(r core.Repository) error {
		var err error
		u, err = r.GetUser(f.ctx, id)
		return err
	}))
	return u
}

func (f *fixture) ledger(t *testing.T, id core.UserID) []core.Transaction {
	t.Helper()
	var txs []core.Transaction
	require.NoError(t, f.store.View(f.ctx, func(r core.Repository) error {
		var err error
		txs, _, err = r.ListTransactions(f.ctx, core.TxFilter{UserID: id})
		return err
	}))
	return txs
}

// =============================================================================
// APPLY DELTA
// =============================================================================

func TestApplyDelta_CreditAndDebitTrackBalanceAfter(t *testing.T) {
	// GIVEN: A user with an empty wallet
	// WHEN: Crediting 11000, crediting 50000, then debiting 20000
	// THEN: Each transaction's balanceAfter is the running balance and totals split by sign

	f := setup(t)

	tx1, err := f.credit(t, "alice", core.TxRecycleReward, 11000, "")
	require.NoError(t, err)
	tx2, err := f.credit(t, "alice", core.TxReferralBonus, 50000, "")
	require.NoError(t, err)
	tx3, err := f.credit(t, "alice", core.TxAdjustment, -20000, "")
	require.NoError(t, err)

	assert.True(t, tx1.BalanceAfter.Equal(core.NewMoney(11000)))
	assert.True(t, tx2.BalanceAfter.Equal(core.NewMoney(61000)))
	assert.True(t, tx3.BalanceAfter.Equal(core.NewMoney(41000)))
	assert.Equal(t, core.TxCompleted, tx3.Status)
	require.NotNil(t, tx3.ProcessedAt)

	u := f.user(t, "alice")
	assert.True(t, u.Wallet.Balance.Equal(core.NewMoney(41000)))
	assert.True(t, u.Wallet.TotalEarned.Equal(core.NewMoney(61000)))
	assert.True(t, u.Wallet.TotalWithdrawn.Equal(core.NewMoney(20000)))

	replayed := core.Replay(reverse(f.ledger(t, "alice")))
	assert.True(t, replayed.Balance.Equal(u.Wallet.Balance), "ledger explains the wallet")
}

func TestApplyDelta_DebitBeyondBalanceLeavesNoTrace(t *testing.T) {
	f := setup(t)
	_, err := f.credit(t, "alice", core.TxCashback, 1000, "")
	require.NoError(t, err)

	_, err = f.credit(t, "alice", core.TxAdjustment, -1001, "")

	var ib *core.InsufficientBalanceError
	require.ErrorAs(t, err, &ib)
	assert.True(t, ib.Available.Equal(core.NewMoney(1000)))
	assert.True(t, f.user(t, "alice").Wallet.Balance.Equal(core.NewMoney(1000)))
	assert.Len(t, f.ledger(t, "alice"), 1)
}

func TestApplyDelta_IdempotencyKeyCreditsOnce(t *testing.T) {
	// GIVEN: A cashback credited under key cashback:qr-1
	// WHEN: The same key is applied again
	// THEN: ErrAlreadyClaimed and the balance is unchanged

	f := setup(t)
	_, err := f.credit(t, "alice", core.TxCashback, 5000, "cashback:qr-1")
	require.NoError(t, err)

	_, err = f.credit(t, "alice", core.TxCashback, 5000, "cashback:qr-1")
	assert.ErrorIs(t, err, core.ErrAlreadyClaimed)
	assert.True(t, f.user(t, "alice").Wallet.Balance.Equal(core.NewMoney(5000)))
}

func TestApplyDelta_Validation(t *testing.T) {
	f := setup(t)

	_, err := f.credit(t, "alice", core.TxCashback, 0, "")
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = f.credit(t, "alice", core.TxKind("gift"), 10, "")
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = f.credit(t, "nobody", core.TxCashback, 10, "")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

// =============================================================================
// WITHDRAWALS
// =============================================================================

func TestRequestWithdrawal_ReservesPendingAmount(t *testing.T) {
	// GIVEN: A balance of 120000 and a pending withdrawal of 60000
	// WHEN: Requesting another 70000
	// THEN: InsufficientBalance and no transaction is created

	f := setup(t)
	_, err := f.credit(t, "alice", core.TxRecycleReward, 120000, "")
	require.NoError(t, err)

	first, err := f.svc.RequestWithdrawal(f.ctx, "alice", core.NewMoney(60000), bank)
	require.NoError(t, err)
	assert.Equal(t, core.TxPending, first.Status)
	assert.True(t, first.Amount.Equal(core.NewMoney(-60000)))
	assert.True(t, f.user(t, "alice").Wallet.Balance.Equal(core.NewMoney(120000)), "wallet untouched while pending")

	_, err = f.svc.RequestWithdrawal(f.ctx, "alice", core.NewMoney(70000), bank)
	var ib *core.InsufficientBalanceError
	require.ErrorAs(t, err, &ib)
	assert.True(t, ib.Available.Equal(core.NewMoney(60000)))
	assert.Len(t, f.ledger(t, "alice"), 2)
}

func TestRequestWithdrawal_Validation(t *testing.T) {
	f := setup(t)
	_, err := f.credit(t, "alice", core.TxRecycleReward, 100000, "")
	require.NoError(t, err)

	_, err = f.svc.RequestWithdrawal(f.ctx, "alice", core.NewMoney(49999), bank)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = f.svc.RequestWithdrawal(f.ctx, "alice", core.NewMoney(50000), wallet.BankInfo{BankName: "VCB"})
	var ve *core.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "bankInfo.accountNumber")
	assert.Contains(t, ve.Fields, "bankInfo.accountName")
}

func TestProcessWithdrawal_CompleteDebitsOnce(t *testing.T) {
	// GIVEN: A pending withdrawal of 50000 on a 80000 balance
	// WHEN: An admin completes it, then tries to complete it again
	// THEN: The wallet is debited once and the second call is AlreadyCompleted

	f := setup(t)
	_, err := f.credit(t, "alice", core.TxCashback, 80000, "")
	require.NoError(t, err)
	w, err := f.svc.RequestWithdrawal(f.ctx, "alice", core.NewMoney(50000), bank)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	done, err := f.svc.ProcessWithdrawal(f.ctx, admin, w.ID, wallet.DecisionComplete, "paid")
	require.NoError(t, err)
	assert.Equal(t, core.TxCompleted, done.Status)
	assert.True(t, done.BalanceAfter.Equal(core.NewMoney(30000)))
	assert.Equal(t, core.UserID("admin"), done.ProcessedBy)
	assert.Equal(t, "paid", done.Metadata["adminNote"])
	assert.Equal(t, "VCB", done.Metadata["bankName"])

	_, err = f.svc.ProcessWithdrawal(f.ctx, admin, w.ID, wallet.DecisionComplete, "")
	assert.ErrorIs(t, err, core.ErrAlreadyCompleted)

	u := f.user(t, "alice")
	assert.True(t, u.Wallet.Balance.Equal(core.NewMoney(30000)))
	assert.True(t, u.Wallet.TotalWithdrawn.Equal(core.NewMoney(50000)))
}

func TestProcessWithdrawal_RejectLeavesWalletAlone(t *testing.T) {
	f := setup(t)
	_, err := f.credit(t, "alice", core.TxCashback, 80000, "")
	require.NoError(t, err)
	w, err := f.svc.RequestWithdrawal(f.ctx, "alice", core.NewMoney(50000), bank)
	require.NoError(t, err)

	rejected, err := f.svc.ProcessWithdrawal(f.ctx, admin, w.ID, wallet.DecisionReject, "account name mismatch")
	require.NoError(t, err)
	assert.Equal(t, core.TxFailed, rejected.Status)
	assert.True(t, f.user(t, "alice").Wallet.Balance.Equal(core.NewMoney(80000)))

	// the reservation is released
	_, err = f.svc.RequestWithdrawal(f.ctx, "alice", core.NewMoney(80000), bank)
	assert.NoError(t, err)
}

func TestProcessWithdrawal_Guards(t *testing.T) {
	f := setup(t)
	reward, err := f.credit(t, "alice", core.TxCashback, 80000, "")
	require.NoError(t, err)
	w, err := f.svc.RequestWithdrawal(f.ctx, "alice", core.NewMoney(50000), bank)
	require.NoError(t, err)

	_, err = f.svc.ProcessWithdrawal(f.ctx, alice, w.ID, wallet.DecisionComplete, "")
	assert.ErrorIs(t, err, core.ErrForbidden)

	_, err = f.svc.ProcessWithdrawal(f.ctx, admin, w.ID, wallet.Decision("approved"), "")
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = f.svc.ProcessWithdrawal(f.ctx, admin, reward.ID, wallet.DecisionComplete, "")
	assert.ErrorIs(t, err, core.ErrValidation, "not a withdrawal")

	_, err = f.svc.ProcessWithdrawal(f.ctx, admin, "missing", wallet.DecisionComplete, "")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCancelWithdrawal(t *testing.T) {
	// GIVEN: A pending withdrawal owned by alice
	// WHEN: Bob tries to cancel it, then alice cancels it twice
	// THEN: Bob sees NotFound, alice's first cancel wins, the second is AlreadyCompleted

	f := setup(t)
	_, err := f.credit(t, "alice", core.TxCashback, 60000, "")
	require.NoError(t, err)
	w, err := f.svc.RequestWithdrawal(f.ctx, "alice", core.NewMoney(50000), bank)
	require.NoError(t, err)

	_, err = f.svc.CancelWithdrawal(f.ctx, bob, w.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	cancelled, err := f.svc.CancelWithdrawal(f.ctx, alice, w.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TxCancelled, cancelled.Status)

	_, err = f.svc.CancelWithdrawal(f.ctx, alice, w.ID)
	assert.ErrorIs(t, err, core.ErrAlreadyCompleted)

	_, err = f.svc.ProcessWithdrawal(f.ctx, admin, w.ID, wallet.DecisionComplete, "")
	assert.ErrorIs(t, err, core.ErrAlreadyCompleted)
}

// =============================================================================
// READS
// =============================================================================

func TestSummary(t *testing.T) {
	f := setup(t)
	for i := 0; i < 7; i++ {
		f.clock.Advance(time.Minute)
		_, err := f.credit(t, "alice", core.TxCashback, 10000, "")
		require.NoError(t, err)
	}
	_, err := f.svc.RequestWithdrawal(f.ctx, "alice", core.NewMoney(50000), bank)
	require.NoError(t, err)

	sum, err := f.svc.Summary(f.ctx, "alice")
	require.NoError(t, err)
	assert.True(t, sum.Balance.Equal(core.NewMoney(70000)))
	assert.True(t, sum.PendingWithdrawals.Equal(core.NewMoney(50000)))
	assert.True(t, sum.Available.Equal(core.NewMoney(20000)))
	assert.Len(t, sum.Recent, 5)
	assert.Equal(t, core.TxWithdrawal, sum.Recent[0].Kind, "newest first")
}

func TestTransactions_PagesAndSummarizesByKind(t *testing.T) {
	// GIVEN: 3 cashback and 2 recycle rewards
	// WHEN: Listing cashback only with limit 2, page 2
	// THEN: One item on the page, total 3, summary covers every match

	f := setup(t)
	for i := 0; i < 3; i++ {
		f.clock.Advance(time.Minute)
		_, err := f.credit(t, "alice", core.TxCashback, 1000, "")
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		f.clock.Advance(time.Minute)
		_, err := f.credit(t, "alice", core.TxRecycleReward, 2000, "")
		require.NoError(t, err)
	}

	page, err := f.svc.Transactions(f.ctx, core.TxFilter{UserID: "alice", Kinds: []core.TxKind{core.TxCashback}}, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Pages)
	require.Len(t, page.Summary, 1)
	assert.Equal(t, 3, page.Summary[0].Count)
	assert.True(t, page.Summary[0].Total.Equal(core.NewMoney(3000)))

	all, err := f.svc.Transactions(f.ctx, core.TxFilter{UserID: "alice"}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, wallet.DefaultPageSize, all.Limit)
	assert.Equal(t, 1, all.Page)
	assert.Len(t, all.Summary, 2)
}

func TestStats_MonthlyEarningsWindow(t *testing.T) {
	// GIVEN: Earnings in January, February and ten months earlier
	// WHEN: Reading stats in March
	// THEN: Only the last six months appear, ascending

	f := setup(t)
	f.clock.Set(time.Date(2024, time.May, 5, 0, 0, 0, 0, time.UTC))
	_, err := f.credit(t, "alice", core.TxCashback, 9000, "")
	require.NoError(t, err)
	f.clock.Set(time.Date(2025, time.January, 5, 0, 0, 0, 0, time.UTC))
	_, err = f.credit(t, "alice", core.TxCashback, 1000, "")
	require.NoError(t, err)
	f.clock.Set(time.Date(2025, time.February, 5, 0, 0, 0, 0, time.UTC))
	_, err = f.credit(t, "alice", core.TxRecycleReward, 2000, "")
	require.NoError(t, err)
	_, err = f.credit(t, "alice", core.TxAdjustment, -500, "")
	require.NoError(t, err)

	f.clock.Set(t0)
	st, err := f.svc.Stats(f.ctx, "alice")
	require.NoError(t, err)

	require.Len(t, st.MonthlyEarnings, 2)
	assert.Equal(t, 1, st.MonthlyEarnings[0].Month)
	assert.Equal(t, 2, st.MonthlyEarnings[1].Month)
	assert.True(t, st.MonthlyEarnings[1].Total.Equal(core.NewMoney(2000)), "adjustments are not earnings")
	assert.Len(t, st.ByKind, 3)
	assert.True(t, st.Balance.Equal(core.NewMoney(11500)))
}

func TestWithdrawals_ListsOnlyOwnWithdrawals(t *testing.T) {
	f := setup(t)
	_, err := f.credit(t, "alice", core.TxCashback, 60000, "")
	require.NoError(t, err)
	_, err = f.svc.RequestWithdrawal(f.ctx, "alice", core.NewMoney(50000), bank)
	require.NoError(t, err)

	mine, err := f.svc.Withdrawals(f.ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	theirs, err := f.svc.Withdrawals(f.ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, theirs)
}

func reverse(txs []core.Transaction) []core.Transaction {
	out := make([]core.Transaction, len(txs))
	for i, tx := range txs {
		out[len(txs)-1-i] = tx
	}
	return out
}
