package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoback/reward-engine/core"
	"github.com/ecoback/reward-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var t0 = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *sqlite.Store {
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func testUser(id, email, phone string) core.User {
	return core.User{
		ID:           core.UserID(id),
		FullName:     "User " + id,
		Email:        email,
		Phone:        phone,
		Role:         core.RoleUser,
		Level:        1,
		ReferralCode: "REF" + id,
		IsActive:     true,
		CreatedAt:    t0,
		UpdatedAt:    t0,
	}
}

func creditTx(id, user string, amount int64, key string, at time.Time) core.Transaction {
	return core.Transaction{
		ID:             core.TransactionID(id),
		UserID:         core.UserID(user),
		Kind:           core.TxCashback,
		Amount:         core.NewMoney(amount),
		BalanceAfter:   core.NewMoney(amount),
		Status:         core.TxCompleted,
		IdempotencyKey: key,
		CreatedAt:      at,
	}
}

// =============================================================================
// UNIQUE INDEX TESTS
// =============================================================================

func TestStore_UserEmailAndPhoneAreUnique(t *testing.T) {
	// GIVEN: A stored user
	// WHEN: Creating another user with the same email, then the same phone
	// THEN: Both fail with ErrDuplicate

	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.WithTx(ctx, func(r core.Repository) error {
		return r.CreateUser(ctx, testUser("u1", "a@example.com", "0900000001"))
	}))

	err := st.WithTx(ctx, func(r core.Repository) error {
		return r.CreateUser(ctx, testUser("u2", "A@Example.com", "0900000002"))
	})
	assert.ErrorIs(t, err, core.ErrDuplicate, "email match is case-insensitive")

	err = st.WithTx(ctx, func(r core.Repository) error {
		return r.CreateUser(ctx, testUser("u3", "c@example.com", "0900000001"))
	})
	assert.ErrorIs(t, err, core.ErrDuplicate)
}

func TestStore_UserLookups(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	u := testUser("u1", "a@example.com", "0900000001")
	u.Wallet.Balance = core.NewMoney(12000)
	u.Impact.PlasticRecycled = core.Kg(1.25)
	require.NoError(t, st.WithTx(ctx, func(r core.Repository) error {
		return r.CreateUser(ctx, u)
	}))

	require.NoError(t, st.View(ctx, func(r core.Repository) error {
		byEmail, err := r.GetUserByEmail(ctx, "A@EXAMPLE.COM")
		require.NoError(t, err)
		assert.Equal(t, core.UserID("u1"), byEmail.ID)
		assert.True(t, byEmail.Wallet.Balance.Equal(core.NewMoney(12000)))
		assert.True(t, byEmail.Impact.PlasticRecycled.Equal(core.Kg(1.25)))

		byCode, err := r.GetUserByReferralCode(ctx, "refu1")
		require.NoError(t, err)
		assert.Equal(t, core.UserID("u1"), byCode.ID)

		_, err = r.GetUser(ctx, "missing")
		assert.ErrorIs(t, err, core.ErrNotFound)
		return nil
	}))
}

func TestStore_QRCodeBatchIsAllOrNothing(t *testing.T) {
	// GIVEN: A stored QR code "abc"
	// WHEN: Inserting a batch that repeats "abc" in its second entry
	// THEN: The insert fails and the first entry of the batch is not kept

	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.WithTx(ctx, func(r core.Repository) error {
		return r.InsertQRCodes(ctx, []core.QRCode{{ID: "q1", Code: "abc", ProductID: "p1", BatchID: "b1", CreatedAt: t0}})
	}))

	err := st.WithTx(ctx, func(r core.Repository) error {
		return r.InsertQRCodes(ctx, []core.QRCode{
			{ID: "q2", Code: "def", ProductID: "p1", BatchID: "b2", CreatedAt: t0},
			{ID: "q3", Code: "abc", ProductID: "p1", BatchID: "b2", CreatedAt: t0},
		})
	})
	assert.ErrorIs(t, err, core.ErrDuplicate)

	require.NoError(t, st.View(ctx, func(r core.Repository) error {
		_, err := r.GetQRCodeByCode(ctx, "def")
		assert.ErrorIs(t, err, core.ErrNotFound)
		return nil
	}))
}

func TestStore_IdempotencyKeyIsUnique(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.WithTx(ctx, func(r core.Repository) error {
		return r.AppendTransaction(ctx, creditTx("tx-1", "u1", 1000, "cashback:q1", t0))
	}))

	err := st.WithTx(ctx, func(r core.Repository) error {
		return r.AppendTransaction(ctx, creditTx("tx-2", "u1", 1000, "cashback:q1", t0))
	})
	assert.ErrorIs(t, err, core.ErrDuplicate)

	require.NoError(t, st.View(ctx, func(r core.Repository) error {
		ok, err := r.TransactionExists(ctx, "cashback:q1")
		require.NoError(t, err)
		assert.True(t, ok)
		return nil
	}))
}

// =============================================================================
// UNIT OF WORK TESTS
// =============================================================================

func TestStore_WithTx_RollsBackEveryWrite(t *testing.T) {
	// GIVEN: A user with zero balance
	// WHEN: A unit of work credits the wallet, appends a transaction, then fails
	// THEN: Neither the wallet change nor the transaction is visible

	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.WithTx(ctx, func(r core.Repository) error {
		return r.CreateUser(ctx, testUser("u1", "a@example.com", ""))
	}))

	boom := errors.New("boom")
	err := st.WithTx(ctx, func(r core.Repository) error {
		u, err := r.GetUser(ctx, "u1")
		if err != nil {
			return err
		}
		u.Wallet.Balance = core.NewMoney(5000)
		if err := r.UpdateUser(ctx, *u); err != nil {
			return err
		}
		if err := r.AppendTransaction(ctx, creditTx("tx-1", "u1", 5000, "k1", t0)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, st.View(ctx, func(r core.Repository) error {
		u, err := r.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, u.Wallet.Balance.IsZero())

		_, err = r.GetTransaction(ctx, "tx-1")
		assert.ErrorIs(t, err, core.ErrNotFound)
		return nil
	}))
}

func TestStore_View_RefusesWrites(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	err := st.View(ctx, func(r core.Repository) error {
		return r.CreateUser(ctx, testUser("u1", "a@example.com", ""))
	})
	assert.ErrorIs(t, err, core.ErrReadOnly)
}

// =============================================================================
// LEDGER QUERY TESTS
// =============================================================================

func TestStore_ListTransactions_FilterAndPaginate(t *testing.T) {
	// GIVEN: 5 cashback credits and 1 pending withdrawal for u1, 1 credit for u2
	// WHEN: Listing u1's cashback transactions, page size 2
	// THEN: Newest first, total counts every match

	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.WithTx(ctx, func(r core.Repository) error {
		for i := 0; i < 5; i++ {
			tx := creditTx(fmt.Sprintf("tx-%d", i), "u1", int64(1000*(i+1)), "", t0.Add(time.Duration(i)*time.Hour))
			if err := r.AppendTransaction(ctx, tx); err != nil {
				return err
			}
		}
		w := creditTx("tx-w", "u1", -50000, "", t0.Add(10*time.Hour))
		w.Kind = core.TxWithdrawal
		w.Status = core.TxPending
		if err := r.AppendTransaction(ctx, w); err != nil {
			return err
		}
		return r.AppendTransaction(ctx, creditTx("tx-other", "u2", 1000, "", t0))
	}))

	require.NoError(t, st.View(ctx, func(r core.Repository) error {
		page, total, err := r.ListTransactions(ctx, core.TxFilter{
			UserID: "u1",
			Kinds:  []core.TxKind{core.TxCashback},
			Limit:  2,
		})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, page, 2)
		assert.Equal(t, core.TransactionID("tx-4"), page[0].ID)
		assert.Equal(t, core.TransactionID("tx-3"), page[1].ID)

		min := core.NewMoney(3000)
		big, total, err := r.ListTransactions(ctx, core.TxFilter{UserID: "u1", MinAmount: &min})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Len(t, big, 3)

		pending, _, err := r.ListTransactions(ctx, core.TxFilter{
			UserID:   "u1",
			Statuses: []core.TxStatus{core.TxPending},
		})
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.True(t, pending[0].Amount.Equal(core.NewMoney(-50000)))
		return nil
	}))
}

func TestStore_UpdateTransactionStatus_KeepsAmount(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	w := creditTx("tx-w", "u1", -50000, "", t0)
	w.Kind = core.TxWithdrawal
	w.Status = core.TxPending
	require.NoError(t, st.WithTx(ctx, func(r core.Repository) error { return r.AppendTransaction(ctx, w) }))

	settled := w
	settled.Amount = core.NewMoney(-1) // ignored
	settled.Status = core.TxCompleted
	settled.BalanceAfter = core.NewMoney(10000)
	settled.ProcessedAt = core.TimePtr(t0.Add(time.Hour))
	settled.ProcessedBy = "admin"
	require.NoError(t, st.WithTx(ctx, func(r core.Repository) error { return r.UpdateTransactionStatus(ctx, settled) }))

	require.NoError(t, st.View(ctx, func(r core.Repository) error {
		got, err := r.GetTransaction(ctx, "tx-w")
		require.NoError(t, err)
		assert.Equal(t, core.TxCompleted, got.Status)
		assert.True(t, got.Amount.Equal(core.NewMoney(-50000)))
		assert.True(t, got.BalanceAfter.Equal(core.NewMoney(10000)))
		require.NotNil(t, got.ProcessedAt)
		assert.True(t, got.ProcessedAt.Equal(t0.Add(time.Hour)))
		assert.Equal(t, core.UserID("admin"), got.ProcessedBy)
		return nil
	}))
}

// =============================================================================
// DOCUMENT TABLE TESTS
// =============================================================================

func TestStore_ListQRCodes_ScannedBy(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	q1 := core.QRCode{ID: "q1", Code: "c1", ProductID: "p1", BatchID: "b1", SerialNumber: 1, CreatedAt: t0}
	q2 := core.QRCode{ID: "q2", Code: "c2", ProductID: "p1", BatchID: "b1", SerialNumber: 2, CreatedAt: t0}
	require.NoError(t, st.WithTx(ctx, func(r core.Repository) error {
		return r.InsertQRCodes(ctx, []core.QRCode{q1, q2})
	}))

	q2.RecordScan("u1", t0, nil, core.ScanView)
	require.NoError(t, st.WithTx(ctx, func(r core.Repository) error { return r.UpdateQRCode(ctx, q2) }))

	require.NoError(t, st.View(ctx, func(r core.Repository) error {
		mine, err := r.ListQRCodes(ctx, core.QRCodeFilter{ScannedBy: "u1"})
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, "q2", mine[0].ID)
		assert.Equal(t, 1, mine[0].Stats.TotalScans)

		batch, err := r.ListQRCodes(ctx, core.QRCodeFilter{BatchID: "b1"})
		require.NoError(t, err)
		assert.Len(t, batch, 2)
		return nil
	}))
}

func TestStore_RecycleRequests_FilterByCollector(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.WithTx(ctx, func(r core.Repository) error {
		for i, collector := range []core.UserID{"c1", "c2", ""} {
			req := core.RecycleRequest{
				ID:                fmt.Sprintf("r%d", i),
				UserID:            "u1",
				Status:            core.RequestPending,
				AssignedCollector: collector,
				CreatedAt:         t0.Add(time.Duration(i) * time.Minute),
			}
			if err := r.CreateRequest(ctx, req); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, st.View(ctx, func(r core.Repository) error {
		got, total, err := r.ListRequests(ctx, core.RequestFilter{CollectorID: "c2"})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Equal(t, "r1", got[0].ID)

		all, total, err := r.ListRequests(ctx, core.RequestFilter{UserID: "u1"})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Equal(t, "r2", all[0].ID, "newest first")
		return nil
	}))
}

func TestStore_CollectionPoints_ActiveAndCity(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.WithTx(ctx, func(r core.Repository) error {
		for _, p := range []core.CollectionPoint{
			{ID: "p1", Name: "A", City: "Hanoi", IsActive: true},
			{ID: "p2", Name: "B", City: "hanoi", IsActive: false},
			{ID: "p3", Name: "C", City: "Da Nang", IsActive: true},
		} {
			if err := r.CreatePoint(ctx, p); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, st.View(ctx, func(r core.Repository) error {
		got, err := r.ListPoints(ctx, core.PointFilter{City: "HANOI", ActiveOnly: true})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "p1", got[0].ID)
		return nil
	}))
}
