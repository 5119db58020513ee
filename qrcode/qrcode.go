/*
Package qrcode implements the per-unit QR code lifecycle: batch generation,
view scans, and the two independent sub-claims (cashback and recycle).

STATES:
  active ──▶ used          once every non-zero reward is claimed
     │
     ├────▶ expired       derived from expiresAt on read, never swept
     └────▶ deactivated   admin tombstone; codes are never deleted

CLAIM (one unit of work):
  1. load code, check deactivated / expired / already claimed / zero amount
  2. wallet.ApplyDelta with key cashback:<id> or recycle:<id>
  3. xp, badges, impact counters on the same user record
  4. set the claim, append the scan entry, flip to used when fully claimed

  A second claim on the same sub-reward sees the first one's commit and
  fails with ErrAlreadyClaimed. The idempotency key backs this up at the
  ledger level.

VIEW SCANS:
  Always recorded when the code exists, even if it is expired or fully
  used. The result reports claim eligibility without side effects.
*/
package qrcode

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ecoback/reward-engine/collection"
	"github.com/ecoback/reward-engine/core"
	"github.com/ecoback/reward-engine/gamification"
	"github.com/ecoback/reward-engine/rewards"
	"github.com/ecoback/reward-engine/wallet"
)

// codeBytes of entropy give 32 hex characters per code.
const codeBytes = 16

type Service struct {
	store core.Store
	clock core.Clock
	log   *zap.Logger
}

func NewService(store core.Store, clock core.Clock, log *zap.Logger) *Service {
	return &Service{store: store, clock: clock, log: log.Named("qrcode")}
}

// =============================================================================
// GENERATION
// =============================================================================

type CodeRef struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

type Batch struct {
	BatchID        string     `json:"batchId"`
	BatchName      string     `json:"batchName"`
	ProductID      string     `json:"productId"`
	ProductName    string     `json:"productName"`
	Quantity       int        `json:"quantity"`
	CashbackAmount core.Money `json:"cashbackAmount"`
	RecycleReward  core.Money `json:"recycleReward"`
	ExpiresAt      time.Time  `json:"expiresAt"`
	Codes          []CodeRef  `json:"codes"`
}

// GenerateBatch creates quantity codes for productID in one insert.
func (s *Service) GenerateBatch(ctx context.Context, caller core.Principal, productID string, quantity int, batchName string) (*Batch, error) {
	v := &core.ValidationError{}
	if productID == "" {
		v.Add("productId", "required")
	}
	if quantity < 1 || quantity > rewards.MaxBatchSize {
		v.Add("quantity", fmt.Sprintf("must be between 1 and %d", rewards.MaxBatchSize))
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	codes, err := newCodes(quantity)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	batchID := uuid.NewString()
	if strings.TrimSpace(batchName) == "" {
		batchName = "Batch-" + strings.ToUpper(batchID[:8])
	}

	var out *Batch
	err = s.store.WithTx(ctx, func(r core.Repository) error {
		p, err := r.GetProduct(ctx, productID)
		if err != nil {
			return fmt.Errorf("product %s: %w", productID, err)
		}
		if !caller.IsAdmin() && p.BrandOwnerID != caller.ID {
			return core.ErrForbidden
		}
		if !p.IsActive {
			return fmt.Errorf("product %s: %w", productID, core.ErrInactive)
		}

		cashback := rewards.CashbackAmount(p.Price, p.CashbackPercentage)
		expires := now.Add(rewards.QRValidity)
		batch := make([]core.QRCode, quantity)
		refs := make([]CodeRef, quantity)
		for i, code := range codes {
			batch[i] = core.QRCode{
				ID:             uuid.NewString(),
				Code:           code,
				ProductID:      p.ID,
				BatchID:        batchID,
				BatchName:      batchName,
				SerialNumber:   i + 1,
				CashbackAmount: cashback,
				RecycleReward:  p.RecycleReward,
				Status:         core.QRActive,
				ScanHistory:    []core.ScanEntry{},
				GeneratedBy:    caller.ID,
				ExpiresAt:      expires,
				CreatedAt:      now,
			}
			refs[i] = CodeRef{ID: batch[i].ID, Code: code}
		}
		if err := r.InsertQRCodes(ctx, batch); err != nil {
			return err
		}

		out = &Batch{
			BatchID:        batchID,
			BatchName:      batchName,
			ProductID:      p.ID,
			ProductName:    p.Name,
			Quantity:       quantity,
			CashbackAmount: cashback,
			RecycleReward:  p.RecycleReward,
			ExpiresAt:      expires,
			Codes:          refs,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("qr batch generated",
		zap.String("batch_id", batchID),
		zap.String("product_id", productID),
		zap.Int("quantity", quantity),
		zap.String("generated_by", string(caller.ID)))
	return out, nil
}

// newCodes returns n distinct random hex codes.
func newCodes(n int) ([]string, error) {
	seen := make(map[string]struct{}, n)
	out := make([]string, 0, n)
	buf := make([]byte, codeBytes)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generate qr code: %w", err)
		}
		code := strings.ToUpper(hex.EncodeToString(buf))
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out, nil
}

// =============================================================================
// SCAN
// =============================================================================

type Eligibility struct {
	ID                  string        `json:"id"`
	Code                string        `json:"code"`
	Status              core.QRStatus `json:"status"`
	CashbackAmount      core.Money    `json:"cashbackAmount"`
	RecycleReward       core.Money    `json:"recycleReward"`
	CanActivateCashback bool          `json:"canActivateCashback"`
	CanRecycle          bool          `json:"canRecycle"`
	Expired             bool          `json:"expired"`
	ExpiresAt           time.Time     `json:"expiresAt"`
}

type ScanResult struct {
	QRCode  Eligibility   `json:"qrCode"`
	Product *core.Product `json:"product,omitempty"`
}

// Scan records a view entry and reports what the caller could claim.
func (s *Service) Scan(ctx context.Context, userID core.UserID, code string, loc *core.GeoPoint) (*ScanResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, core.Invalid("code", "required")
	}

	now := s.clock.Now()
	var res ScanResult
	err := s.store.WithTx(ctx, func(r core.Repository) error {
		q, err := r.GetQRCodeByCode(ctx, code)
		if err != nil {
			return err
		}
		q.RecordScan(userID, now, loc, core.ScanView)
		if err := r.UpdateQRCode(ctx, *q); err != nil {
			return err
		}

		res.QRCode = Eligibility{
			ID:                  q.ID,
			Code:                q.Code,
			Status:              q.EffectiveStatus(now),
			CashbackAmount:      q.CashbackAmount,
			RecycleReward:       q.RecycleReward,
			CanActivateCashback: q.CanClaimCashback(now),
			CanRecycle:          q.CanClaimRecycle(now),
			Expired:             q.IsExpired(now),
			ExpiresAt:           q.ExpiresAt,
		}
		if p, err := r.GetProduct(ctx, q.ProductID); err == nil {
			res.Product = p
		} else if !core.IsNotFound(err) {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// =============================================================================
// CLAIMS
// =============================================================================

type ClaimResult struct {
	QRCodeID    string                `json:"qrCodeId"`
	Amount      core.Money            `json:"amount"`
	NewBalance  core.Money            `json:"newBalance"`
	Status      core.QRStatus         `json:"status"`
	Transaction core.Transaction      `json:"transaction"`
	Progress    gamification.Progress `json:"progress"`
}

// checkClaimable applies the guards shared by both sub-claims, in order.
func checkClaimable(q *core.QRCode, claim core.Claim, amount core.Money, now time.Time, noReward error) error {
	switch {
	case q.Status == core.QRDeactivated:
		return fmt.Errorf("qr code %s: %w", q.ID, core.ErrInactive)
	case q.IsExpired(now):
		return fmt.Errorf("qr code %s: %w", q.ID, core.ErrExpired)
	case claim.IsSet():
		return fmt.Errorf("qr code %s: %w", q.ID, core.ErrAlreadyClaimed)
	case !amount.IsPositive():
		return fmt.Errorf("qr code %s: %w", q.ID, noReward)
	}
	return nil
}

func productName(p *core.Product) string {
	if p == nil {
		return "product"
	}
	return p.Name
}

// ActivateCashback claims the cashback sub-reward of qrID for userID.
func (s *Service) ActivateCashback(ctx context.Context, userID core.UserID, qrID string) (*ClaimResult, error) {
	now := s.clock.Now()
	var res ClaimResult
	err := s.store.WithTx(ctx, func(r core.Repository) error {
		q, err := r.GetQRCode(ctx, qrID)
		if err != nil {
			return err
		}
		if err := checkClaimable(q, q.Cashback, q.CashbackAmount, now, core.ErrNoCashbackAvailable); err != nil {
			return err
		}
		p, err := r.GetProduct(ctx, q.ProductID)
		if err != nil && !core.IsNotFound(err) {
			return err
		}

		tx, u, err := wallet.ApplyDelta(ctx, r, userID, wallet.Entry{
			Kind:           core.TxCashback,
			Amount:         q.CashbackAmount,
			Description:    "Cashback from " + productName(p),
			Refs:           core.TxRefs{ProductID: q.ProductID, QRCodeID: q.ID},
			IdempotencyKey: "cashback:" + q.ID,
		}, now)
		if err != nil {
			return err
		}
		progress := gamification.Apply(u, rewards.CashbackXP(q.CashbackAmount), now)
		if err := r.UpdateUser(ctx, *u); err != nil {
			return err
		}

		q.Cashback = core.Claim{ClaimedBy: userID, ClaimedAt: core.TimePtr(now), TransactionID: tx.ID}
		q.RecordScan(userID, now, nil, core.ScanActivateCashback)
		if q.FullyClaimed() {
			q.Status = core.QRUsed
		}
		if err := r.UpdateQRCode(ctx, *q); err != nil {
			return err
		}

		res = ClaimResult{
			QRCodeID:    q.ID,
			Amount:      q.CashbackAmount,
			NewBalance:  u.Wallet.Balance,
			Status:      q.Status,
			Transaction: *tx,
			Progress:    progress,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("cashback activated",
		zap.String("user_id", string(userID)),
		zap.String("kind", string(core.TxCashback)),
		zap.String("amount", res.Amount.String()),
		zap.String("qr_code_id", qrID),
		zap.Int64("xp", res.Progress.XPGained))
	return &res, nil
}

type RecycleClaim struct {
	CollectionPointID string         `json:"collectionPointId,omitempty"`
	Location          *core.GeoPoint `json:"location,omitempty"`
}

type RecycleResult struct {
	ClaimResult
	Material            core.Material   `json:"material"`
	WeightKg            decimal.Decimal `json:"weightKg"`
	Impact              core.EnvImpact  `json:"environmentalImpact"`
	TotalRecycleActions int             `json:"totalRecycleActions"`
	ConsecutiveDays     int             `json:"consecutiveDays"`
}

// RedeemRecycle claims the recycle sub-reward. The recycled weight is the
// product category's packaging estimate, credited to the product's
// packaging material. When a collection point is given the unit is also
// recorded there as a dropoff.
func (s *Service) RedeemRecycle(ctx context.Context, userID core.UserID, qrID string, in RecycleClaim) (*RecycleResult, error) {
	now := s.clock.Now()
	var res RecycleResult
	err := s.store.WithTx(ctx, func(r core.Repository) error {
		q, err := r.GetQRCode(ctx, qrID)
		if err != nil {
			return err
		}
		if err := checkClaimable(q, q.Recycle, q.RecycleReward, now, core.ErrNoRecycleReward); err != nil {
			return err
		}
		p, err := r.GetProduct(ctx, q.ProductID)
		if err != nil && !core.IsNotFound(err) {
			return err
		}

		material, category := core.MaterialPlastic, ""
		if p != nil {
			category = p.Category
			if p.Material.Valid() {
				material = p.Material
			}
		}
		weight := rewards.PackagingWeight(category)

		if in.CollectionPointID != "" {
			if _, err := collection.Record(ctx, r, in.CollectionPointID, userID,
				[]core.DropoffItem{{Material: material, Weight: weight}}, now); err != nil {
				return err
			}
		}

		tx, u, err := wallet.ApplyDelta(ctx, r, userID, wallet.Entry{
			Kind:        core.TxRecycleReward,
			Amount:      q.RecycleReward,
			Description: "Recycle reward from " + productName(p),
			Refs: core.TxRefs{
				ProductID:         q.ProductID,
				QRCodeID:          q.ID,
				CollectionPointID: in.CollectionPointID,
			},
			IdempotencyKey: "recycle:" + q.ID,
			Metadata:       map[string]string{"packagingWeightKg": weight.String(), "material": string(material)},
		}, now)
		if err != nil {
			return err
		}

		env := rewards.ApplyImpact(&u.Impact, []core.RecycleItem{{
			Material: material, Weight: weight, Quantity: 1, Condition: core.ConditionIntact, QRCodeID: q.ID,
		}})
		gamification.RecordAction(&u.Impact, now)
		progress := gamification.Apply(u, rewards.RecycleClaimXP(q.RecycleReward), now)
		if err := r.UpdateUser(ctx, *u); err != nil {
			return err
		}

		q.Recycle = core.Claim{
			ClaimedBy:         userID,
			ClaimedAt:         core.TimePtr(now),
			TransactionID:     tx.ID,
			CollectionPointID: in.CollectionPointID,
		}
		q.RecordScan(userID, now, in.Location, core.ScanRedeemRecycle)
		if q.FullyClaimed() {
			q.Status = core.QRUsed
		}
		if err := r.UpdateQRCode(ctx, *q); err != nil {
			return err
		}

		res = RecycleResult{
			ClaimResult: ClaimResult{
				QRCodeID:    q.ID,
				Amount:      q.RecycleReward,
				NewBalance:  u.Wallet.Balance,
				Status:      q.Status,
				Transaction: *tx,
				Progress:    progress,
			},
			Material:            material,
			WeightKg:            weight,
			Impact:              env,
			TotalRecycleActions: u.Impact.TotalRecycleActions,
			ConsecutiveDays:     u.Impact.ConsecutiveDays,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("recycle reward redeemed",
		zap.String("user_id", string(userID)),
		zap.String("kind", string(core.TxRecycleReward)),
		zap.String("amount", res.Amount.String()),
		zap.String("qr_code_id", qrID),
		zap.String("collection_point_id", in.CollectionPointID))
	return &res, nil
}

// Deactivate tombstones an unused code. Brands may only deactivate codes
// of their own products.
func (s *Service) Deactivate(ctx context.Context, caller core.Principal, qrID string) (*core.QRCode, error) {
	if !caller.HasRole(core.RoleBrand, core.RoleAdmin) {
		return nil, core.ErrForbidden
	}
	var q *core.QRCode
	err := s.store.WithTx(ctx, func(r core.Repository) error {
		var err error
		q, err = r.GetQRCode(ctx, qrID)
		if err != nil {
			return err
		}
		if !caller.IsAdmin() {
			if _, err := ownedProduct(ctx, r, caller, q.ProductID); err != nil {
				return err
			}
		}
		if q.Status != core.QRActive {
			return &core.TransitionError{Entity: "qr code", From: string(q.Status), To: string(core.QRDeactivated)}
		}
		q.Status = core.QRDeactivated
		return r.UpdateQRCode(ctx, *q)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("qr code deactivated", zap.String("qr_code_id", qrID), zap.String("by", string(caller.ID)))
	return q, nil
}
