package qrcode

import (
	"context"
	"sort"
	"time"

	"github.com/ecoback/reward-engine/core"
)

// =============================================================================
// BATCHES - brand owners see their products' batches, admins see all
// =============================================================================

type BatchSummary struct {
	BatchID         string    `json:"batchId"`
	BatchName       string    `json:"batchName"`
	ProductID       string    `json:"productId"`
	ProductName     string    `json:"productName"`
	TotalCodes      int       `json:"totalCodes"`
	UsedCodes       int       `json:"usedCodes"`
	CashbackClaimed int       `json:"cashbackClaimed"`
	RecycledCodes   int       `json:"recycledCodes"`
	CreatedAt       time.Time `json:"createdAt"`
}

// scope returns the products caller owns and whether caller sees every code.
func scope(ctx context.Context, r core.Repository, caller core.Principal) (map[string]core.Product, bool, error) {
	var f core.ProductFilter
	if !caller.IsAdmin() {
		if caller.Role != core.RoleBrand {
			return nil, false, core.ErrForbidden
		}
		f.BrandOwnerID = caller.ID
	}
	products, err := r.ListProducts(ctx, f)
	if err != nil {
		return nil, false, err
	}
	byID := make(map[string]core.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return byID, caller.IsAdmin(), nil
}

func (s *Service) codesInScope(ctx context.Context, caller core.Principal, batchID string) ([]core.QRCode, map[string]core.Product, error) {
	var (
		codes    []core.QRCode
		products map[string]core.Product
	)
	err := s.store.View(ctx, func(r core.Repository) error {
		var (
			all bool
			err error
		)
		products, all, err = scope(ctx, r, caller)
		if err != nil {
			return err
		}
		f := core.QRCodeFilter{BatchID: batchID}
		if !all {
			if len(products) == 0 {
				return nil
			}
			for id := range products {
				f.ProductIDs = append(f.ProductIDs, id)
			}
		}
		codes, err = r.ListQRCodes(ctx, f)
		return err
	})
	return codes, products, err
}

func (s *Service) Batches(ctx context.Context, caller core.Principal) ([]BatchSummary, error) {
	codes, products, err := s.codesInScope(ctx, caller, "")
	if err != nil {
		return nil, err
	}

	idx := map[string]int{}
	out := []BatchSummary{}
	for _, q := range codes {
		i, ok := idx[q.BatchID]
		if !ok {
			i = len(out)
			idx[q.BatchID] = i
			out = append(out, BatchSummary{
				BatchID:     q.BatchID,
				BatchName:   q.BatchName,
				ProductID:   q.ProductID,
				ProductName: products[q.ProductID].Name,
				CreatedAt:   q.CreatedAt,
			})
		}
		b := &out[i]
		b.TotalCodes++
		if q.Status == core.QRUsed {
			b.UsedCodes++
		}
		if q.Cashback.IsSet() {
			b.CashbackClaimed++
		}
		if q.Recycle.IsSet() {
			b.RecycledCodes++
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type BatchDetail struct {
	BatchID string        `json:"batchId"`
	Count   int           `json:"count"`
	Codes   []core.QRCode `json:"codes"`
}

// BatchDetail lists a batch's codes with their effective status.
func (s *Service) BatchDetail(ctx context.Context, caller core.Principal, batchID string) (*BatchDetail, error) {
	codes, _, err := s.codesInScope(ctx, caller, batchID)
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		// either unknown or owned by another brand
		return nil, core.ErrNotFound
	}
	now := s.clock.Now()
	for i := range codes {
		codes[i].Status = codes[i].EffectiveStatus(now)
	}
	return &BatchDetail{BatchID: batchID, Count: len(codes), Codes: codes}, nil
}

type Stats struct {
	TotalGenerated           int        `json:"totalGenerated"`
	TotalUsed                int        `json:"totalUsed"`
	TotalCashbackClaimed     int        `json:"totalCashbackClaimed"`
	TotalRecycled            int        `json:"totalRecycled"`
	TotalExpired             int        `json:"totalExpired"`
	TotalScans               int        `json:"totalScans"`
	CashbackDistributed      core.Money `json:"totalCashbackDistributed"`
	RecycleRewardDistributed core.Money `json:"totalRecycleRewardDistributed"`
}

func (s *Service) Stats(ctx context.Context, caller core.Principal) (*Stats, error) {
	codes, _, err := s.codesInScope(ctx, caller, "")
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	st := &Stats{CashbackDistributed: core.NewMoney(0), RecycleRewardDistributed: core.NewMoney(0)}
	for _, q := range codes {
		st.TotalGenerated++
		st.TotalScans += q.Stats.TotalScans
		switch q.EffectiveStatus(now) {
		case core.QRUsed:
			st.TotalUsed++
		case core.QRExpired:
			st.TotalExpired++
		}
		if q.Cashback.IsSet() {
			st.TotalCashbackClaimed++
			st.CashbackDistributed = st.CashbackDistributed.Add(q.CashbackAmount)
		}
		if q.Recycle.IsSet() {
			st.TotalRecycled++
			st.RecycleRewardDistributed = st.RecycleRewardDistributed.Add(q.RecycleReward)
		}
	}
	return st, nil
}

// =============================================================================
// MY SCANS
// =============================================================================

const maxScanHistory = 50

type ScanRecord struct {
	QRCodeID    string          `json:"qrCodeId"`
	Code        string          `json:"code"`
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Action      core.ScanAction `json:"action"`
	ScannedAt   time.Time       `json:"scannedAt"`
	Location    *core.GeoPoint  `json:"location,omitempty"`
	Status      core.QRStatus   `json:"status"`
	Recycled    bool            `json:"isRecycled"`
}

// MyScans returns the caller's scan entries across all codes, newest
// first, at most 50.
func (s *Service) MyScans(ctx context.Context, userID core.UserID) ([]ScanRecord, error) {
	var (
		codes    []core.QRCode
		products = map[string]string{}
	)
	err := s.store.View(ctx, func(r core.Repository) error {
		var err error
		codes, err = r.ListQRCodes(ctx, core.QRCodeFilter{ScannedBy: userID})
		if err != nil {
			return err
		}
		for _, q := range codes {
			if _, ok := products[q.ProductID]; ok {
				continue
			}
			p, err := r.GetProduct(ctx, q.ProductID)
			switch {
			case err == nil:
				products[q.ProductID] = p.Name
			case core.IsNotFound(err):
				products[q.ProductID] = ""
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	out := []ScanRecord{}
	for _, q := range codes {
		for _, e := range q.ScanHistory {
			if e.UserID != userID {
				continue
			}
			out = append(out, ScanRecord{
				QRCodeID:    q.ID,
				Code:        q.Code,
				ProductID:   q.ProductID,
				ProductName: products[q.ProductID],
				Action:      e.Action,
				ScannedAt:   e.ScannedAt,
				Location:    e.Location,
				Status:      q.EffectiveStatus(now),
				Recycled:    q.Recycle.IsSet(),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScannedAt.After(out[j].ScannedAt) })
	if len(out) > maxScanHistory {
		out = out[:maxScanHistory]
	}
	return out, nil
}
