package core

import "time"

// =============================================================================
// QR CODE - One per physical packaging unit
// =============================================================================

// QRStatus is the stored status. Expiry is never written by a sweep;
// EffectiveStatus derives it from expiresAt on every read.
type QRStatus string

const (
	QRActive      QRStatus = "active"
	QRUsed        QRStatus = "used"
	QRExpired     QRStatus = "expired"
	QRDeactivated QRStatus = "deactivated"
)

type ScanAction string

const (
	ScanView             ScanAction = "view"
	ScanActivateCashback ScanAction = "activate-cashback"
	ScanRedeemRecycle    ScanAction = "redeem-recycle"
)

type ScanEntry struct {
	UserID    UserID     `json:"userId"`
	ScannedAt time.Time  `json:"scannedAt"`
	Location  *GeoPoint  `json:"location,omitempty"`
	Action    ScanAction `json:"action"`
}

// Claim is one sub-reward's claim record. Empty ClaimedBy means unclaimed.
type Claim struct {
	ClaimedBy         UserID        `json:"claimedBy,omitempty"`
	ClaimedAt         *time.Time    `json:"claimedAt,omitempty"`
	TransactionID     TransactionID `json:"transactionId,omitempty"`
	CollectionPointID string        `json:"collectionPointId,omitempty"`
}

func (c Claim) IsSet() bool { return c.ClaimedBy != "" }

type QRStats struct {
	TotalScans    int        `json:"totalScans"`
	UniqueUsers   int        `json:"uniqueUsers"`
	LastScannedAt *time.Time `json:"lastScannedAt,omitempty"`
}

type QRCode struct {
	ID             string      `json:"id"`
	Code           string      `json:"code"`
	ProductID      string      `json:"productId"`
	BatchID        string      `json:"batchId"`
	BatchName      string      `json:"batchName"`
	SerialNumber   int         `json:"serialNumber"`
	CashbackAmount Money       `json:"cashbackAmount"`
	RecycleReward  Money       `json:"recycleReward"`
	Status         QRStatus    `json:"status"`
	Cashback       Claim       `json:"cashback"`
	Recycle        Claim       `json:"recycle"`
	ScanHistory    []ScanEntry `json:"scanHistory"`
	Stats          QRStats     `json:"stats"`
	GeneratedBy    UserID      `json:"generatedBy"`
	ExpiresAt      time.Time   `json:"expiresAt"`
	CreatedAt      time.Time   `json:"createdAt"`
}

func (q *QRCode) IsExpired(now time.Time) bool {
	return !q.ExpiresAt.IsZero() && q.ExpiresAt.Before(now)
}

// EffectiveStatus is the status as observed at now. Terminal stored
// states win over expiry.
func (q *QRCode) EffectiveStatus(now time.Time) QRStatus {
	if q.Status == QRActive && q.IsExpired(now) {
		return QRExpired
	}
	return q.Status
}

// FullyClaimed reports whether every claimable (non-zero) reward is claimed.
func (q *QRCode) FullyClaimed() bool {
	cashbackDone := q.CashbackAmount.IsZero() || q.Cashback.IsSet()
	recycleDone := q.RecycleReward.IsZero() || q.Recycle.IsSet()
	return cashbackDone && recycleDone
}

// CanClaimCashback reports eligibility without side effects.
func (q *QRCode) CanClaimCashback(now time.Time) bool {
	return q.EffectiveStatus(now) == QRActive && !q.Cashback.IsSet() && q.CashbackAmount.IsPositive()
}

func (q *QRCode) CanClaimRecycle(now time.Time) bool {
	return q.EffectiveStatus(now) == QRActive && !q.Recycle.IsSet() && q.RecycleReward.IsPositive()
}

// RecordScan appends a history entry and refreshes the scan counters.
func (q *QRCode) RecordScan(user UserID, at time.Time, loc *GeoPoint, action ScanAction) {
	q.ScanHistory = append(q.ScanHistory, ScanEntry{
		UserID:    user,
		ScannedAt: at,
		Location:  loc,
		Action:    action,
	})
	q.Stats.TotalScans++
	q.Stats.LastScannedAt = TimePtr(at)

	seen := make(map[UserID]struct{}, len(q.ScanHistory))
	for _, s := range q.ScanHistory {
		seen[s.UserID] = struct{}{}
	}
	q.Stats.UniqueUsers = len(seen)
}

type QRCodeFilter struct {
	BatchID    string
	ProductIDs []string
	ScannedBy  UserID
}
