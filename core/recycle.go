package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RECYCLE REQUEST - One per user-submitted pickup/dropoff batch
// =============================================================================

type RequestType string

const (
	RequestPickup  RequestType = "pickup"
	RequestDropoff RequestType = "dropoff"
)

type RequestStatus string

const (
	RequestPending    RequestStatus = "pending"
	RequestConfirmed  RequestStatus = "confirmed"
	RequestInProgress RequestStatus = "in-progress"
	RequestCollected  RequestStatus = "collected"
	RequestVerified   RequestStatus = "verified"
	RequestCompleted  RequestStatus = "completed"
	RequestCancelled  RequestStatus = "cancelled"
	RequestRejected   RequestStatus = "rejected"
)

// requestTransitions is the linear path with early exits. completed,
// cancelled and rejected are terminal.
var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestPending:    {RequestConfirmed, RequestCancelled, RequestRejected},
	RequestConfirmed:  {RequestInProgress, RequestCancelled, RequestRejected},
	RequestInProgress: {RequestCollected, RequestRejected},
	RequestCollected:  {RequestVerified, RequestRejected},
	RequestVerified:   {RequestCompleted, RequestRejected},
}

// RequestPath is the happy path in order.
var RequestPath = []RequestStatus{
	RequestPending, RequestConfirmed, RequestInProgress,
	RequestCollected, RequestVerified, RequestCompleted,
}

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestConfirmed, RequestInProgress, RequestCollected,
		RequestVerified, RequestCompleted, RequestCancelled, RequestRejected:
		return true
	}
	return false
}

func (s RequestStatus) CanTransition(next RequestStatus) bool {
	for _, allowed := range requestTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s RequestStatus) IsTerminal() bool {
	return len(requestTransitions[s]) == 0
}

// UserCancellable reports whether the owner may still cancel.
func (s RequestStatus) UserCancellable() bool {
	return s == RequestPending || s == RequestConfirmed
}

type RecycleItem struct {
	Material  Material        `json:"material"`
	Weight    decimal.Decimal `json:"weight"` // kg
	Quantity  int             `json:"quantity"`
	Condition Condition       `json:"condition"`
	QRCodeID  string          `json:"qrCodeId,omitempty"`
}

type Address struct {
	FullAddress string    `json:"fullAddress"`
	Ward        string    `json:"ward,omitempty"`
	District    string    `json:"district,omitempty"`
	City        string    `json:"city,omitempty"`
	Coordinates *GeoPoint `json:"coordinates,omitempty"`
}

type StatusEvent struct {
	Status RequestStatus `json:"status"`
	By     UserID        `json:"by"`
	Note   string        `json:"note,omitempty"`
	At     time.Time     `json:"at"`
}

type Verification struct {
	VerifiedBy   UserID          `json:"verifiedBy"`
	VerifiedAt   time.Time       `json:"verifiedAt"`
	ActualWeight decimal.Decimal `json:"actualWeight"`
	ActualItems  int             `json:"actualItems"`
	Notes        string          `json:"notes,omitempty"`
}

type RequestReward struct {
	Amount        Money         `json:"amount"`
	XPEarned      int64         `json:"xpEarned"`
	BadgesEarned  []string      `json:"badgesEarned,omitempty"`
	BonusReason   string        `json:"bonusReason,omitempty"`
	TransactionID TransactionID `json:"transactionId,omitempty"`
	PaidAt        *time.Time    `json:"paidAt,omitempty"`
}

// EnvImpact is the environmental saving of one batch.
type EnvImpact struct {
	CO2Saved    decimal.Decimal `json:"co2Saved"`    // kg
	WaterSaved  decimal.Decimal `json:"waterSaved"`  // liters
	EnergySaved decimal.Decimal `json:"energySaved"` // kWh
}

type RecycleRequest struct {
	ID                string          `json:"id"`
	UserID            UserID          `json:"userId"`
	Type              RequestType     `json:"type"`
	Items             []RecycleItem   `json:"items"`
	ActualItems       []RecycleItem   `json:"actualItems,omitempty"`
	EstimatedWeight   decimal.Decimal `json:"estimatedWeight"`
	EstimatedReward   Money           `json:"estimatedReward"`
	Status            RequestStatus   `json:"status"`
	AssignedCollector UserID          `json:"assignedCollector,omitempty"`
	CollectionPointID string          `json:"collectionPointId,omitempty"`
	PickupAddress     *Address        `json:"pickupAddress,omitempty"`
	ScheduledDate     *time.Time      `json:"scheduledDate,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	Verification      *Verification   `json:"verification,omitempty"`
	Reward            RequestReward   `json:"reward"`
	Impact            EnvImpact       `json:"impact"`
	StatusHistory     []StatusEvent   `json:"statusHistory"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
	CompletedAt       *time.Time      `json:"completedAt,omitempty"`
}

// Transition moves the request to next and appends to the history.
func (r *RecycleRequest) Transition(next RequestStatus, by UserID, note string, at time.Time) error {
	if !r.Status.CanTransition(next) {
		return &TransitionError{Entity: "recycle request", From: string(r.Status), To: string(next)}
	}
	r.Status = next
	r.UpdatedAt = at
	r.StatusHistory = append(r.StatusHistory, StatusEvent{Status: next, By: by, Note: note, At: at})
	if next == RequestCompleted {
		r.CompletedAt = TimePtr(at)
	}
	return nil
}

// TotalWeight sums item weights in kg.
func TotalWeight(items []RecycleItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Weight)
	}
	return total
}

type RequestFilter struct {
	UserID      UserID
	Status      RequestStatus
	CollectorID UserID
	From        *time.Time
	To          *time.Time
	Offset      int
	Limit       int
}

func (f RequestFilter) Matches(r RecycleRequest) bool {
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.CollectorID != "" && r.AssignedCollector != f.CollectorID {
		return false
	}
	if f.From != nil && r.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && r.CreatedAt.After(*f.To) {
		return false
	}
	return true
}
