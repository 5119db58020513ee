/*
Package recycle implements the recycle request lifecycle: a user submits a
pickup or dropoff batch, staff move it through collection and verification,
and completion pays the reward computed from the verified items.

STATES:
  pending ─▶ confirmed ─▶ in-progress ─▶ collected ─▶ verified ─▶ completed
     │           │             │              │            │
     ├─ cancelled (owner, pending/confirmed only)
     └─ rejected  (staff, any non-terminal state)

COMPLETION (one unit of work):
  1. guard: completed -> ErrAlreadyCompleted, cancelled/rejected -> transition error
  2. walk the remaining intermediate states into the history
  3. reward from the actual items, credited with key recycle-request:<id>
  4. impact counters, streak, xp and badges on the owner
  5. dropoff requests are also recorded at their collection point
*/
package recycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ecoback/reward-engine/collection"
	"github.com/ecoback/reward-engine/core"
	"github.com/ecoback/reward-engine/gamification"
	"github.com/ecoback/reward-engine/rewards"
	"github.com/ecoback/reward-engine/wallet"
)

type Service struct {
	store core.Store
	clock core.Clock
	log   *zap.Logger
}

func NewService(store core.Store, clock core.Clock, log *zap.Logger) *Service {
	return &Service{store: store, clock: clock, log: log.Named("recycle")}
}

// =============================================================================
// VALIDATION
// =============================================================================

// normalizeItems validates items in place, defaulting condition to intact
// and quantity to 1.
func normalizeItems(field string, items []core.RecycleItem, v *core.ValidationError) {
	if len(items) == 0 {
		v.Add(field, "at least one item is required")
		return
	}
	for i := range items {
		it := &items[i]
		prefix := fmt.Sprintf("%s[%d]", field, i)
		if !it.Material.Valid() {
			v.Add(prefix+".material", fmt.Sprintf("unknown material %q", it.Material))
		}
		if it.Condition == "" {
			it.Condition = core.ConditionIntact
		}
		if !it.Condition.Valid() {
			v.Add(prefix+".condition", fmt.Sprintf("unknown condition %q", it.Condition))
		}
		if it.Weight.IsNegative() {
			v.Add(prefix+".weight", "must not be negative")
		}
		if it.Quantity < 0 {
			v.Add(prefix+".quantity", "must not be negative")
		}
		if it.Quantity == 0 {
			it.Quantity = 1
		}
	}
}

func dropoffItems(items []core.RecycleItem) []core.DropoffItem {
	out := make([]core.DropoffItem, 0, len(items))
	for _, it := range items {
		out = append(out, core.DropoffItem{Material: it.Material, Weight: it.Weight})
	}
	return out
}

// =============================================================================
// CREATE
// =============================================================================

type CreateInput struct {
	Type              core.RequestType   `json:"type"`
	Items             []core.RecycleItem `json:"items"`
	PickupAddress     *core.Address      `json:"pickupAddress,omitempty"`
	CollectionPointID string             `json:"collectionPointId,omitempty"`
	ScheduledDate     *time.Time         `json:"scheduledDate,omitempty"`
	Notes             string             `json:"notes,omitempty"`
}

func (in *CreateInput) validate() error {
	v := &core.ValidationError{}
	if in.Type == "" {
		in.Type = core.RequestPickup
	}
	switch in.Type {
	case core.RequestPickup:
		if in.PickupAddress == nil || strings.TrimSpace(in.PickupAddress.FullAddress) == "" {
			v.Add("pickupAddress.fullAddress", "required for pickup requests")
		}
	case core.RequestDropoff:
		if in.CollectionPointID == "" {
			v.Add("collectionPointId", "required for dropoff requests")
		}
	default:
		v.Add("type", fmt.Sprintf("unknown request type %q", in.Type))
	}
	normalizeItems("items", in.Items, v)
	return v.OrNil()
}

// Create stores a pending request with its estimated weight and reward.
func (s *Service) Create(ctx context.Context, userID core.UserID, in CreateInput) (*core.RecycleRequest, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	est := rewards.RecycleReward(in.Items)
	req := core.RecycleRequest{
		ID:                uuid.NewString(),
		UserID:            userID,
		Type:              in.Type,
		Items:             in.Items,
		EstimatedWeight:   est.TotalWeight,
		EstimatedReward:   est.Total,
		Status:            core.RequestPending,
		CollectionPointID: in.CollectionPointID,
		PickupAddress:     in.PickupAddress,
		ScheduledDate:     in.ScheduledDate,
		Notes:             in.Notes,
		Reward:            core.RequestReward{Amount: core.NewMoney(0)},
		StatusHistory:     []core.StatusEvent{{Status: core.RequestPending, By: userID, At: now}},
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := s.store.WithTx(ctx, func(r core.Repository) error {
		if req.CollectionPointID != "" {
			p, err := r.GetPoint(ctx, req.CollectionPointID)
			if core.IsNotFound(err) {
				return core.Invalid("collectionPointId", "unknown collection point")
			}
			if err != nil {
				return err
			}
			if !p.IsActive {
				return fmt.Errorf("collection point %s: %w", p.ID, core.ErrInactive)
			}
		}
		return r.CreateRequest(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("recycle request created",
		zap.String("user_id", string(userID)),
		zap.String("request_id", req.ID),
		zap.String("type", string(req.Type)),
		zap.String("estimated_reward", req.EstimatedReward.String()))
	return &req, nil
}

// =============================================================================
// ASSIGN
// =============================================================================

type AssignInput struct {
	CollectorID       core.UserID `json:"collectorId,omitempty"`
	CollectionPointID string      `json:"collectionPointId,omitempty"`
	ScheduledDate     *time.Time  `json:"scheduledDate,omitempty"`
}

// Assign confirms a pending request. A collector calling without a
// collector id assigns it to themselves.
func (s *Service) Assign(ctx context.Context, caller core.Principal, id string, in AssignInput) (*core.RecycleRequest, error) {
	if !caller.HasRole(core.RoleAdmin, core.RoleCollector) {
		return nil, core.ErrForbidden
	}
	if in.CollectorID == "" && caller.Role == core.RoleCollector {
		in.CollectorID = caller.ID
	}

	now := s.clock.Now()
	var req *core.RecycleRequest
	err := s.store.WithTx(ctx, func(r core.Repository) error {
		var err error
		req, err = r.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != core.RequestPending {
			return &core.TransitionError{Entity: "recycle request", From: string(req.Status), To: string(core.RequestConfirmed)}
		}

		if in.CollectorID != "" {
			c, err := r.GetUser(ctx, in.CollectorID)
			if err != nil && !core.IsNotFound(err) {
				return err
			}
			if c == nil || c.Role != core.RoleCollector {
				return core.Invalid("collectorId", "not a collector")
			}
			req.AssignedCollector = c.ID
		}
		if in.CollectionPointID != "" {
			if _, err := r.GetPoint(ctx, in.CollectionPointID); err != nil {
				if core.IsNotFound(err) {
					return core.Invalid("collectionPointId", "unknown collection point")
				}
				return err
			}
			req.CollectionPointID = in.CollectionPointID
		}
		if in.ScheduledDate != nil {
			req.ScheduledDate = in.ScheduledDate
		}

		if err := req.Transition(core.RequestConfirmed, caller.ID, "collector assigned", now); err != nil {
			return err
		}
		return r.UpdateRequest(ctx, *req)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("recycle request assigned",
		zap.String("request_id", id),
		zap.String("collector_id", string(req.AssignedCollector)),
		zap.String("by", string(caller.ID)))
	return req, nil
}

// =============================================================================
// STATUS CHANGES
// =============================================================================

// UpdateStatus moves a request along its lifecycle without paying anything.
// Users may only cancel their own requests; collectors act on requests
// assigned to them; completion goes through Complete.
func (s *Service) UpdateStatus(ctx context.Context, caller core.Principal, id string, next core.RequestStatus, note string) (*core.RecycleRequest, error) {
	if !next.Valid() {
		return nil, core.Invalid("status", fmt.Sprintf("unknown status %q", next))
	}
	if next == core.RequestCompleted {
		return nil, core.Invalid("status", "completion requires the verified items")
	}

	now := s.clock.Now()
	var req *core.RecycleRequest
	err := s.store.WithTx(ctx, func(r core.Repository) error {
		var err error
		req, err = r.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if err := authorizeChange(caller, req, next); err != nil {
			return err
		}
		if err := req.Transition(next, caller.ID, note, now); err != nil {
			return err
		}
		return r.UpdateRequest(ctx, *req)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("recycle request status changed",
		zap.String("request_id", id),
		zap.String("status", string(next)),
		zap.String("by", string(caller.ID)))
	return req, nil
}

func authorizeChange(caller core.Principal, req *core.RecycleRequest, next core.RequestStatus) error {
	// cancelled belongs to the requester; staff close requests with rejected
	if next == core.RequestCancelled {
		if req.UserID != caller.ID {
			return fmt.Errorf("only the requester may cancel; staff reject instead: %w", core.ErrForbidden)
		}
		if !req.Status.UserCancellable() {
			return &core.TransitionError{Entity: "recycle request", From: string(req.Status), To: string(next)}
		}
		return nil
	}
	switch caller.Role {
	case core.RoleAdmin:
		return nil
	case core.RoleCollector:
		if req.AssignedCollector != caller.ID {
			return core.ErrForbidden
		}
		return nil
	}
	return core.ErrForbidden
}

// Cancel is the owner's way out while nobody has started collecting.
func (s *Service) Cancel(ctx context.Context, caller core.Principal, id, note string) (*core.RecycleRequest, error) {
	return s.UpdateStatus(ctx, caller, id, core.RequestCancelled, note)
}

// Reject is staff-only and valid from any non-terminal state.
func (s *Service) Reject(ctx context.Context, caller core.Principal, id, note string) (*core.RecycleRequest, error) {
	if !caller.HasRole(core.RoleAdmin, core.RoleCollector) {
		return nil, core.ErrForbidden
	}
	return s.UpdateStatus(ctx, caller, id, core.RequestRejected, note)
}

// =============================================================================
// COMPLETE
// =============================================================================

type CompleteInput struct {
	ActualItems []core.RecycleItem `json:"actualItems"`
	Notes       string             `json:"notes,omitempty"`
}

type CompleteResult struct {
	Request     *core.RecycleRequest  `json:"request"`
	Transaction *core.Transaction     `json:"transaction,omitempty"`
	Progress    gamification.Progress `json:"progress"`
	NewBalance  core.Money            `json:"newBalance"`
}

// Complete verifies the collected items and pays the owner exactly once.
func (s *Service) Complete(ctx context.Context, caller core.Principal, id string, in CompleteInput) (*CompleteResult, error) {
	if !caller.HasRole(core.RoleAdmin, core.RoleCollector) {
		return nil, core.ErrForbidden
	}
	v := &core.ValidationError{}
	normalizeItems("actualItems", in.ActualItems, v)
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var res CompleteResult
	err := s.store.WithTx(ctx, func(r core.Repository) error {
		req, err := r.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if caller.Role == core.RoleCollector && req.AssignedCollector != caller.ID {
			return core.ErrForbidden
		}
		switch {
		case req.Status == core.RequestCompleted:
			return fmt.Errorf("recycle request %s: %w", id, core.ErrAlreadyCompleted)
		case req.Status.IsTerminal():
			return &core.TransitionError{Entity: "recycle request", From: string(req.Status), To: string(core.RequestCompleted)}
		}

		if err := advanceTo(req, core.RequestVerified, caller.ID, now); err != nil {
			return err
		}

		b := rewards.RecycleReward(in.ActualItems)
		req.ActualItems = in.ActualItems
		req.Verification = &core.Verification{
			VerifiedBy:   caller.ID,
			VerifiedAt:   now,
			ActualWeight: b.TotalWeight,
			ActualItems:  itemCount(in.ActualItems),
			Notes:        in.Notes,
		}

		var u *core.User
		if b.Total.IsPositive() {
			tx, owner, err := wallet.ApplyDelta(ctx, r, req.UserID, wallet.Entry{
				Kind:           core.TxRecycleReward,
				Amount:         b.Total,
				Description:    fmt.Sprintf("Recycle request reward (%s kg)", b.TotalWeight.String()),
				Refs:           core.TxRefs{RecycleRequestID: req.ID, CollectionPointID: req.CollectionPointID},
				IdempotencyKey: "recycle-request:" + req.ID,
				Metadata:       map[string]string{"weightKg": b.TotalWeight.String()},
			}, now)
			if err != nil {
				return err
			}
			u, res.Transaction = owner, tx
			req.Reward.TransactionID = tx.ID
		} else if u, err = r.GetUser(ctx, req.UserID); err != nil {
			return err
		}

		req.Impact = rewards.ApplyImpact(&u.Impact, in.ActualItems)
		gamification.RecordAction(&u.Impact, now)
		progress := gamification.Apply(u, b.XP, now)
		if err := r.UpdateUser(ctx, *u); err != nil {
			return err
		}

		if req.Type == core.RequestDropoff && req.CollectionPointID != "" {
			if _, err := collection.Record(ctx, r, req.CollectionPointID, req.UserID, dropoffItems(in.ActualItems), now); err != nil {
				return err
			}
		}

		req.Reward.Amount = b.Total
		req.Reward.XPEarned = b.XP
		req.Reward.BadgesEarned = progress.NewBadges
		req.Reward.BonusReason = b.BonusReason()
		req.Reward.PaidAt = core.TimePtr(now)
		note := in.Notes
		if note == "" {
			note = "pickup completed"
		}
		if err := req.Transition(core.RequestCompleted, caller.ID, note, now); err != nil {
			return err
		}
		if err := r.UpdateRequest(ctx, *req); err != nil {
			return err
		}

		res.Request = req
		res.Progress = progress
		res.NewBalance = u.Wallet.Balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("recycle request completed",
		zap.String("user_id", string(res.Request.UserID)),
		zap.String("kind", string(core.TxRecycleReward)),
		zap.String("amount", res.Request.Reward.Amount.String()),
		zap.String("request_id", id),
		zap.String("weight_kg", res.Request.Verification.ActualWeight.String()),
		zap.String("by", string(caller.ID)))
	return &res, nil
}

// advanceTo walks the happy path from the current status up to target,
// recording each skipped step in the history.
func advanceTo(req *core.RecycleRequest, target core.RequestStatus, by core.UserID, at time.Time) error {
	for req.Status != target {
		next, ok := nextOnPath(req.Status)
		if !ok {
			return &core.TransitionError{Entity: "recycle request", From: string(req.Status), To: string(target)}
		}
		if err := req.Transition(next, by, "", at); err != nil {
			return err
		}
	}
	return nil
}

func nextOnPath(s core.RequestStatus) (core.RequestStatus, bool) {
	for i, st := range core.RequestPath[:len(core.RequestPath)-1] {
		if st == s {
			return core.RequestPath[i+1], true
		}
	}
	return "", false
}

func itemCount(items []core.RecycleItem) int {
	n := 0
	for _, it := range items {
		n += it.Quantity
	}
	return n
}
