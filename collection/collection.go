/*
Package collection manages collection points: physical sites where users
drop off recyclable material.

POINTS:
  Admins and collectors open points; only admins edit or close them.
  Closing is a soft delete: the point leaves list and nearby results and
  refuses dropoffs, but keeps its history.

DROPOFFS:
  A dropoff is accepted only by an active point, and only when every item's
  material is in the point's accepted list. Recording one updates the
  per-material collected amounts, current capacity, totals, and pushes the
  dropoff onto a newest-first list capped at 50.

  Record is also called from the QR recycle claim and from recycle request
  completion, inside their unit of work.

STATS:
  Daily, weekly and monthly windows are computed from the recent list, so
  they undercount once a point has more than 50 dropoffs in the window.
*/
package collection

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ecoback/reward-engine/core"
)

const (
	DefaultMaxDistanceMeters = 5000
	DefaultNearbyLimit       = 20

	earthRadiusKm = 6371.0
)

type Service struct {
	store core.Store
	clock core.Clock
	log   *zap.Logger
}

func NewService(store core.Store, clock core.Clock, log *zap.Logger) *Service {
	return &Service{store: store, clock: clock, log: log.Named("collection")}
}

// =============================================================================
// POINTS
// =============================================================================

type PointInput struct {
	Name              string          `json:"name"`
	Address           string          `json:"address"`
	City              string          `json:"city"`
	Phone             string          `json:"phone"`
	Location          core.GeoPoint   `json:"location"`
	AcceptedMaterials []core.Material `json:"acceptedMaterials"`
	MaxCapacity       decimal.Decimal `json:"maxCapacity"`
}

func (in PointInput) validate() error {
	v := &core.ValidationError{}
	if strings.TrimSpace(in.Name) == "" {
		v.Add("name", "required")
	}
	if strings.TrimSpace(in.Address) == "" {
		v.Add("address", "required")
	}
	if in.Location.Lat < -90 || in.Location.Lat > 90 {
		v.Add("location.lat", "must be within [-90, 90]")
	}
	if in.Location.Lng < -180 || in.Location.Lng > 180 {
		v.Add("location.lng", "must be within [-180, 180]")
	}
	if len(in.AcceptedMaterials) == 0 {
		v.Add("acceptedMaterials", "at least one material is required")
	}
	for _, m := range in.AcceptedMaterials {
		if !m.Valid() {
			v.Add("acceptedMaterials", fmt.Sprintf("unknown material %q", m))
		}
	}
	if in.MaxCapacity.IsNegative() {
		v.Add("maxCapacity", "must not be negative")
	}
	return v.OrNil()
}

// Create is open to admins and collectors.
func (s *Service) Create(ctx context.Context, caller core.Principal, in PointInput) (*core.CollectionPoint, error) {
	if !caller.HasRole(core.RoleAdmin, core.RoleCollector) {
		return nil, core.ErrForbidden
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	p := core.CollectionPoint{
		ID:       uuid.NewString(),
		Name:     strings.TrimSpace(in.Name),
		Address:  in.Address,
		City:     in.City,
		Phone:    in.Phone,
		Location: in.Location,
		Capacity: core.Capacity{Current: decimal.Zero, Maximum: in.MaxCapacity},
		Stats: core.PointStats{
			TotalWeightCollected: decimal.Zero,
			RecentDropoffs:       []core.Dropoff{},
		},
		IsActive:  true,
		CreatedAt: s.clock.Now(),
	}
	p.AcceptedMaterials = accepted(nil, in.AcceptedMaterials)

	if err := s.store.WithTx(ctx, func(r core.Repository) error { return r.CreatePoint(ctx, p) }); err != nil {
		return nil, err
	}
	s.log.Info("collection point created",
		zap.String("point_id", p.ID), zap.String("name", p.Name), zap.String("by", string(caller.ID)))
	return &p, nil
}

// accepted builds the accepted list for materials, deduplicated, carrying
// over the collected amount of any material already in prev.
func accepted(prev []core.AcceptedMaterial, materials []core.Material) []core.AcceptedMaterial {
	collected := make(map[core.Material]decimal.Decimal, len(prev))
	for _, am := range prev {
		collected[am.Type] = am.CollectedAmount
	}
	out := make([]core.AcceptedMaterial, 0, len(materials))
	seen := map[core.Material]bool{}
	for _, m := range materials {
		if seen[m] {
			continue
		}
		seen[m] = true
		amount, ok := collected[m]
		if !ok {
			amount = decimal.Zero
		}
		out = append(out, core.AcceptedMaterial{Type: m, CollectedAmount: amount})
	}
	return out
}

// PointUpdate changes only the fields that are set. Dropoff stats are
// never touched by an update.
type PointUpdate struct {
	Name              *string          `json:"name,omitempty"`
	Address           *string          `json:"address,omitempty"`
	City              *string          `json:"city,omitempty"`
	Phone             *string          `json:"phone,omitempty"`
	Location          *core.GeoPoint   `json:"location,omitempty"`
	AcceptedMaterials []core.Material  `json:"acceptedMaterials,omitempty"`
	MaxCapacity       *decimal.Decimal `json:"maxCapacity,omitempty"`
	IsActive          *bool            `json:"isActive,omitempty"`
}

func (in PointUpdate) apply(p *core.CollectionPoint) error {
	next := PointInput{
		Name:        p.Name,
		Address:     p.Address,
		City:        p.City,
		Phone:       p.Phone,
		Location:    p.Location,
		MaxCapacity: p.Capacity.Maximum,
	}
	for _, am := range p.AcceptedMaterials {
		next.AcceptedMaterials = append(next.AcceptedMaterials, am.Type)
	}
	if in.Name != nil {
		next.Name = *in.Name
	}
	if in.Address != nil {
		next.Address = *in.Address
	}
	if in.City != nil {
		next.City = *in.City
	}
	if in.Phone != nil {
		next.Phone = *in.Phone
	}
	if in.Location != nil {
		next.Location = *in.Location
	}
	if in.AcceptedMaterials != nil {
		next.AcceptedMaterials = in.AcceptedMaterials
	}
	if in.MaxCapacity != nil {
		next.MaxCapacity = *in.MaxCapacity
	}
	if err := next.validate(); err != nil {
		return err
	}

	p.Name = strings.TrimSpace(next.Name)
	p.Address = next.Address
	p.City = next.City
	p.Phone = next.Phone
	p.Location = next.Location
	p.Capacity.Maximum = next.MaxCapacity
	p.AcceptedMaterials = accepted(p.AcceptedMaterials, next.AcceptedMaterials)
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	return nil
}

// Update is admin-only.
func (s *Service) Update(ctx context.Context, caller core.Principal, id string, in PointUpdate) (*core.CollectionPoint, error) {
	if !caller.IsAdmin() {
		return nil, core.ErrForbidden
	}
	var p *core.CollectionPoint
	err := s.store.WithTx(ctx, func(r core.Repository) error {
		var err error
		if p, err = r.GetPoint(ctx, id); err != nil {
			return fmt.Errorf("collection point %s: %w", id, err)
		}
		if err := in.apply(p); err != nil {
			return err
		}
		return r.UpdatePoint(ctx, *p)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("collection point updated", zap.String("point_id", id), zap.String("by", string(caller.ID)))
	return p, nil
}

// Deactivate is the admin-only soft delete. The point drops out of list
// and nearby results and refuses new dropoffs; its history is kept.
func (s *Service) Deactivate(ctx context.Context, caller core.Principal, id string) (*core.CollectionPoint, error) {
	if !caller.IsAdmin() {
		return nil, core.ErrForbidden
	}
	var p *core.CollectionPoint
	err := s.store.WithTx(ctx, func(r core.Repository) error {
		var err error
		if p, err = r.GetPoint(ctx, id); err != nil {
			return fmt.Errorf("collection point %s: %w", id, err)
		}
		p.IsActive = false
		return r.UpdatePoint(ctx, *p)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("collection point deactivated", zap.String("point_id", id), zap.String("by", string(caller.ID)))
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*core.CollectionPoint, error) {
	var p *core.CollectionPoint
	err := s.store.View(ctx, func(r core.Repository) error {
		var err error
		p, err = r.GetPoint(ctx, id)
		return err
	})
	return p, err
}

// ListQuery narrows the active points. Search matches name, address and
// city, case-insensitively.
type ListQuery struct {
	City     string
	Material core.Material
	Search   string
}

func (s *Service) List(ctx context.Context, q ListQuery) ([]core.CollectionPoint, error) {
	var points []core.CollectionPoint
	err := s.store.View(ctx, func(r core.Repository) error {
		var err error
		points, err = r.ListPoints(ctx, core.PointFilter{City: q.City, ActiveOnly: true})
		return err
	})
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]core.CollectionPoint, 0, len(points))
	for _, p := range points {
		if q.Material != "" && !p.Accepts(q.Material) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(p.Name+" "+p.Address+" "+p.City), needle) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// NearbyPoint is a point with its distance from the query origin, in km.
type NearbyPoint struct {
	core.CollectionPoint
	Distance float64 `json:"distance"`
}

// Nearby returns active points within maxDistanceMeters of (lat, lng),
// closest first. Zero arguments take the defaults.
func (s *Service) Nearby(ctx context.Context, lat, lng, maxDistanceMeters float64, limit int) ([]NearbyPoint, error) {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, core.Invalid("coordinates", "lat must be within [-90, 90] and lng within [-180, 180]")
	}
	if maxDistanceMeters <= 0 {
		maxDistanceMeters = DefaultMaxDistanceMeters
	}
	if limit <= 0 {
		limit = DefaultNearbyLimit
	}

	var points []core.CollectionPoint
	err := s.store.View(ctx, func(r core.Repository) error {
		var err error
		points, err = r.ListPoints(ctx, core.PointFilter{ActiveOnly: true})
		return err
	})
	if err != nil {
		return nil, err
	}

	origin := core.GeoPoint{Lat: lat, Lng: lng}
	maxKm := maxDistanceMeters / 1000
	out := []NearbyPoint{}
	for _, p := range points {
		d := Haversine(origin, p.Location)
		if d <= maxKm {
			out = append(out, NearbyPoint{CollectionPoint: p, Distance: math.Round(d*100) / 100})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Haversine returns the great-circle distance between a and b in km.
func Haversine(a, b core.GeoPoint) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// =============================================================================
// DROPOFFS
// =============================================================================

// Record validates and folds a dropoff into pointID inside the caller's
// unit of work.
func Record(ctx context.Context, r core.Repository, pointID string, userID core.UserID, items []core.DropoffItem, now time.Time) (*core.CollectionPoint, error) {
	if len(items) == 0 {
		return nil, core.Invalid("items", "at least one item is required")
	}
	p, err := r.GetPoint(ctx, pointID)
	if err != nil {
		return nil, fmt.Errorf("collection point %s: %w", pointID, err)
	}
	if !p.IsActive {
		return nil, fmt.Errorf("collection point %s: %w", pointID, core.ErrInactive)
	}

	v := &core.ValidationError{}
	var rejected []string
	total := decimal.Zero
	for i, it := range items {
		if it.Weight.IsNegative() {
			v.Add(fmt.Sprintf("items[%d].weight", i), "must not be negative")
		}
		if !p.Accepts(it.Material) {
			rejected = append(rejected, string(it.Material))
		}
		total = total.Add(it.Weight)
	}
	if len(rejected) > 0 {
		v.Add("items", "not accepted here: "+strings.Join(rejected, ", "))
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	p.RecordDropoff(core.Dropoff{UserID: userID, Items: items, TotalWeight: total, DroppedAt: now})
	if err := r.UpdatePoint(ctx, *p); err != nil {
		return nil, err
	}
	return p, nil
}

// RecordDropoff is the standalone dropoff endpoint. It does not pay a
// reward; rewards come from QR recycle claims and recycle requests.
func (s *Service) RecordDropoff(ctx context.Context, userID core.UserID, pointID string, items []core.DropoffItem) (*core.CollectionPoint, error) {
	now := s.clock.Now()
	var p *core.CollectionPoint
	err := s.store.WithTx(ctx, func(r core.Repository) error {
		var err error
		p, err = Record(ctx, r, pointID, userID, items, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("dropoff recorded",
		zap.String("user_id", string(userID)),
		zap.String("point_id", pointID),
		zap.String("weight_kg", p.Stats.RecentDropoffs[0].TotalWeight.String()))
	return p, nil
}

// =============================================================================
// STATS
// =============================================================================

type Window struct {
	Dropoffs int             `json:"dropoffs"`
	Weight   decimal.Decimal `json:"weight"`
}

type MaterialCollected struct {
	Type      core.Material   `json:"type"`
	Collected decimal.Decimal `json:"collected"`
	Unit      string          `json:"unit"`
}

type PointReport struct {
	Total      Window              `json:"total"`
	Daily      Window              `json:"daily"`
	Weekly     Window              `json:"weekly"`
	Monthly    Window              `json:"monthly"`
	ByMaterial []MaterialCollected `json:"byMaterial"`
}

func (s *Service) Stats(ctx context.Context, pointID string) (*PointReport, error) {
	p, err := s.Get(ctx, pointID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	rep := &PointReport{
		Total:   Window{Dropoffs: p.Stats.TotalDropoffs, Weight: p.Stats.TotalWeightCollected},
		Daily:   window(p.Stats.RecentDropoffs, now.Add(-24*time.Hour)),
		Weekly:  window(p.Stats.RecentDropoffs, now.Add(-7*24*time.Hour)),
		Monthly: window(p.Stats.RecentDropoffs, now.Add(-30*24*time.Hour)),
	}
	for _, am := range p.AcceptedMaterials {
		rep.ByMaterial = append(rep.ByMaterial, MaterialCollected{Type: am.Type, Collected: am.CollectedAmount, Unit: "kg"})
	}
	return rep, nil
}

func window(recent []core.Dropoff, since time.Time) Window {
	w := Window{Weight: decimal.Zero}
	for _, d := range recent {
		if d.DroppedAt.Before(since) {
			continue
		}
		w.Dropoffs++
		w.Weight = w.Weight.Add(d.TotalWeight)
	}
	return w
}
