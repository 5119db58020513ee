package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COLLECTION POINT - Physical dropoff site
// =============================================================================

// MaxRecentDropoffs caps the recentDropoffs list; oldest entries fall off.
const MaxRecentDropoffs = 50

type AcceptedMaterial struct {
	Type            Material        `json:"type"`
	CollectedAmount decimal.Decimal `json:"collectedAmount"` // kg
}

type Capacity struct {
	Current decimal.Decimal `json:"current"`
	Maximum decimal.Decimal `json:"maximum"`
}

type DropoffItem struct {
	Material Material        `json:"type"`
	Weight   decimal.Decimal `json:"weight"`
}

type Dropoff struct {
	UserID      UserID          `json:"userId"`
	Items       []DropoffItem   `json:"items"`
	TotalWeight decimal.Decimal `json:"totalWeight"`
	DroppedAt   time.Time       `json:"droppedAt"`
}

type PointStats struct {
	TotalDropoffs        int             `json:"totalDropoffs"`
	TotalWeightCollected decimal.Decimal `json:"totalWeightCollected"`
	RecentDropoffs       []Dropoff       `json:"recentDropoffs"` // newest first
}

type CollectionPoint struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Address           string             `json:"address"`
	City              string             `json:"city"`
	Phone             string             `json:"phone,omitempty"`
	Location          GeoPoint           `json:"location"`
	AcceptedMaterials []AcceptedMaterial `json:"acceptedMaterials"`
	Capacity          Capacity           `json:"capacity"`
	Stats             PointStats         `json:"stats"`
	IsActive          bool               `json:"isActive"`
	CreatedAt         time.Time          `json:"createdAt"`
	LastCollectionAt  *time.Time         `json:"lastCollectionAt,omitempty"`
}

func (p *CollectionPoint) Accepts(m Material) bool {
	for _, am := range p.AcceptedMaterials {
		if am.Type == m {
			return true
		}
	}
	return false
}

// RecordDropoff folds d into the per-material, capacity and total
// counters and pushes it onto the recent list.
func (p *CollectionPoint) RecordDropoff(d Dropoff) {
	for _, it := range d.Items {
		for i := range p.AcceptedMaterials {
			if p.AcceptedMaterials[i].Type == it.Material {
				p.AcceptedMaterials[i].CollectedAmount = p.AcceptedMaterials[i].CollectedAmount.Add(it.Weight)
			}
		}
	}
	p.Capacity.Current = p.Capacity.Current.Add(d.TotalWeight)
	p.Stats.TotalDropoffs++
	p.Stats.TotalWeightCollected = p.Stats.TotalWeightCollected.Add(d.TotalWeight)
	p.LastCollectionAt = TimePtr(d.DroppedAt)

	recent := make([]Dropoff, 0, len(p.Stats.RecentDropoffs)+1)
	recent = append(recent, d)
	recent = append(recent, p.Stats.RecentDropoffs...)
	if len(recent) > MaxRecentDropoffs {
		recent = recent[:MaxRecentDropoffs]
	}
	p.Stats.RecentDropoffs = recent
}

type PointFilter struct {
	City       string
	ActiveOnly bool
}
