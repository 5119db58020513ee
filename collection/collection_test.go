package collection_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ecoback/reward-engine/collection"
	"github.com/ecoback/reward-engine/core"
	"github.com/ecoback/reward-engine/core/store"
)

var (
	now   = time.Date(2025, time.April, 1, 12, 0, 0, 0, time.UTC)
	admin     = core.Principal{ID: "admin", Role: core.RoleAdmin}
	collector = core.Principal{ID: "minh", Role: core.RoleCollector}
)

// Ho Chi Minh City landmarks
var (
	benThanh  = core.GeoPoint{Lat: 10.7725, Lng: 106.6980}
	notreDame = core.GeoPoint{Lat: 10.7798, Lng: 106.6990} // ~0.8km from Ben Thanh
	thuDuc    = core.GeoPoint{Lat: 10.8494, Lng: 106.7537} // ~10km away
	hanoiLake = core.GeoPoint{Lat: 21.0285, Lng: 105.8542}
)

func newService(t *testing.T) (*collection.Service, *store.Memory, *core.FixedClock) {
	t.Helper()
	st := store.NewMemory()
	clock := core.NewFixedClock(now)
	return collection.NewService(st, clock, zap.NewNop()), st, clock
}

func createPoint(t *testing.T, svc *collection.Service, name, city string, loc core.GeoPoint, materials ...core.Material) *core.CollectionPoint {
	t.Helper()
	p, err := svc.Create(context.Background(), admin, collection.PointInput{
		Name: name, Address: name + " street", City: city, Location: loc,
		AcceptedMaterials: materials, MaxCapacity: decimal.NewFromInt(1000),
	})
	require.NoError(t, err)
	return p
}

func TestCreate_Guards(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, core.Principal{ID: "u", Role: core.RoleUser}, collection.PointInput{})
	assert.ErrorIs(t, err, core.ErrForbidden)

	_, err = svc.Create(ctx, admin, collection.PointInput{Name: "x", Address: "y", AcceptedMaterials: []core.Material{"rubber"}})
	assert.ErrorIs(t, err, core.ErrValidation)

	p, err := svc.Create(ctx, collector, collection.PointInput{
		Name: "Cho Lon", Address: "1 Hai Thuong Lan Ong", AcceptedMaterials: []core.Material{core.MaterialMetal},
	})
	require.NoError(t, err, "collectors open points too")
	assert.True(t, p.IsActive)
}

func TestUpdate_KeepsCollectedAmounts(t *testing.T) {
	// GIVEN: A plastic point holding 3kg of plastic
	// WHEN: An admin renames it and adds glass
	// THEN: Plastic keeps its 3kg, glass starts at zero, stats are untouched

	svc, _, _ := newService(t)
	ctx := context.Background()
	p := createPoint(t, svc, "Ben Thanh", "HCMC", benThanh, core.MaterialPlastic)
	_, err := svc.RecordDropoff(ctx, "u1", p.ID, []core.DropoffItem{{Material: core.MaterialPlastic, Weight: core.Kg(3)}})
	require.NoError(t, err)

	name := "Ben Thanh Hub"
	got, err := svc.Update(ctx, admin, p.ID, collection.PointUpdate{
		Name:              &name,
		AcceptedMaterials: []core.Material{core.MaterialPlastic, core.MaterialGlass, core.MaterialGlass},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ben Thanh Hub", got.Name)
	assert.Equal(t, "HCMC", got.City, "unset fields are kept")
	require.Len(t, got.AcceptedMaterials, 2)
	assert.True(t, got.AcceptedMaterials[0].CollectedAmount.Equal(decimal.NewFromInt(3)))
	assert.True(t, got.AcceptedMaterials[1].CollectedAmount.IsZero())
	assert.Equal(t, 1, got.Stats.TotalDropoffs)

	_, err = svc.Update(ctx, collector, p.ID, collection.PointUpdate{Name: &name})
	assert.ErrorIs(t, err, core.ErrForbidden)
	_, err = svc.Update(ctx, admin, p.ID, collection.PointUpdate{AcceptedMaterials: []core.Material{"rubber"}})
	assert.ErrorIs(t, err, core.ErrValidation)
	_, err = svc.Update(ctx, admin, "missing", collection.PointUpdate{Name: &name})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestDeactivate_HidesPointAndRefusesDropoffs(t *testing.T) {
	// GIVEN: An active point next to Ben Thanh
	// WHEN: An admin deactivates it
	// THEN: List and nearby skip it, dropoffs fail as inactive, the record stays readable

	svc, _, _ := newService(t)
	ctx := context.Background()
	p := createPoint(t, svc, "Ben Thanh", "HCMC", benThanh, core.MaterialPlastic)

	_, err := svc.Deactivate(ctx, collector, p.ID)
	assert.ErrorIs(t, err, core.ErrForbidden)

	got, err := svc.Deactivate(ctx, admin, p.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	_, err = svc.RecordDropoff(ctx, "u1", p.ID, []core.DropoffItem{{Material: core.MaterialPlastic, Weight: core.Kg(1)}})
	assert.ErrorIs(t, err, core.ErrInactive)

	all, err := svc.List(ctx, collection.ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, all)
	near, err := svc.Nearby(ctx, benThanh.Lat, benThanh.Lng, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, near)

	kept, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ben Thanh", kept.Name)
}

func TestHaversine(t *testing.T) {
	assert.InDelta(t, 0.82, collection.Haversine(benThanh, notreDame), 0.05)
	assert.InDelta(t, 1140, collection.Haversine(benThanh, hanoiLake), 15)
	assert.Zero(t, collection.Haversine(benThanh, benThanh))
}

func TestNearby_FiltersSortsAndRounds(t *testing.T) {
	// GIVEN: Points 0km, 0.8km and 10km from Ben Thanh
	// WHEN: Searching with the default 5km radius
	// THEN: The two close points come back, closest first, distances in km with 2 decimals

	svc, _, _ := newService(t)
	createPoint(t, svc, "Notre Dame", "HCMC", notreDame, core.MaterialPlastic)
	createPoint(t, svc, "Thu Duc", "HCMC", thuDuc, core.MaterialPlastic)
	createPoint(t, svc, "Ben Thanh", "HCMC", benThanh, core.MaterialPlastic)

	got, err := svc.Nearby(context.Background(), benThanh.Lat, benThanh.Lng, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Ben Thanh", got[0].Name)
	assert.Equal(t, 0.0, got[0].Distance)
	assert.Equal(t, "Notre Dame", got[1].Name)
	assert.InDelta(t, 0.82, got[1].Distance, 0.01)

	wide, err := svc.Nearby(context.Background(), benThanh.Lat, benThanh.Lng, 20000, 1)
	require.NoError(t, err)
	assert.Len(t, wide, 1, "limit applies after sorting")

	_, err = svc.Nearby(context.Background(), 91, 0, 0, 0)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestList_FiltersByCityMaterialAndSearch(t *testing.T) {
	svc, _, _ := newService(t)
	createPoint(t, svc, "Ben Thanh Market", "HCMC", benThanh, core.MaterialPlastic, core.MaterialGlass)
	createPoint(t, svc, "Hoan Kiem", "Hanoi", hanoiLake, core.MaterialPaper)

	ctx := context.Background()
	all, err := svc.List(ctx, collection.ListQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	hanoi, err := svc.List(ctx, collection.ListQuery{City: "hanoi"})
	require.NoError(t, err)
	require.Len(t, hanoi, 1)

	glass, err := svc.List(ctx, collection.ListQuery{Material: core.MaterialGlass})
	require.NoError(t, err)
	require.Len(t, glass, 1)
	assert.Equal(t, "Ben Thanh Market", glass[0].Name)

	search, err := svc.List(ctx, collection.ListQuery{Search: "market"})
	require.NoError(t, err)
	assert.Len(t, search, 1)
}

func TestRecordDropoff_UpdatesCountersAndCapsRecent(t *testing.T) {
	// GIVEN: A point accepting plastic and glass
	// WHEN: Recording 55 dropoffs of 1kg plastic + 0.5kg glass
	// THEN: Totals count all 55, the recent list keeps the 50 newest

	svc, _, clock := newService(t)
	p := createPoint(t, svc, "Ben Thanh", "HCMC", benThanh, core.MaterialPlastic, core.MaterialGlass)
	ctx := context.Background()

	items := []core.DropoffItem{
		{Material: core.MaterialPlastic, Weight: core.Kg(1)},
		{Material: core.MaterialGlass, Weight: core.Kg(0.5)},
	}
	var last *core.CollectionPoint
	for i := 0; i < 55; i++ {
		clock.Advance(time.Minute)
		var err error
		last, err = svc.RecordDropoff(ctx, "u1", p.ID, items)
		require.NoError(t, err)
	}

	assert.Equal(t, 55, last.Stats.TotalDropoffs)
	assert.True(t, last.Stats.TotalWeightCollected.Equal(decimal.RequireFromString("82.5")))
	assert.True(t, last.Capacity.Current.Equal(decimal.RequireFromString("82.5")))
	assert.True(t, last.AcceptedMaterials[0].CollectedAmount.Equal(decimal.NewFromInt(55)))
	require.Len(t, last.Stats.RecentDropoffs, core.MaxRecentDropoffs)
	assert.True(t, last.Stats.RecentDropoffs[0].DroppedAt.Equal(clock.Now()), "newest first")
	require.NotNil(t, last.LastCollectionAt)
}

func TestRecordDropoff_Rejections(t *testing.T) {
	svc, _, _ := newService(t)
	p := createPoint(t, svc, "Ben Thanh", "HCMC", benThanh, core.MaterialPlastic)
	ctx := context.Background()

	_, err := svc.RecordDropoff(ctx, "u1", p.ID, []core.DropoffItem{{Material: core.MaterialMetal, Weight: core.Kg(1)}})
	var ve *core.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields["items"], "metal")

	_, err = svc.RecordDropoff(ctx, "u1", p.ID, nil)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = svc.RecordDropoff(ctx, "u1", "missing", []core.DropoffItem{{Material: core.MaterialPlastic, Weight: core.Kg(1)}})
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = svc.Deactivate(ctx, admin, p.ID)
	require.NoError(t, err)
	_, err = svc.RecordDropoff(ctx, "u1", p.ID, []core.DropoffItem{{Material: core.MaterialPlastic, Weight: core.Kg(1)}})
	assert.ErrorIs(t, err, core.ErrInactive)

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Stats.TotalDropoffs, "rejected dropoffs leave no trace")
}

func TestStats_Windows(t *testing.T) {
	// GIVEN: Dropoffs 40 days, 10 days, 3 days and 1 hour ago
	// WHEN: Reading stats now
	// THEN: Daily sees 1, weekly 2, monthly 3, total 4

	svc, _, clock := newService(t)
	p := createPoint(t, svc, "Ben Thanh", "HCMC", benThanh, core.MaterialPlastic)
	ctx := context.Background()
	item := []core.DropoffItem{{Material: core.MaterialPlastic, Weight: core.Kg(2)}}

	for _, ago := range []time.Duration{40 * 24 * time.Hour, 10 * 24 * time.Hour, 3 * 24 * time.Hour, time.Hour} {
		clock.Set(now.Add(-ago))
		_, err := svc.RecordDropoff(ctx, "u1", p.ID, item)
		require.NoError(t, err)
	}
	clock.Set(now)

	rep, err := svc.Stats(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Total.Dropoffs)
	assert.Equal(t, 1, rep.Daily.Dropoffs)
	assert.Equal(t, 2, rep.Weekly.Dropoffs)
	assert.Equal(t, 3, rep.Monthly.Dropoffs)
	assert.True(t, rep.Monthly.Weight.Equal(decimal.NewFromInt(6)))
	require.Len(t, rep.ByMaterial, 1)
	assert.Equal(t, "kg", rep.ByMaterial[0].Unit)
}
