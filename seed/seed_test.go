package seed_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ecoback/reward-engine/auth"
	"github.com/ecoback/reward-engine/core"
	"github.com/ecoback/reward-engine/core/store"
	"github.com/ecoback/reward-engine/seed"
)

var t0 = time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

func TestApply_IsIdempotent(t *testing.T) {
	// GIVEN: The demo fixture
	// WHEN: It is applied twice
	// THEN: The second run inserts nothing and the seeded admin can log in

	ctx := context.Background()
	st := store.NewMemory()
	f, err := seed.Load("testdata/demo.yaml")
	require.NoError(t, err)

	rep, err := seed.Apply(ctx, st, f, t0, bcrypt.MinCost)
	require.NoError(t, err)
	assert.Equal(t, seed.Report{Users: 3, Products: 2, Points: 1}, *rep)

	rep, err = seed.Apply(ctx, st, f, t0, bcrypt.MinCost)
	require.NoError(t, err)
	assert.Equal(t, seed.Report{Skipped: 6}, *rep)

	var (
		p  *core.Product
		cp *core.CollectionPoint
	)
	require.NoError(t, st.View(ctx, func(r core.Repository) error {
		var err error
		if p, err = r.GetProduct(ctx, "p-detergent"); err != nil {
			return err
		}
		cp, err = r.GetPoint(ctx, "cp-d1")
		return err
	}))
	assert.Equal(t, "3.5", p.CashbackPercentage.String())
	assert.Equal(t, core.UserID("brand-1"), p.BrandOwnerID)
	assert.True(t, cp.Accepts(core.MaterialMetal))
	assert.InDelta(t, 10.7769, cp.Location.Lat, 1e-9)

	clock := core.NewFixedClock(t0)
	tokens, err := auth.NewTokenIssuer("seed-test", time.Hour, clock)
	require.NoError(t, err)
	svc := auth.NewService(st, clock, tokens, bcrypt.MinCost, zap.NewNop())
	sess, err := svc.Login(ctx, "admin@ecoback.vn", "admin123")
	require.NoError(t, err)
	assert.Equal(t, core.RoleAdmin, sess.User.Role)
}

func TestParse_RejectsBadRecords(t *testing.T) {
	_, err := seed.Parse([]byte(`
users:
  - id: u1
    email: u1@ecoback.vn
    password: "123"
    role: superuser
products:
  - id: p1
    name: Can
    brandOwnerId: b1
    material: aluminium
`))
	var ve *core.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "users[0].role")
	assert.Contains(t, ve.Fields, "users[0].password")
	assert.Contains(t, ve.Fields, "products[0].material")

	_, err = seed.Parse([]byte("users: [oops"))
	assert.Error(t, err)
}
