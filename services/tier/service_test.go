package tier

import (
	"context"
	"testing"

	"kolmarket/pkg/errutil"
	"kolmarket/services/testutil"

	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &Tier{})
	require.NoError(t, Seed(db))
	return NewServiceWithFee(db, 15)
}

func TestSeedDefaults(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tiers, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, tiers, len(Defaults))

	rt, err := svc.Get(ctx, "retweet")
	require.NoError(t, err)
	require.Equal(t, int64(1000), rt.UnitRate)
	require.Equal(t, 5, rt.MinSlots)
	require.Equal(t, 50, rt.MaxSlots)
	require.True(t, rt.RequiresTarget)

	// Seeding twice must not duplicate or reset rows.
	require.NoError(t, Seed(svc.db))
	tiers, err = svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, tiers, len(Defaults))
}

func TestPriceDeterministic(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	q, err := svc.Price(ctx, "retweet", 5)
	require.NoError(t, err)
	require.Equal(t, int64(1000), q.UnitRate)
	require.Equal(t, int64(750), q.PlatformFee)
	require.Equal(t, int64(5750), q.TotalCost)

	again, err := svc.Price(ctx, "retweet", 5)
	require.NoError(t, err)
	require.Equal(t, q, again)
}

func TestPriceIntegerFee(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// 1500 * 3 * 15% = 675, no fractional units anywhere.
	q, err := svc.Price(ctx, "like_rt", 3)
	require.NoError(t, err)
	require.Equal(t, int64(675), q.PlatformFee)
	require.Equal(t, int64(4500+675), q.TotalCost)
}

func TestPriceRejectsBadInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Price(ctx, "retweet", 0)
	require.True(t, errutil.HasStatus(err, errutil.StatusValidationFailed))

	_, err = svc.Price(ctx, "does-not-exist", 5)
	require.True(t, errutil.HasStatus(err, errutil.StatusBadRequest))
}

func TestPriceRejectsInactiveTier(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	off := false
	_, err := svc.Update(ctx, "thread", UpdateInput{IsActive: &off})
	require.NoError(t, err)

	_, err = svc.Price(ctx, "thread", 5)
	require.True(t, errutil.HasStatus(err, errutil.StatusBadRequest))
}

func TestUpdateChangesFutureQuotesOnly(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	before, err := svc.Price(ctx, "retweet", 10)
	require.NoError(t, err)

	newRate := int64(2000)
	_, err = svc.Update(ctx, "retweet", UpdateInput{UnitRate: &newRate})
	require.NoError(t, err)

	after, err := svc.Price(ctx, "retweet", 10)
	require.NoError(t, err)
	require.Equal(t, int64(2000), after.UnitRate)
	require.NotEqual(t, before.TotalCost, after.TotalCost)

	// The earlier quote is a value, untouched by the edit. Campaigns persist
	// that value at creation, so running campaigns never reprice.
	require.Equal(t, int64(1000), before.UnitRate)
	require.Equal(t, int64(11500), before.TotalCost)
}

func TestGetUnknownTier(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Get(context.Background(), "nope")
	require.True(t, errutil.HasStatus(err, errutil.StatusNotFound))
}
