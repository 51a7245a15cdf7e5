package campaign

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"kolmarket/pkg/errutil"
	"kolmarket/pkg/repository"
	"kolmarket/services/notify"
	"kolmarket/services/testutil"
	"kolmarket/services/tier"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubSequence struct {
	n atomic.Int64
}

func (s *stubSequence) NextCampaignCode(context.Context) (string, error) {
	return fmt.Sprintf("CMP-TEST-%04d", s.n.Add(1)), nil
}

func (s *stubSequence) VerificationCode(context.Context) (string, error) {
	return "KOL-TESTCODE", nil
}

func newTestService(t *testing.T) (*Service, *tier.Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &tier.Tier{}, &Campaign{})
	require.NoError(t, tier.Seed(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	tiers := tier.NewServiceWithFee(db, 15)
	svc := &Service{
		db:        db,
		node:      node,
		seq:       &stubSequence{},
		tiers:     tiers,
		events:    notify.NopEvents(),
		campaigns: repository.ProvideStore[Campaign](db),
	}
	return svc, tiers, db
}

func validInput() CreateInput {
	return CreateInput{
		CustomerID:    "cust-1",
		ProjectName:   "Moon Project",
		TierKey:       "retweet",
		TargetPostURL: "https://x.com/moonproject/status/12345",
		SlotCount:     5,
		Deadline:      time.Now().Add(72 * time.Hour),
	}
}

func TestCreateSnapshotsPricing(t *testing.T) {
	svc, tiers, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, validInput())
	require.NoError(t, err)
	require.Equal(t, StatusPendingPayment, c.Status)
	require.Equal(t, int64(1000), c.UnitRate)
	require.Equal(t, int64(750), c.PlatformFee)
	require.Equal(t, int64(5750), c.TotalCost)
	require.NotEmpty(t, c.Code)

	// A tier edit after creation must not touch the stored pricing.
	newRate := int64(9999)
	_, err = tiers.Update(ctx, "retweet", tier.UpdateInput{UnitRate: &newRate})
	require.NoError(t, err)

	got, err := svc.Get(ctx, c.CampaignID)
	require.NoError(t, err)
	require.Equal(t, int64(1000), got.UnitRate)
	require.Equal(t, int64(5750), got.TotalCost)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	in := validInput()
	in.SlotCount = 100
	_, err := svc.Create(ctx, in)
	require.True(t, errutil.HasStatus(err, errutil.StatusValidationFailed))

	in = validInput()
	in.TargetPostURL = ""
	_, err = svc.Create(ctx, in)
	require.True(t, errutil.HasStatus(err, errutil.StatusValidationFailed))

	in = validInput()
	in.TierKey = "thread"
	in.SlotCount = 5
	in.Brief = ""
	_, err = svc.Create(ctx, in)
	require.True(t, errutil.HasStatus(err, errutil.StatusValidationFailed))

	in = validInput()
	in.Deadline = time.Now().Add(-time.Hour)
	_, err = svc.Create(ctx, in)
	require.True(t, errutil.HasStatus(err, errutil.StatusValidationFailed))

	in = validInput()
	in.TierKey = "nope"
	_, err = svc.Create(ctx, in)
	require.True(t, errutil.HasStatus(err, errutil.StatusNotFound))
}

func TestActivate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	live, err := svc.Activate(ctx, c.CampaignID)
	require.NoError(t, err)
	require.Equal(t, StatusLive, live.Status)
	require.NotNil(t, live.ActivatedAt)

	// Payment callbacks retry; re-activation is a no-op success.
	again, err := svc.Activate(ctx, c.CampaignID)
	require.NoError(t, err)
	require.Equal(t, StatusLive, again.Status)

	_, err = svc.Activate(ctx, "missing")
	require.True(t, errutil.HasStatus(err, errutil.StatusNotFound))
}

func TestActivateWrongState(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, validInput())
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, c.CampaignID)
	require.NoError(t, err)

	_, err = svc.Activate(ctx, c.CampaignID)
	require.True(t, errutil.HasStatus(err, errutil.StatusConflict))
}

func TestCancel(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, c.CampaignID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = svc.Cancel(ctx, c.CampaignID)
	require.True(t, errutil.HasStatus(err, errutil.StatusFailedPrecondition))
}

func TestCompleteOnlyWhenAccepting(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	_, err = svc.Complete(ctx, c.CampaignID)
	require.True(t, errutil.HasStatus(err, errutil.StatusFailedPrecondition))

	_, err = svc.Activate(ctx, c.CampaignID)
	require.NoError(t, err)

	done, err := svc.Complete(ctx, c.CampaignID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
}

func TestExpireSweep(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, validInput())
	require.NoError(t, err)
	_, err = svc.Activate(ctx, c.CampaignID)
	require.NoError(t, err)

	fresh, err := svc.Create(ctx, validInput())
	require.NoError(t, err)
	_, err = svc.Activate(ctx, fresh.CampaignID)
	require.NoError(t, err)

	// Backdate one deadline past due.
	err = db.Model(&Campaign{}).
		Where("campaign_id = ?", c.CampaignID).
		Update("deadline", time.Now().Add(-time.Hour)).Error
	require.NoError(t, err)

	swept, err := svc.ExpireSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, swept)

	got, err := svc.Get(ctx, c.CampaignID)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, got.Status)

	still, err := svc.Get(ctx, fresh.CampaignID)
	require.NoError(t, err)
	require.Equal(t, StatusLive, still.Status)

	// Second sweep finds nothing.
	swept, err = svc.ExpireSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, swept)
}

func TestSetAnnouncementRef(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	require.NoError(t, svc.SetAnnouncementRef(ctx, c.CampaignID, "chan-42/msg-777"))

	got, err := svc.Get(ctx, c.CampaignID)
	require.NoError(t, err)
	require.Equal(t, "chan-42/msg-777", got.AnnouncementRef)

	err = svc.SetAnnouncementRef(ctx, "missing", "x")
	require.True(t, errutil.HasStatus(err, errutil.StatusNotFound))
}
