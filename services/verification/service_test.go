package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"kolmarket/pkg/errutil"
	"kolmarket/pkg/repository"
	"kolmarket/pkg/xapi"
	"kolmarket/services/acceptance"
	"kolmarket/services/campaign"
	"kolmarket/services/notify"
	"kolmarket/services/participant"
	"kolmarket/services/testutil"
	"kolmarket/services/tier"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type mockAPI struct {
	unconfigured bool
	posts        map[string]*xapi.Post
	reposts      map[string][]string
	likes        map[string][]string
	err          error
}

func (m *mockAPI) Configured() bool { return !m.unconfigured }

func (m *mockAPI) LookupUser(context.Context, string) (*xapi.User, error) {
	return nil, nil
}

func (m *mockAPI) GetPost(_ context.Context, postID string) (*xapi.Post, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.posts[postID], nil
}

func (m *mockAPI) RepostActors(_ context.Context, postID string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.reposts[postID], nil
}

func (m *mockAPI) LikeActors(_ context.Context, postID string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.likes[postID], nil
}

func (m *mockAPI) RecentPostsContain(context.Context, string, string) (bool, error) {
	return false, nil
}

type stubSequence struct{ n int }

func (s *stubSequence) NextCampaignCode(context.Context) (string, error) {
	s.n++
	return fmt.Sprintf("CMP-TEST-%04d", s.n), nil
}

func (s *stubSequence) VerificationCode(context.Context) (string, error) {
	return "KOL-TESTCODE", nil
}

type fixture struct {
	svc  *Service
	api  *mockAPI
	db   *gorm.DB
	node *snowflake.Node

	campaigns   *campaign.Service
	acceptances *acceptance.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t,
		&tier.Tier{}, &campaign.Campaign{}, &participant.KOL{}, &acceptance.Acceptance{})
	require.NoError(t, tier.Seed(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	api := &mockAPI{
		posts:   map[string]*xapi.Post{},
		reposts: map[string][]string{},
		likes:   map[string][]string{},
	}

	campaigns := campaign.NewService(campaign.ServiceParams{
		DB:     db,
		Node:   node,
		Seq:    &stubSequence{},
		Tiers:  tier.NewServiceWithFee(db, 15),
		Events: notify.NopEvents(),
	})
	acceptances := acceptance.NewService(acceptance.ServiceParams{
		DB:     db,
		Node:   node,
		Events: notify.NopEvents(),
	})

	svc := &Service{
		db:          db,
		api:         api,
		campaigns:   campaigns,
		acceptances: acceptances,
		kols:        repository.ProvideStore[participant.KOL](db),
	}
	return &fixture{
		svc:         svc,
		api:         api,
		db:          db,
		node:        node,
		campaigns:   campaigns,
		acceptances: acceptances,
	}
}

const targetPostID = "12345"

func (f *fixture) liveCampaign(t *testing.T, tierKey string, slots int) *campaign.Campaign {
	t.Helper()

	c, err := f.campaigns.Create(context.Background(), campaign.CreateInput{
		CustomerID:    "cust-1",
		ProjectName:   "Moon Project",
		TierKey:       tierKey,
		TargetPostURL: "https://x.com/moonproject/status/" + targetPostID,
		Brief:         "say something nice",
		SlotCount:     slots,
		Deadline:      time.Now().Add(72 * time.Hour),
	})
	require.NoError(t, err)
	_, err = f.campaigns.Activate(context.Background(), c.CampaignID)
	require.NoError(t, err)
	return c
}

func (f *fixture) acceptedSlot(t *testing.T, c *campaign.Campaign, n int) *acceptance.Acceptance {
	t.Helper()

	k := &participant.KOL{
		KOLID:    f.node.Generate().String(),
		ChatID:   int64(1000 + n),
		Name:     fmt.Sprintf("kol-%d", n),
		XAccount: fmt.Sprintf("@kol%d", n),
		XUserID:  fmt.Sprintf("u%d", n),
		IsActive: true,
	}
	require.NoError(t, f.db.Create(k).Error)

	res, err := f.acceptances.Accept(context.Background(), c.CampaignID, k)
	require.NoError(t, err)
	return res.Acceptance
}

func proofURL(id string) string {
	return "https://x.com/someone/status/" + id
}

func TestSubmitProofRetweetVerified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.liveCampaign(t, "retweet", 5)
	slot := f.acceptedSlot(t, c, 1)

	f.api.reposts[targetPostID] = []string{"u9", "u1"}

	acc, res, err := f.svc.SubmitProof(ctx, slot.AcceptanceID, proofURL("777"))
	require.NoError(t, err)
	require.True(t, res.Auto)
	require.True(t, res.Passed)
	require.Equal(t, acceptance.StatusVerified, acc.Status)
	require.NotNil(t, acc.VerifiedAt)

	var stored acceptance.Acceptance
	require.NoError(t, f.db.First(&stored, "acceptance_id = ?", slot.AcceptanceID).Error)
	require.Equal(t, acceptance.StatusVerified, stored.Status)

	var persisted Result
	require.NoError(t, json.Unmarshal(stored.VerificationResult, &persisted))
	require.True(t, persisted.Passed)
}

func TestSubmitProofRetweetMissingStaysSubmitted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.liveCampaign(t, "retweet", 5)
	slot := f.acceptedSlot(t, c, 1)

	f.api.reposts[targetPostID] = []string{"u9"}

	acc, res, err := f.svc.SubmitProof(ctx, slot.AcceptanceID, proofURL("777"))
	require.NoError(t, err)
	require.True(t, res.Auto)
	require.False(t, res.Passed)
	require.Equal(t, acceptance.StatusSubmitted, acc.Status)

	pending, err := f.svc.PendingReviews(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestSubmitProofLikeRT(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.liveCampaign(t, "like_rt", 5)
	slot := f.acceptedSlot(t, c, 1)

	// Repost without the like is not enough.
	f.api.reposts[targetPostID] = []string{"u1"}
	_, res, err := f.svc.SubmitProof(ctx, slot.AcceptanceID, proofURL("777"))
	require.NoError(t, err)
	require.True(t, res.Auto)
	require.False(t, res.Passed)

	f.api.likes[targetPostID] = []string{"u1"}
	acc, res, err := f.svc.SubmitProof(ctx, slot.AcceptanceID, proofURL("777"))
	require.NoError(t, err)
	require.True(t, res.Passed)
	require.Equal(t, acceptance.StatusVerified, acc.Status)
}

func TestSubmitProofQuoteTweet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.liveCampaign(t, "quote_tweet", 3)
	slot := f.acceptedSlot(t, c, 1)

	f.api.posts["888"] = &xapi.Post{ID: "888", AuthorID: "u1", QuotedID: "999"}
	_, res, err := f.svc.SubmitProof(ctx, slot.AcceptanceID, proofURL("888"))
	require.NoError(t, err)
	require.False(t, res.Passed)

	f.api.posts["888"].QuotedID = targetPostID
	_, res, err = f.svc.SubmitProof(ctx, slot.AcceptanceID, proofURL("888"))
	require.NoError(t, err)
	require.True(t, res.Passed)
}

func TestSubmitProofAuthoredPost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.liveCampaign(t, "original_post", 3)
	slot := f.acceptedSlot(t, c, 1)

	f.api.posts["555"] = &xapi.Post{ID: "555", AuthorID: "someone-else"}
	_, res, err := f.svc.SubmitProof(ctx, slot.AcceptanceID, proofURL("555"))
	require.NoError(t, err)
	require.True(t, res.Auto)
	require.False(t, res.Passed)

	f.api.posts["555"].AuthorID = "u1"
	_, res, err = f.svc.SubmitProof(ctx, slot.AcceptanceID, proofURL("555"))
	require.NoError(t, err)
	require.True(t, res.Passed)
}

func TestSubmitProofUnconfiguredAPI(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.liveCampaign(t, "retweet", 5)
	slot := f.acceptedSlot(t, c, 1)

	f.api.unconfigured = true

	acc, res, err := f.svc.SubmitProof(ctx, slot.AcceptanceID, proofURL("777"))
	require.NoError(t, err)
	require.False(t, res.Auto)
	require.False(t, res.Passed)
	require.Equal(t, acceptance.StatusSubmitted, acc.Status)

	pending, err := f.svc.PendingReviews(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestSubmitProofAPIDownDegradesToManual(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.liveCampaign(t, "retweet", 5)
	slot := f.acceptedSlot(t, c, 1)

	f.api.err = fmt.Errorf("boom")

	acc, res, err := f.svc.SubmitProof(ctx, slot.AcceptanceID, proofURL("777"))
	require.NoError(t, err)
	require.False(t, res.Auto)
	require.Equal(t, acceptance.StatusSubmitted, acc.Status)
}

func TestSubmitProofBadURL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.liveCampaign(t, "retweet", 5)
	slot := f.acceptedSlot(t, c, 1)

	_, _, err := f.svc.SubmitProof(ctx, slot.AcceptanceID, "https://example.com/nope")
	require.True(t, errutil.HasStatus(err, errutil.StatusValidationFailed))
}

func TestSubmitProofWrongState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.liveCampaign(t, "retweet", 5)
	slot := f.acceptedSlot(t, c, 1)

	f.api.reposts[targetPostID] = []string{"u1"}
	_, _, err := f.svc.SubmitProof(ctx, slot.AcceptanceID, proofURL("777"))
	require.NoError(t, err)

	// Already verified; no more submissions.
	_, _, err = f.svc.SubmitProof(ctx, slot.AcceptanceID, proofURL("778"))
	require.True(t, errutil.HasStatus(err, errutil.StatusFailedPrecondition))
}

func TestManualReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.liveCampaign(t, "retweet", 5)
	slot := f.acceptedSlot(t, c, 1)

	// Straight from accepted, nothing to review yet.
	_, err := f.svc.ManuallyVerify(ctx, slot.AcceptanceID)
	require.True(t, errutil.HasStatus(err, errutil.StatusFailedPrecondition))

	f.api.unconfigured = true
	_, _, err = f.svc.SubmitProof(ctx, slot.AcceptanceID, proofURL("777"))
	require.NoError(t, err)

	acc, err := f.svc.ManuallyVerify(ctx, slot.AcceptanceID)
	require.NoError(t, err)
	require.Equal(t, acceptance.StatusVerified, acc.Status)

	// No longer submitted; neither path applies.
	_, err = f.svc.ManuallyVerify(ctx, slot.AcceptanceID)
	require.True(t, errutil.HasStatus(err, errutil.StatusFailedPrecondition))
	_, err = f.svc.ManuallyReject(ctx, slot.AcceptanceID)
	require.True(t, errutil.HasStatus(err, errutil.StatusFailedPrecondition))
}

func TestManualReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.liveCampaign(t, "retweet", 5)
	slot := f.acceptedSlot(t, c, 1)

	f.api.unconfigured = true
	_, _, err := f.svc.SubmitProof(ctx, slot.AcceptanceID, proofURL("777"))
	require.NoError(t, err)

	acc, err := f.svc.ManuallyReject(ctx, slot.AcceptanceID)
	require.NoError(t, err)
	require.Equal(t, acceptance.StatusRejected, acc.Status)
}

func TestCompletionWatcher(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.liveCampaign(t, "retweet", 5)
	slots := make([]*acceptance.Acceptance, 5)
	for i := range slots {
		slots[i] = f.acceptedSlot(t, c, i+1)
		f.api.reposts[targetPostID] = append(f.api.reposts[targetPostID], fmt.Sprintf("u%d", i+1))
	}

	for i, slot := range slots[:4] {
		_, res, err := f.svc.SubmitProof(ctx, slot.AcceptanceID, proofURL(fmt.Sprintf("70%d", i)))
		require.NoError(t, err)
		require.True(t, res.Passed)

		got, err := f.campaigns.Get(ctx, c.CampaignID)
		require.NoError(t, err)
		require.NotEqual(t, campaign.StatusCompleted, got.Status)
	}

	// The last verification tips the campaign over.
	_, res, err := f.svc.SubmitProof(ctx, slots[4].AcceptanceID, proofURL("705"))
	require.NoError(t, err)
	require.True(t, res.Passed)

	got, err := f.campaigns.Get(ctx, c.CampaignID)
	require.NoError(t, err)
	require.Equal(t, campaign.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestRejectedSlotBlocksCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.liveCampaign(t, "retweet", 5)
	slots := make([]*acceptance.Acceptance, 5)
	for i := range slots {
		slots[i] = f.acceptedSlot(t, c, i+1)
	}
	f.api.reposts[targetPostID] = []string{"u1", "u2", "u3", "u4"}

	// One submission gets rejected by an admin.
	f.api.unconfigured = true
	_, _, err := f.svc.SubmitProof(ctx, slots[4].AcceptanceID, proofURL("709"))
	require.NoError(t, err)
	_, err = f.svc.ManuallyReject(ctx, slots[4].AcceptanceID)
	require.NoError(t, err)
	f.api.unconfigured = false

	for i, slot := range slots[:4] {
		_, res, err := f.svc.SubmitProof(ctx, slot.AcceptanceID, proofURL(fmt.Sprintf("70%d", i)))
		require.NoError(t, err)
		require.True(t, res.Passed)
	}

	// Four verified out of five slots: the campaign stays open.
	got, err := f.campaigns.Get(ctx, c.CampaignID)
	require.NoError(t, err)
	require.Equal(t, campaign.StatusFilled, got.Status)
}
