// Package verification checks submitted proof posts against the external
// content API and drives campaigns to completion once every slot holds a
// verified proof.
package verification

import (
	"context"
	"encoding/json"
	"time"

	"kolmarket/pkg/errutil"
	"kolmarket/pkg/repository"
	"kolmarket/pkg/xapi"
	"kolmarket/services/acceptance"
	"kolmarket/services/campaign"
	"kolmarket/services/participant"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("verification",
	fx.Provide(NewService),
)

type Service struct {
	db          *gorm.DB
	api         xapi.Client
	campaigns   *campaign.Service
	acceptances *acceptance.Service
	kols        repository.Repository[participant.KOL]
}

type ServiceParams struct {
	fx.In

	DB          *gorm.DB
	API         xapi.Client
	Campaigns   *campaign.Service
	Acceptances *acceptance.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:          p.DB,
		api:         p.API,
		campaigns:   p.Campaigns,
		acceptances: p.Acceptances,
		kols:        repository.ProvideStore[participant.KOL](p.DB),
	}
}

// Result is the persisted outcome of one verification attempt.
type Result struct {
	Auto      bool      `json:"auto"`
	Passed    bool      `json:"passed"`
	Reason    string    `json:"reason"`
	CheckedAt time.Time `json:"checked_at"`
}

// SubmitProof records the KOL's proof post and attempts automatic
// verification. The submission always lands in submitted state first; a
// positive check promotes it to verified, anything else waits for an admin.
// No database lock is held across the API round-trip.
func (s *Service) SubmitProof(ctx context.Context, acceptanceID, postURL string) (*acceptance.Acceptance, *Result, error) {
	acc, err := s.acceptances.Get(ctx, acceptanceID)
	if err != nil {
		return nil, nil, err
	}
	if acc.Status != acceptance.StatusAccepted && acc.Status != acceptance.StatusSubmitted {
		return nil, nil, errutil.FailedPrecondition("proof can only be submitted for an open slot")
	}

	postID := xapi.ExtractPostID(postURL)
	if postID == "" {
		return nil, nil, errutil.ValidationFailed("submission url is not a recognizable post link")
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Model(&acceptance.Acceptance{}).
		Where("acceptance_id = ?", acceptanceID).
		Updates(map[string]any{
			"status":             acceptance.StatusSubmitted,
			"submission_url":     postURL,
			"submission_post_id": postID,
			"submitted_at":       now,
		}).Error
	if err != nil {
		return nil, nil, errutil.Internal("failed to record submission", errutil.WithErr(err))
	}
	acc.Status = acceptance.StatusSubmitted
	acc.SubmissionURL = postURL
	acc.SubmissionPostID = postID
	acc.SubmittedAt = &now

	c, err := s.campaigns.Get(ctx, acc.CampaignID)
	if err != nil {
		return nil, nil, err
	}
	kol, err := s.kols.FindOne(ctx, &participant.KOL{KOLID: acc.KOLID})
	if err != nil {
		return nil, nil, errutil.Internal("failed to load kol", errutil.WithErr(err))
	}

	result := s.check(ctx, c, kol, postID)
	if err := s.storeResult(ctx, acceptanceID, result); err != nil {
		return nil, nil, err
	}
	acc.VerificationResult, _ = json.Marshal(result)

	if result.Auto && result.Passed {
		if err := s.promote(ctx, acc); err != nil {
			return nil, nil, err
		}
	}
	return acc, result, nil
}

// check runs the tier-keyed proof check. Any API failure degrades to a
// non-auto result queued for manual review instead of surfacing an error.
func (s *Service) check(ctx context.Context, c *campaign.Campaign, kol *participant.KOL, postID string) *Result {
	res := &Result{CheckedAt: time.Now()}

	if !s.api.Configured() {
		res.Reason = "content api not configured, queued for manual review"
		return res
	}
	if kol == nil || kol.XUserID == "" {
		res.Reason = "kol has no verified social account, queued for manual review"
		return res
	}

	passed, reason, err := s.runCheck(ctx, c, kol, postID)
	if err != nil {
		zap.L().Warn("verification check failed, falling back to manual review",
			zap.String("campaign_id", c.CampaignID),
			zap.String("tier", c.TierKey),
			zap.Error(err),
		)
		res.Reason = "content api unavailable, queued for manual review"
		return res
	}

	res.Auto = true
	res.Passed = passed
	res.Reason = reason
	return res
}

func (s *Service) runCheck(ctx context.Context, c *campaign.Campaign, kol *participant.KOL, postID string) (bool, string, error) {
	switch c.TierKey {
	case "retweet":
		return s.checkRepost(ctx, c, kol, false)
	case "like_rt":
		return s.checkRepost(ctx, c, kol, true)
	case "quote_tweet":
		return s.checkQuote(ctx, c, kol, postID)
	default:
		return s.checkAuthored(ctx, kol, postID)
	}
}

func (s *Service) checkRepost(ctx context.Context, c *campaign.Campaign, kol *participant.KOL, needLike bool) (bool, string, error) {
	targetID := xapi.ExtractPostID(c.TargetPostURL)
	if targetID == "" {
		return false, "campaign target post url is not parseable", nil
	}

	reposters, err := s.api.RepostActors(ctx, targetID)
	if err != nil {
		return false, "", err
	}
	if !contains(reposters, kol.XUserID) {
		return false, "repost of the target post not found", nil
	}
	if !needLike {
		return true, "repost confirmed", nil
	}

	likers, err := s.api.LikeActors(ctx, targetID)
	if err != nil {
		return false, "", err
	}
	if !contains(likers, kol.XUserID) {
		return false, "like on the target post not found", nil
	}
	return true, "repost and like confirmed", nil
}

func (s *Service) checkQuote(ctx context.Context, c *campaign.Campaign, kol *participant.KOL, postID string) (bool, string, error) {
	targetID := xapi.ExtractPostID(c.TargetPostURL)
	if targetID == "" {
		return false, "campaign target post url is not parseable", nil
	}

	post, err := s.api.GetPost(ctx, postID)
	if err != nil {
		return false, "", err
	}
	if post == nil {
		return false, "submitted post not found", nil
	}
	if post.AuthorID != kol.XUserID {
		return false, "submitted post was not authored by the registered account", nil
	}
	if post.QuotedID != targetID {
		return false, "submitted post does not quote the target post", nil
	}
	return true, "quote post confirmed", nil
}

func (s *Service) checkAuthored(ctx context.Context, kol *participant.KOL, postID string) (bool, string, error) {
	post, err := s.api.GetPost(ctx, postID)
	if err != nil {
		return false, "", err
	}
	if post == nil {
		return false, "submitted post not found", nil
	}
	if post.AuthorID != kol.XUserID {
		return false, "submitted post was not authored by the registered account", nil
	}
	return true, "authored post confirmed", nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (s *Service) storeResult(ctx context.Context, acceptanceID string, res *Result) error {
	body, err := json.Marshal(res)
	if err != nil {
		return errutil.Internal("failed to encode verification result", errutil.WithErr(err))
	}
	err = s.db.WithContext(ctx).Model(&acceptance.Acceptance{}).
		Where("acceptance_id = ?", acceptanceID).
		Update("verification_result", body).Error
	if err != nil {
		return errutil.Internal("failed to store verification result", errutil.WithErr(err))
	}
	return nil
}

// promote flips a submitted slot to verified and runs the completion watcher.
func (s *Service) promote(ctx context.Context, acc *acceptance.Acceptance) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&acceptance.Acceptance{}).
		Where("acceptance_id = ? AND status = ?", acc.AcceptanceID, acceptance.StatusSubmitted).
		Updates(map[string]any{"status": acceptance.StatusVerified, "verified_at": now})
	if res.Error != nil {
		return errutil.Internal("failed to mark slot verified", errutil.WithErr(res.Error))
	}
	if res.RowsAffected == 0 {
		return errutil.FailedPrecondition("slot is no longer awaiting verification")
	}
	acc.Status = acceptance.StatusVerified
	acc.VerifiedAt = &now

	s.onVerified(ctx, acc.CampaignID)
	return nil
}

// ManuallyVerify lets an admin approve a submission the automatic check could
// not settle. Legal only from submitted.
func (s *Service) ManuallyVerify(ctx context.Context, acceptanceID string) (*acceptance.Acceptance, error) {
	acc, err := s.acceptances.Get(ctx, acceptanceID)
	if err != nil {
		return nil, err
	}
	if acc.Status != acceptance.StatusSubmitted {
		return nil, errutil.FailedPrecondition("only submitted slots can be verified")
	}

	if err := s.storeResult(ctx, acceptanceID, &Result{
		Passed:    true,
		Reason:    "manually verified",
		CheckedAt: time.Now(),
	}); err != nil {
		return nil, err
	}
	if err := s.promote(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// ManuallyReject marks a submitted proof as rejected. The slot stays counted
// against the campaign, so a rejected slot keeps the campaign from completing
// until an admin resolves it.
func (s *Service) ManuallyReject(ctx context.Context, acceptanceID string) (*acceptance.Acceptance, error) {
	acc, err := s.acceptances.Get(ctx, acceptanceID)
	if err != nil {
		return nil, err
	}
	if acc.Status != acceptance.StatusSubmitted {
		return nil, errutil.FailedPrecondition("only submitted slots can be rejected")
	}

	if err := s.storeResult(ctx, acceptanceID, &Result{
		Reason:    "manually rejected",
		CheckedAt: time.Now(),
	}); err != nil {
		return nil, err
	}

	res := s.db.WithContext(ctx).Model(&acceptance.Acceptance{}).
		Where("acceptance_id = ? AND status = ?", acceptanceID, acceptance.StatusSubmitted).
		Update("status", acceptance.StatusRejected)
	if res.Error != nil {
		return nil, errutil.Internal("failed to reject slot", errutil.WithErr(res.Error))
	}
	if res.RowsAffected == 0 {
		return nil, errutil.FailedPrecondition("only submitted slots can be rejected")
	}
	acc.Status = acceptance.StatusRejected
	return acc, nil
}

// PendingReviews lists submissions waiting on an admin decision.
func (s *Service) PendingReviews(ctx context.Context) ([]*acceptance.Acceptance, error) {
	var out []*acceptance.Acceptance
	err := s.db.WithContext(ctx).
		Where("status = ?", acceptance.StatusSubmitted).
		Order("submitted_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, errutil.Internal("failed to list pending reviews", errutil.WithErr(err))
	}
	return out, nil
}

// onVerified is the completion watcher. The verified count is measured
// against slot_count, so a rejected slot blocks completion until it is
// resolved.
func (s *Service) onVerified(ctx context.Context, campaignID string) {
	c, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		zap.L().Error("completion watcher failed to load campaign",
			zap.String("campaign_id", campaignID),
			zap.Error(err),
		)
		return
	}
	if !c.Status.Accepting() {
		return
	}

	var verified int64
	err = s.db.WithContext(ctx).Model(&acceptance.Acceptance{}).
		Where("campaign_id = ? AND status = ?", campaignID, acceptance.StatusVerified).
		Count(&verified).Error
	if err != nil {
		zap.L().Error("completion watcher failed to count verified slots",
			zap.String("campaign_id", campaignID),
			zap.Error(err),
		)
		return
	}
	if verified < int64(c.SlotCount) {
		return
	}

	if _, err := s.campaigns.Complete(ctx, campaignID); err != nil {
		zap.L().Error("completion watcher failed to complete campaign",
			zap.String("campaign_id", campaignID),
			zap.Error(err),
		)
	}
}
