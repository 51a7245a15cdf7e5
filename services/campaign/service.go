package campaign

import (
	"context"
	"strings"
	"time"

	"kolmarket/pkg/db/option"
	"kolmarket/pkg/errutil"
	"kolmarket/pkg/repository"
	"kolmarket/pkg/sequence"
	"kolmarket/services/notify"
	"kolmarket/services/tier"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("campaign",
	fx.Provide(NewService, NewScheduler),
	fx.Invoke(Migrate, StartScheduler),
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Campaign{})
}

type Service struct {
	db        *gorm.DB
	node      *snowflake.Node
	seq       sequence.Generator
	tiers     *tier.Service
	events    *notify.Events
	campaigns repository.Repository[Campaign]
}

type ServiceParams struct {
	fx.In

	DB     *gorm.DB
	Node   *snowflake.Node
	Seq    sequence.Generator
	Tiers  *tier.Service
	Events *notify.Events
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:        p.DB,
		node:      p.Node,
		seq:       p.Seq,
		tiers:     p.Tiers,
		events:    p.Events,
		campaigns: repository.ProvideStore[Campaign](p.DB),
	}
}

type CreateInput struct {
	CustomerID    string    `json:"customer_id"`
	ProjectName   string    `json:"project_name"`
	TierKey       string    `json:"tier_key"`
	TargetPostURL string    `json:"target_post_url"`
	Brief         string    `json:"brief"`
	SlotCount     int       `json:"slot_count"`
	Deadline      time.Time `json:"deadline"`
}

// Create validates the order against the tier catalogue, freezes the quote
// and persists the campaign as pending_payment.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Campaign, error) {
	if strings.TrimSpace(in.ProjectName) == "" {
		return nil, errutil.ValidationFailed("project_name is required")
	}
	if in.Deadline.Before(time.Now()) {
		return nil, errutil.ValidationFailed("deadline must be in the future")
	}

	t, err := s.tiers.Get(ctx, in.TierKey)
	if err != nil {
		return nil, err
	}
	if !t.InBounds(in.SlotCount) {
		return nil, errutil.ValidationFailed("slot count is out of range for this service type",
			errutil.WithDetails(errutil.Detail{Field: "slot_count", Message: "allowed range depends on the service type"}))
	}
	if t.RequiresTarget && strings.TrimSpace(in.TargetPostURL) == "" {
		return nil, errutil.ValidationFailed("target_post_url is required for this service type")
	}
	if t.RequiresBrief && strings.TrimSpace(in.Brief) == "" {
		return nil, errutil.ValidationFailed("brief is required for this service type")
	}

	quote, err := s.tiers.Price(ctx, in.TierKey, in.SlotCount)
	if err != nil {
		return nil, err
	}

	code, err := s.seq.NextCampaignCode(ctx)
	if err != nil {
		return nil, errutil.Internal("failed to allocate campaign code", errutil.WithErr(err))
	}

	c := &Campaign{
		CampaignID:    s.node.Generate().String(),
		Code:          code,
		CustomerID:    in.CustomerID,
		ProjectName:   in.ProjectName,
		TierKey:       in.TierKey,
		TargetPostURL: in.TargetPostURL,
		Brief:         in.Brief,
		SlotCount:     in.SlotCount,
		UnitRate:      quote.UnitRate,
		PlatformFee:   quote.PlatformFee,
		TotalCost:     quote.TotalCost,
		Status:        StatusPendingPayment,
		Deadline:      in.Deadline,
	}
	if err := s.campaigns.Create(ctx, c); err != nil {
		return nil, errutil.Internal("failed to create campaign", errutil.WithErr(err))
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, campaignID string) (*Campaign, error) {
	c, err := s.campaigns.FindOne(ctx, &Campaign{CampaignID: campaignID})
	if err != nil {
		return nil, errutil.Internal("failed to load campaign", errutil.WithErr(err))
	}
	if c == nil {
		return nil, errutil.NotFound("campaign not found")
	}
	return c, nil
}

func (s *Service) GetByCode(ctx context.Context, code string) (*Campaign, error) {
	c, err := s.campaigns.FindOne(ctx, &Campaign{Code: code})
	if err != nil {
		return nil, errutil.Internal("failed to load campaign", errutil.WithErr(err))
	}
	if c == nil {
		return nil, errutil.NotFound("campaign not found")
	}
	return c, nil
}

type ListInput struct {
	CustomerID string
	Status     Status
}

func (s *Service) List(ctx context.Context, in ListInput) ([]*Campaign, error) {
	return s.campaigns.Find(ctx, &Campaign{
		CustomerID: in.CustomerID,
		Status:     in.Status,
	}, option.WithOrder("created_at DESC"))
}

// OpenCampaigns lists campaigns a KOL can still claim a slot on.
func (s *Service) OpenCampaigns(ctx context.Context) ([]*Campaign, error) {
	return s.campaigns.Find(ctx, &Campaign{Status: StatusLive},
		option.WithOrder("created_at DESC"))
}

// Activate moves a paid campaign to live. Re-activating a live campaign is a
// no-op so payment callbacks can retry safely.
func (s *Service) Activate(ctx context.Context, campaignID string) (*Campaign, error) {
	c, err := s.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status == StatusLive {
		return c, nil
	}
	if c.Status != StatusPendingPayment {
		return nil, errutil.Conflict("campaign cannot be activated from its current status",
			errutil.WithDetails(errutil.Detail{Field: "status", Message: string(c.Status)}))
	}

	now := time.Now()
	res := s.db.WithContext(ctx).Model(&Campaign{}).
		Where("campaign_id = ? AND status = ?", campaignID, StatusPendingPayment).
		Updates(map[string]any{"status": StatusLive, "activated_at": now})
	if res.Error != nil {
		return nil, errutil.Internal("failed to activate campaign", errutil.WithErr(res.Error))
	}
	if res.RowsAffected == 0 {
		return nil, errutil.Conflict("campaign cannot be activated from its current status")
	}

	c.Status = StatusLive
	c.ActivatedAt = &now
	s.events.CampaignActivated(ctx, s.eventFor(c))
	return c, nil
}

// Cancel withdraws a campaign that has not filled yet.
func (s *Service) Cancel(ctx context.Context, campaignID string) (*Campaign, error) {
	c, err := s.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusPendingPayment && c.Status != StatusLive {
		return nil, errutil.FailedPrecondition(
			"only pending or live campaigns can be cancelled",
			errutil.WithDetails(errutil.Detail{Field: "status", Message: string(c.Status)}))
	}

	now := time.Now()
	res := s.db.WithContext(ctx).Model(&Campaign{}).
		Where("campaign_id = ? AND status IN ?", campaignID, []Status{StatusPendingPayment, StatusLive}).
		Updates(map[string]any{"status": StatusCancelled, "cancelled_at": now})
	if res.Error != nil {
		return nil, errutil.Internal("failed to cancel campaign", errutil.WithErr(res.Error))
	}
	if res.RowsAffected == 0 {
		return nil, errutil.FailedPrecondition("only pending or live campaigns can be cancelled")
	}

	c.Status = StatusCancelled
	c.CancelledAt = &now
	s.events.CampaignCancelled(ctx, s.eventFor(c))
	return c, nil
}

// Complete marks a campaign done once every slot has a verified proof. The
// verification pipeline is the only caller.
func (s *Service) Complete(ctx context.Context, campaignID string) (*Campaign, error) {
	c, err := s.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !c.Status.Accepting() {
		return nil, errutil.FailedPrecondition(
			"only live or filled campaigns can be completed")
	}

	now := time.Now()
	res := s.db.WithContext(ctx).Model(&Campaign{}).
		Where("campaign_id = ? AND status IN ?", campaignID, []Status{StatusLive, StatusFilled}).
		Updates(map[string]any{"status": StatusCompleted, "completed_at": now})
	if res.Error != nil {
		return nil, errutil.Internal("failed to complete campaign", errutil.WithErr(res.Error))
	}
	if res.RowsAffected == 0 {
		return nil, errutil.FailedPrecondition("only live or filled campaigns can be completed")
	}

	c.Status = StatusCompleted
	c.CompletedAt = &now
	s.events.CampaignCompleted(ctx, s.eventFor(c))
	return c, nil
}

// SetAnnouncementRef records the external channel post id announcing the
// campaign, so later count changes can edit the same post.
func (s *Service) SetAnnouncementRef(ctx context.Context, campaignID, ref string) error {
	if _, err := s.Get(ctx, campaignID); err != nil {
		return err
	}
	if err := s.campaigns.Update(ctx, campaignID, map[string]any{"announcement_ref": ref}); err != nil {
		return errutil.Internal("failed to store announcement ref", errutil.WithErr(err))
	}
	return nil
}

// ExpireSweep transitions live and filled campaigns past their deadline to
// expired. Returns how many were swept; a second sweep finds nothing.
func (s *Service) ExpireSweep(ctx context.Context) (int, error) {
	now := time.Now()

	var stale []*Campaign
	err := s.db.WithContext(ctx).
		Where("status IN ? AND deadline < ?", []Status{StatusLive, StatusFilled}, now).
		Find(&stale).Error
	if err != nil {
		return 0, errutil.Internal("failed to scan for expired campaigns", errutil.WithErr(err))
	}
	if len(stale) == 0 {
		return 0, nil
	}

	swept := 0
	for _, c := range stale {
		res := s.db.WithContext(ctx).Model(&Campaign{}).
			Where("campaign_id = ? AND status IN ?", c.CampaignID, []Status{StatusLive, StatusFilled}).
			Update("status", StatusExpired)
		if res.Error != nil {
			zap.L().Error("failed to expire campaign",
				zap.String("campaign_id", c.CampaignID),
				zap.Error(res.Error),
			)
			continue
		}
		if res.RowsAffected == 0 {
			continue
		}
		swept++
		c.Status = StatusExpired
		s.events.CampaignExpired(ctx, s.eventFor(c))
	}
	return swept, nil
}

func (s *Service) eventFor(c *Campaign) notify.CampaignEvent {
	return notify.CampaignEvent{
		CampaignID:    c.CampaignID,
		ProjectName:   c.ProjectName,
		Status:        string(c.Status),
		AcceptedCount: c.AcceptedCount,
		SlotCount:     c.SlotCount,
	}
}
