package acceptance

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"kolmarket/pkg/db/option"
	"kolmarket/pkg/errutil"
	"kolmarket/pkg/repository"
	"kolmarket/services/campaign"
	"kolmarket/services/notify"
	"kolmarket/services/participant"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("acceptance",
	fx.Provide(NewService),
	fx.Invoke(Migrate),
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Acceptance{})
}

type Service struct {
	db          *gorm.DB
	node        *snowflake.Node
	events      *notify.Events
	acceptances repository.Repository[Acceptance]

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type ServiceParams struct {
	fx.In

	DB     *gorm.DB
	Node   *snowflake.Node
	Events *notify.Events
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:          p.DB,
		node:        p.Node,
		events:      p.Events,
		acceptances: repository.ProvideStore[Acceptance](p.DB),
		locks:       map[string]*sync.Mutex{},
	}
}

// campaignLock returns the in-process mutex serializing acceptances for one
// campaign. Cross-process serialization is the advisory lock's job.
func (s *Service) campaignLock(campaignID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[campaignID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[campaignID] = l
	}
	return l
}

func advisoryKey(campaignID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(campaignID))
	return int64(h.Sum64())
}

// AcceptResult is what the chat layer announces after a successful claim.
type AcceptResult struct {
	Acceptance    *Acceptance `json:"acceptance"`
	AcceptedCount int         `json:"accepted_count"`
	SlotCount     int         `json:"slot_count"`
	Filled        bool        `json:"filled"`
}

// Accept claims one slot for the KOL, first come first served. The campaign
// row is re-read inside the transaction so the count check and the insert see
// the same state; the unique index backstops the duplicate pre-check.
func (s *Service) Accept(ctx context.Context, campaignID string, kol *participant.KOL) (*AcceptResult, error) {
	existing, err := s.acceptances.FindOne(ctx, &Acceptance{CampaignID: campaignID, KOLID: kol.KOLID})
	if err != nil {
		return nil, errutil.Internal("failed to check existing acceptance", errutil.WithErr(err))
	}
	if existing != nil {
		return nil, errutil.Conflict("you already accepted a slot on this campaign")
	}

	lock := s.campaignLock(campaignID)
	lock.Lock()
	defer lock.Unlock()

	var (
		acc    *Acceptance
		count  int
		slots  int
		filled bool
		proj   string
	)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", advisoryKey(campaignID)).Error; err != nil {
				return err
			}
		}

		var c campaign.Campaign
		if err := tx.Where("campaign_id = ?", campaignID).First(&c).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errutil.NotFound("campaign not found")
			}
			return err
		}

		if !c.Status.Accepting() {
			return errutil.FailedPrecondition("campaign is not accepting slots")
		}
		if c.AcceptedCount >= c.SlotCount {
			return errutil.Conflict("campaign is full")
		}

		acc = &Acceptance{
			AcceptanceID: s.node.Generate().String(),
			CampaignID:   c.CampaignID,
			KOLID:        kol.KOLID,
			KOLChatID:    kol.ChatID,
			Status:       StatusAccepted,
			PayoutStatus: PayoutUnpaid,
		}
		if err := tx.Create(acc).Error; err != nil {
			if isDuplicateErr(err) {
				return errutil.Conflict("you already accepted a slot on this campaign")
			}
			return err
		}

		count = c.AcceptedCount + 1
		slots = c.SlotCount
		filled = count >= slots
		proj = c.ProjectName

		updates := map[string]any{"accepted_count": count}
		if filled {
			updates["status"] = campaign.StatusFilled
		}
		return tx.Model(&campaign.Campaign{}).
			Where("campaign_id = ?", c.CampaignID).
			Updates(updates).Error
	})
	if err != nil {
		var be errutil.BaseError
		if errors.As(err, &be) {
			return nil, err
		}
		return nil, errutil.Internal("failed to accept slot", errutil.WithErr(err))
	}

	s.events.SlotAccepted(ctx, notify.SlotAcceptedEvent{
		CampaignID:    campaignID,
		AcceptanceID:  acc.AcceptanceID,
		KOLChatID:     kol.ChatID,
		AcceptedCount: count,
		SlotCount:     slots,
		Filled:        filled,
	})
	if filled {
		s.events.CampaignFilled(ctx, notify.CampaignEvent{
			CampaignID:    campaignID,
			ProjectName:   proj,
			Status:        string(campaign.StatusFilled),
			AcceptedCount: count,
			SlotCount:     slots,
		})
	}

	return &AcceptResult{Acceptance: acc, AcceptedCount: count, SlotCount: slots, Filled: filled}, nil
}

func isDuplicateErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

func (s *Service) Get(ctx context.Context, acceptanceID string) (*Acceptance, error) {
	acc, err := s.acceptances.FindOne(ctx, &Acceptance{AcceptanceID: acceptanceID})
	if err != nil {
		return nil, errutil.Internal("failed to load acceptance", errutil.WithErr(err))
	}
	if acc == nil {
		return nil, errutil.NotFound("acceptance not found")
	}
	return acc, nil
}

func (s *Service) ListForCampaign(ctx context.Context, campaignID string) ([]*Acceptance, error) {
	return s.acceptances.Find(ctx, &Acceptance{CampaignID: campaignID},
		option.WithOrder("accepted_at ASC"))
}

func (s *Service) ListForKOL(ctx context.Context, kolID string) ([]*Acceptance, error) {
	return s.acceptances.Find(ctx, &Acceptance{KOLID: kolID},
		option.WithOrder("accepted_at DESC"))
}

// UnpaidVerified lists verified slots still owed a payout, oldest first.
func (s *Service) UnpaidVerified(ctx context.Context) ([]*Acceptance, error) {
	return s.acceptances.Find(ctx,
		&Acceptance{Status: StatusVerified, PayoutStatus: PayoutUnpaid},
		option.WithOrder("verified_at ASC"))
}

// MarkPaid settles one verified slot. The guarded update makes double payment
// impossible even with concurrent admins.
func (s *Service) MarkPaid(ctx context.Context, acceptanceID string) (*Acceptance, error) {
	acc, err := s.Get(ctx, acceptanceID)
	if err != nil {
		return nil, err
	}
	if acc.Status != StatusVerified {
		return nil, errutil.FailedPrecondition("only verified slots can be paid out")
	}
	if acc.PayoutStatus == PayoutPaid {
		return nil, errutil.Conflict("slot already paid out")
	}

	now := time.Now()
	res := s.db.WithContext(ctx).Model(&Acceptance{}).
		Where("acceptance_id = ? AND payout_status = ?", acceptanceID, PayoutUnpaid).
		Updates(map[string]any{"payout_status": PayoutPaid, "paid_at": now})
	if res.Error != nil {
		return nil, errutil.Internal("failed to mark payout", errutil.WithErr(res.Error))
	}
	if res.RowsAffected == 0 {
		return nil, errutil.Conflict("slot already paid out")
	}

	acc.PayoutStatus = PayoutPaid
	acc.PaidAt = &now

	var c campaign.Campaign
	var amount int64
	if err := s.db.WithContext(ctx).Where("campaign_id = ?", acc.CampaignID).First(&c).Error; err == nil {
		amount = c.UnitRate
	}
	s.events.PayoutPaid(ctx, notify.PayoutPaidEvent{
		AcceptanceID: acc.AcceptanceID,
		CampaignID:   acc.CampaignID,
		KOLChatID:    acc.KOLChatID,
		Amount:       amount,
	})
	return acc, nil
}
