package tier

import (
	"context"

	"kolmarket/pkg/config"
	"kolmarket/pkg/db/option"
	"kolmarket/pkg/errutil"
	"kolmarket/pkg/repository"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var Module = fx.Module("tier",
	fx.Provide(NewService),
	fx.Invoke(Migrate, Seed),
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Tier{})
}

type Service struct {
	db    *gorm.DB
	tiers repository.Repository[Tier]

	feePercent int
}

type ServiceParams struct {
	fx.In

	DB  *gorm.DB
	Cfg *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:         p.DB,
		tiers:      repository.ProvideStore[Tier](p.DB),
		feePercent: p.Cfg.Marketplace.PlatformFeePercent,
	}
}

// NewServiceWithFee builds a service without config wiring. Tests use it.
func NewServiceWithFee(db *gorm.DB, feePercent int) *Service {
	return &Service{
		db:         db,
		tiers:      repository.ProvideStore[Tier](db),
		feePercent: feePercent,
	}
}

// Seed inserts the default catalogue, leaving existing rows untouched.
func Seed(db *gorm.DB) error {
	defaults := make([]Tier, len(Defaults))
	copy(defaults, Defaults)

	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&defaults).Error
}

// Get returns the tier regardless of its active flag, or NotFound.
func (s *Service) Get(ctx context.Context, key string) (*Tier, error) {
	t, err := s.tiers.FindOne(ctx, &Tier{Key: key})
	if err != nil {
		return nil, errutil.Internal("failed to load tier", errutil.WithErr(err))
	}
	if t == nil {
		return nil, errutil.NotFound("unknown service tier")
	}
	return t, nil
}

// List returns active tiers ordered by rate.
func (s *Service) List(ctx context.Context) ([]*Tier, error) {
	tiers, err := s.tiers.Find(ctx, &Tier{IsActive: true}, option.WithOrder("unit_rate asc"))
	if err != nil {
		return nil, errutil.Internal("failed to list tiers", errutil.WithErr(err))
	}
	return tiers, nil
}

// Price quotes a campaign of slotCount slots on the given tier. Pure with
// respect to campaign state; fails with a validation error for unknown or
// inactive tiers. All arithmetic is integer minor units.
func (s *Service) Price(ctx context.Context, key string, slotCount int) (*Quote, error) {
	if slotCount <= 0 {
		return nil, errutil.ValidationFailed("slot count must be positive")
	}

	t, err := s.tiers.FindOne(ctx, &Tier{Key: key})
	if err != nil {
		return nil, errutil.Internal("failed to load tier", errutil.WithErr(err))
	}
	if t == nil || !t.IsActive {
		return nil, errutil.BadRequest("unknown or inactive service tier")
	}

	subtotal := t.UnitRate * int64(slotCount)
	fee := subtotal * int64(s.feePercent) / 100

	return &Quote{
		UnitRate:    t.UnitRate,
		PlatformFee: fee,
		TotalCost:   subtotal + fee,
	}, nil
}

type UpdateInput struct {
	UnitRate *int64 `json:"unit_rate"`
	MinSlots *int   `json:"min_slots"`
	MaxSlots *int   `json:"max_slots"`
	IsActive *bool  `json:"is_active"`
}

// Update edits tier configuration in place. Existing campaigns keep their
// snapshotted pricing.
func (s *Service) Update(ctx context.Context, key string, in UpdateInput) (*Tier, error) {
	t, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if in.UnitRate != nil {
		if *in.UnitRate <= 0 {
			return nil, errutil.ValidationFailed("unit rate must be positive")
		}
		fields["unit_rate"] = *in.UnitRate
	}
	if in.MinSlots != nil {
		fields["min_slots"] = *in.MinSlots
	}
	if in.MaxSlots != nil {
		fields["max_slots"] = *in.MaxSlots
	}
	if in.IsActive != nil {
		fields["is_active"] = *in.IsActive
	}
	if len(fields) == 0 {
		return t, nil
	}

	if err := s.tiers.Update(ctx, key, fields); err != nil {
		return nil, errutil.Internal("failed to update tier", errutil.WithErr(err))
	}

	zap.L().Info("service tier updated", zap.String("key", key))
	return s.Get(ctx, key)
}
