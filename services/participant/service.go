package participant

import (
	"context"
	"time"

	"kolmarket/pkg/errutil"
	"kolmarket/pkg/repository"
	"kolmarket/pkg/sequence"
	"kolmarket/pkg/xapi"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var Module = fx.Module("participant",
	fx.Provide(NewRedisCodeStore),
	fx.Provide(NewService),
	fx.Invoke(Migrate),
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Customer{}, &KOL{})
}

// codeTTL bounds how long a handle-verification code stays claimable.
const codeTTL = 15 * time.Minute

// CodeStore holds pending handle-verification codes. The production
// implementation sits on redis; tests swap in a map.
type CodeStore interface {
	Put(ctx context.Context, chatID int64, code string, ttl time.Duration) error
	Get(ctx context.Context, chatID int64) (string, error)
	Delete(ctx context.Context, chatID int64) error
}

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	seq  sequence.Generator
	api  xapi.Client

	codes CodeStore

	customers repository.Repository[Customer]
	kols      repository.Repository[KOL]
}

type ServiceParams struct {
	fx.In

	DB    *gorm.DB
	Node  *snowflake.Node
	Seq   sequence.Generator
	API   xapi.Client
	Codes CodeStore
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:        p.DB,
		node:      p.Node,
		seq:       p.Seq,
		api:       p.API,
		codes:     p.Codes,
		customers: repository.ProvideStore[Customer](p.DB),
		kols:      repository.ProvideStore[KOL](p.DB),
	}
}

type RegisterCustomerInput struct {
	ChatID          int64  `json:"chat_id"`
	ChatHandle      string `json:"chat_handle"`
	Name            string `json:"name"`
	ProjectXAccount string `json:"project_x_account"`
	WalletAddress   string `json:"wallet_address"`
}

// RegisterCustomer creates or refreshes a customer keyed by chat identity.
// Re-registration overwrites profile fields; nothing is ever deleted.
func (s *Service) RegisterCustomer(ctx context.Context, in RegisterCustomerInput) (*Customer, error) {
	if in.ChatID == 0 || in.Name == "" {
		return nil, errutil.ValidationFailed("chat_id and name are required")
	}

	c := Customer{
		CustomerID:      s.node.Generate().String(),
		ChatID:          in.ChatID,
		ChatHandle:      in.ChatHandle,
		Name:            in.Name,
		ProjectXAccount: in.ProjectXAccount,
		WalletAddress:   in.WalletAddress,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"chat_handle", "name", "project_x_account", "wallet_address", "updated_at"}),
	}).Create(&c).Error
	if err != nil {
		return nil, errutil.Internal("failed to register customer", errutil.WithErr(err))
	}

	zap.L().Info("customer registered", zap.Int64("chat_id", in.ChatID))
	return s.RequireCustomer(ctx, in.ChatID)
}

type RegisterKOLInput struct {
	ChatID        int64  `json:"chat_id"`
	ChatHandle    string `json:"chat_handle"`
	Name          string `json:"name"`
	XAccount      string `json:"x_account"`
	WalletAddress string `json:"wallet_address"`
}

// RegisterKOL creates or refreshes a KOL keyed by chat identity. Verified
// social fields survive re-registration; they only change through the
// handle-verification flow.
func (s *Service) RegisterKOL(ctx context.Context, in RegisterKOLInput) (*KOL, error) {
	if in.ChatID == 0 || in.Name == "" {
		return nil, errutil.ValidationFailed("chat_id and name are required")
	}

	k := KOL{
		KOLID:         s.node.Generate().String(),
		ChatID:        in.ChatID,
		ChatHandle:    in.ChatHandle,
		Name:          in.Name,
		XAccount:      in.XAccount,
		WalletAddress: in.WalletAddress,
		IsActive:      true,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"chat_handle", "name", "x_account", "wallet_address", "updated_at"}),
	}).Create(&k).Error
	if err != nil {
		return nil, errutil.Internal("failed to register kol", errutil.WithErr(err))
	}

	zap.L().Info("kol registered", zap.Int64("chat_id", in.ChatID))
	return s.RequireKOL(ctx, in.ChatID)
}

// RequireCustomer is the capability check run at the top of customer-side
// operations. Missing registration is a Forbidden result, not a panic.
func (s *Service) RequireCustomer(ctx context.Context, chatID int64) (*Customer, error) {
	c, err := s.customers.FindOne(ctx, &Customer{ChatID: chatID})
	if err != nil {
		return nil, errutil.Internal("failed to load customer", errutil.WithErr(err))
	}
	if c == nil {
		return nil, errutil.Forbidden("not registered as a customer")
	}
	return c, nil
}

// RequireKOL is the capability check for worker-side operations.
func (s *Service) RequireKOL(ctx context.Context, chatID int64) (*KOL, error) {
	k, err := s.kols.FindOne(ctx, &KOL{ChatID: chatID})
	if err != nil {
		return nil, errutil.Internal("failed to load kol", errutil.WithErr(err))
	}
	if k == nil {
		return nil, errutil.Forbidden("not registered as a kol")
	}
	return k, nil
}

// StartHandleVerification issues a one-time code the KOL must post from the
// account they claim to own.
func (s *Service) StartHandleVerification(ctx context.Context, chatID int64) (string, error) {
	k, err := s.RequireKOL(ctx, chatID)
	if err != nil {
		return "", err
	}
	if k.XAccount == "" {
		return "", errutil.FailedPrecondition("no social account on file")
	}

	code, err := s.seq.VerificationCode(ctx)
	if err != nil {
		return "", errutil.Internal("failed to generate verification code", errutil.WithErr(err))
	}

	if err := s.codes.Put(ctx, chatID, code, codeTTL); err != nil {
		return "", errutil.Internal("failed to store verification code", errutil.WithErr(err))
	}

	return code, nil
}

// ConfirmHandleVerification checks the pending code appears in the claimed
// account's recent posts and, on success, snapshots the external identity
// onto the KOL row.
func (s *Service) ConfirmHandleVerification(ctx context.Context, chatID int64) (*KOL, error) {
	k, err := s.RequireKOL(ctx, chatID)
	if err != nil {
		return nil, err
	}

	code, err := s.codes.Get(ctx, chatID)
	if err != nil {
		return nil, errutil.Internal("failed to load verification code", errutil.WithErr(err))
	}
	if code == "" {
		return nil, errutil.FailedPrecondition("no pending verification, start again")
	}

	if !s.api.Configured() {
		return nil, errutil.FailedPrecondition("verification api not configured, ask an admin to verify manually")
	}

	user, err := s.api.LookupUser(ctx, k.XAccount)
	if err != nil {
		return nil, errutil.Internal("verification api unavailable", errutil.WithErr(err))
	}
	if user == nil {
		return nil, errutil.FailedPrecondition("social account not found")
	}

	found, err := s.api.RecentPostsContain(ctx, user.ID, code)
	if err != nil {
		return nil, errutil.Internal("verification api unavailable", errutil.WithErr(err))
	}
	if !found {
		return nil, errutil.FailedPrecondition("verification code not found in recent posts")
	}

	fields := map[string]any{
		"x_user_id":      user.ID,
		"follower_count": user.FollowerCount,
		"is_verified":    true,
	}
	if err := s.kols.Update(ctx, k.KOLID, fields); err != nil {
		return nil, errutil.Internal("failed to save verification", errutil.WithErr(err))
	}

	_ = s.codes.Delete(ctx, chatID)

	zap.L().Info("kol handle verified",
		zap.Int64("chat_id", chatID),
		zap.String("x_user_id", user.ID),
	)
	return s.RequireKOL(ctx, chatID)
}
