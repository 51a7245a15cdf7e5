package acceptance

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusAccepted  Status = "accepted"
	StatusSubmitted Status = "submitted"
	StatusVerified  Status = "verified"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
)

type PayoutStatus string

const (
	PayoutUnpaid PayoutStatus = "unpaid"
	PayoutPaid   PayoutStatus = "paid"
)

// Acceptance is one claimed slot. The composite unique index keeps a KOL to a
// single slot per campaign even if two requests race past the pre-check.
type Acceptance struct {
	AcceptanceID       string         `gorm:"column:acceptance_id;primaryKey;type:varchar(32)" json:"acceptance_id"`
	CampaignID         string         `gorm:"column:campaign_id;type:varchar(32);not null;uniqueIndex:idx_campaign_kol;index" json:"campaign_id"`
	KOLID              string         `gorm:"column:kol_id;type:varchar(32);not null;uniqueIndex:idx_campaign_kol;index" json:"kol_id"`
	KOLChatID          int64          `gorm:"column:kol_chat_id;not null" json:"kol_chat_id"`
	Status             Status         `gorm:"column:status;type:varchar(20);index;not null" json:"status"`
	SubmissionURL      string         `gorm:"column:submission_url;type:varchar(512)" json:"submission_url"`
	SubmissionPostID   string         `gorm:"column:submission_post_id;type:varchar(32)" json:"submission_post_id"`
	VerificationResult datatypes.JSON `gorm:"column:verification_result" json:"verification_result,omitempty"`
	PayoutStatus       PayoutStatus   `gorm:"column:payout_status;type:varchar(10);not null;default:unpaid" json:"payout_status"`
	AcceptedAt         time.Time      `gorm:"column:accepted_at;autoCreateTime" json:"accepted_at"`
	SubmittedAt        *time.Time     `gorm:"column:submitted_at" json:"submitted_at,omitempty"`
	VerifiedAt         *time.Time     `gorm:"column:verified_at" json:"verified_at,omitempty"`
	PaidAt             *time.Time     `gorm:"column:paid_at" json:"paid_at,omitempty"`
	UpdatedAt          time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Acceptance) TableName() string { return "acceptances" }
