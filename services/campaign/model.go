package campaign

import "time"

type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusLive           Status = "live"
	StatusFilled         Status = "filled"
	StatusCompleted      Status = "completed"
	StatusExpired        Status = "expired"
	StatusCancelled      Status = "cancelled"
)

// Accepting reports whether the campaign still takes verification activity.
// Filled campaigns no longer take new slots but their submitted proofs are
// still in flight.
func (s Status) Accepting() bool {
	return s == StatusLive || s == StatusFilled
}

// Campaign is a paid promotion order. Pricing fields are snapshotted from the
// service tier at creation time so later tier edits never reprice a running
// campaign.
type Campaign struct {
	CampaignID      string     `gorm:"column:campaign_id;primaryKey;type:varchar(32)" json:"campaign_id"`
	Code            string     `gorm:"column:code;type:varchar(32);uniqueIndex" json:"code"`
	CustomerID      string     `gorm:"column:customer_id;type:varchar(32);index;not null" json:"customer_id"`
	ProjectName     string     `gorm:"column:project_name;type:varchar(255);not null" json:"project_name"`
	TierKey         string     `gorm:"column:tier_key;type:varchar(50);not null" json:"tier_key"`
	TargetPostURL   string     `gorm:"column:target_post_url;type:varchar(512)" json:"target_post_url"`
	Brief           string     `gorm:"column:brief;type:text" json:"brief"`
	SlotCount       int        `gorm:"column:slot_count;not null" json:"slot_count"`
	AcceptedCount   int        `gorm:"column:accepted_count;not null;default:0" json:"accepted_count"`
	UnitRate        int64      `gorm:"column:unit_rate;not null" json:"unit_rate"`
	PlatformFee     int64      `gorm:"column:platform_fee;not null" json:"platform_fee"`
	TotalCost       int64      `gorm:"column:total_cost;not null" json:"total_cost"`
	Status          Status     `gorm:"column:status;type:varchar(20);index;not null" json:"status"`
	Deadline        time.Time  `gorm:"column:deadline;not null" json:"deadline"`
	AnnouncementRef string     `gorm:"column:announcement_ref;type:varchar(64)" json:"announcement_ref"`
	ActivatedAt     *time.Time `gorm:"column:activated_at" json:"activated_at,omitempty"`
	CompletedAt     *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CancelledAt     *time.Time `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Campaign) TableName() string { return "campaigns" }
