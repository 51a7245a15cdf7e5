package tier

import "time"

// Tier is a purchasable service type. Rates are minor currency units per
// slot. Rows are runtime-editable configuration: campaigns copy the rate at
// creation instead of referencing it, so edits never reprice existing
// campaigns.
type Tier struct {
	Key            string    `gorm:"column:key;primaryKey;type:varchar(50)" json:"key"`
	DisplayName    string    `gorm:"column:display_name;type:varchar(100);not null" json:"display_name"`
	UnitRate       int64     `gorm:"column:unit_rate;not null" json:"unit_rate"`
	MinSlots       int       `gorm:"column:min_slots;not null" json:"min_slots"`
	MaxSlots       int       `gorm:"column:max_slots;not null" json:"max_slots"`
	RequiresTarget bool      `gorm:"column:requires_target" json:"requires_target"`
	RequiresBrief  bool      `gorm:"column:requires_brief" json:"requires_brief"`
	IsActive       bool      `gorm:"column:is_active;default:true" json:"is_active"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Tier) TableName() string { return "service_tiers" }

// InBounds reports whether a slot count fits the tier's limits.
func (t *Tier) InBounds(slots int) bool {
	return slots >= t.MinSlots && slots <= t.MaxSlots
}

// Quote is the frozen pricing for one campaign.
type Quote struct {
	UnitRate    int64 `json:"unit_rate"`
	PlatformFee int64 `json:"platform_fee"`
	TotalCost   int64 `json:"total_cost"`
}

// Defaults seeds the catalogue on first boot.
var Defaults = []Tier{
	{Key: "retweet", DisplayName: "Retweet", UnitRate: 1000, MinSlots: 5, MaxSlots: 50, RequiresTarget: true, IsActive: true},
	{Key: "like_rt", DisplayName: "Like + RT", UnitRate: 1500, MinSlots: 5, MaxSlots: 50, RequiresTarget: true, IsActive: true},
	{Key: "quote_tweet", DisplayName: "Quote Tweet", UnitRate: 3000, MinSlots: 3, MaxSlots: 30, RequiresTarget: true, RequiresBrief: true, IsActive: true},
	{Key: "original_post", DisplayName: "Original Post", UnitRate: 5000, MinSlots: 3, MaxSlots: 25, RequiresBrief: true, IsActive: true},
	{Key: "thread", DisplayName: "Thread", UnitRate: 10000, MinSlots: 2, MaxSlots: 15, RequiresBrief: true, IsActive: true},
	{Key: "video_post", DisplayName: "Video Post", UnitRate: 15000, MinSlots: 1, MaxSlots: 10, RequiresBrief: true, IsActive: true},
}
