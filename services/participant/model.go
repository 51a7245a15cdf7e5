package participant

import "time"

// Customer is the buying side: a project paying for promotion campaigns.
// ChatID is the opaque identity supplied by the chat transport.
type Customer struct {
	CustomerID      string    `gorm:"column:customer_id;primaryKey;type:varchar(32)" json:"customer_id"`
	ChatID          int64     `gorm:"column:chat_id;uniqueIndex;not null" json:"chat_id"`
	ChatHandle      string    `gorm:"column:chat_handle;type:varchar(100)" json:"chat_handle"`
	Name            string    `gorm:"column:name;type:varchar(255);not null" json:"name"`
	ProjectXAccount string    `gorm:"column:project_x_account;type:varchar(100)" json:"project_x_account"`
	WalletAddress   string    `gorm:"column:wallet_address;type:varchar(128)" json:"wallet_address"`
	RegisteredAt    time.Time `gorm:"column:registered_at;autoCreateTime" json:"registered_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }

// KOL is the working side: a key opinion leader claiming campaign slots.
// The X* fields are filled by the handle-verification flow and stay empty
// for unverified accounts.
type KOL struct {
	KOLID         string    `gorm:"column:kol_id;primaryKey;type:varchar(32)" json:"kol_id"`
	ChatID        int64     `gorm:"column:chat_id;uniqueIndex;not null" json:"chat_id"`
	ChatHandle    string    `gorm:"column:chat_handle;type:varchar(100)" json:"chat_handle"`
	Name          string    `gorm:"column:name;type:varchar(255);not null" json:"name"`
	XAccount      string    `gorm:"column:x_account;type:varchar(100)" json:"x_account"`
	WalletAddress string    `gorm:"column:wallet_address;type:varchar(128)" json:"wallet_address"`
	XUserID       string    `gorm:"column:x_user_id;type:varchar(32)" json:"x_user_id"`
	FollowerCount int       `gorm:"column:follower_count;default:0" json:"follower_count"`
	IsVerified    bool      `gorm:"column:is_verified;default:false" json:"is_verified"`
	IsActive      bool      `gorm:"column:is_active;default:true" json:"is_active"`
	RegisteredAt  time.Time `gorm:"column:registered_at;autoCreateTime" json:"registered_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (KOL) TableName() string { return "kols" }
