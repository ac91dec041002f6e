package models

import "time"

// GptAccount is a provisioned upstream account. Recovery reads its ban state
// and, for candidate selection, its seat counters and token material.
type GptAccount struct {
	ID           int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Email        string `gorm:"column:email;uniqueIndex;size:255;not null"`
	Banned       bool   `gorm:"column:banned;not null;default:false;index"`
	BanProcessed bool   `gorm:"column:ban_processed;not null;default:false"`
	// No default tag: gorm omits zero-valued fields that carry one, which
	// would turn an explicit Open=false insert into true.
	Open bool `gorm:"column:open;not null"`

	UserCount   int `gorm:"column:user_count;not null;default:0"`
	InviteCount int `gorm:"column:invite_count;not null;default:0"`

	AccessToken       string     `gorm:"column:access_token;type:text"`
	ProviderAccountID string     `gorm:"column:provider_account_id;size:128"`
	TokenExpiresAt    *time.Time `gorm:"column:token_expires_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (GptAccount) TableName() string {
	return "gpt_accounts"
}

// SeatCount is the occupancy figure compared against the pool capacity ceiling.
func (a GptAccount) SeatCount() int {
	return a.UserCount + a.InviteCount
}
