package models

import (
	"time"

	"github.com/harveywang/codedesk-backend/pkg/enums"
)

// ChannelCommon is the unrestricted pool eligible as recovery inventory
// regardless of the original sale's channel.
const ChannelCommon = "common"

// Code is one activation code. Once used it doubles as the immutable record of
// the original redemption: who redeemed it and which account it activated.
type Code struct {
	ID        int64           `gorm:"column:id;primaryKey;autoIncrement"`
	Code      string          `gorm:"column:code;uniqueIndex;size:64;not null"`
	Channel   string          `gorm:"column:channel;size:32;not null;default:common"`
	OrderType enums.OrderType `gorm:"column:order_type;size:32"`
	AccountID *int64          `gorm:"column:account_id;index"`

	IsUsed bool       `gorm:"column:is_used;not null;default:false"`
	UsedAt *time.Time `gorm:"column:used_at;index"`
	UsedBy string     `gorm:"column:used_by;size:255"`

	// Reservation markers set by other sale flows; a reserved code is never
	// recovery inventory.
	ReservedEntryID *int64  `gorm:"column:reserved_entry_id"`
	ReservedOrderID *int64  `gorm:"column:reserved_order_id"`
	ReservedUID     *string `gorm:"column:reserved_uid;size:64"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Code) TableName() string {
	return "codes"
}
