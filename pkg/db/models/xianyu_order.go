package models

import (
	"time"

	"github.com/harveywang/codedesk-backend/pkg/enums"
)

const (
	XianyuOrderStatusPaid      = "paid"
	XianyuOrderStatusCancelled = "cancelled"
)

// XianyuOrder tracks a sale imported from the Xianyu marketplace.
type XianyuOrder struct {
	ID        int64           `gorm:"column:id;primaryKey;autoIncrement"`
	CodeID    int64           `gorm:"column:code_id;index;not null"`
	OrderNo   string          `gorm:"column:order_no;uniqueIndex;size:64;not null"`
	BuyerNick string          `gorm:"column:buyer_nick;size:128"`
	OrderType enums.OrderType `gorm:"column:order_type;size:32"`
	Status    string          `gorm:"column:status;size:32;not null;default:paid"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime;index"`
}

func (XianyuOrder) TableName() string {
	return "xianyu_orders"
}
