package models

import (
	"time"

	"github.com/harveywang/codedesk-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

const (
	PaymentOrderStatusPaid     = "paid"
	PaymentOrderStatusRefunded = "refunded"
)

// PaymentOrder is a direct gateway sale referencing the code it delivered.
type PaymentOrder struct {
	ID        int64           `gorm:"column:id;primaryKey;autoIncrement"`
	CodeID    int64           `gorm:"column:code_id;index;not null"`
	Email     string          `gorm:"column:email;size:255"`
	Amount    decimal.Decimal `gorm:"column:amount;type:numeric(10,2)"`
	OrderType enums.OrderType `gorm:"column:order_type;size:32"`
	Status    string          `gorm:"column:status;size:32;not null;default:paid"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime;index"`
}

func (PaymentOrder) TableName() string {
	return "payment_orders"
}
