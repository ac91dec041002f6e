package models

import (
	"time"

	"github.com/harveywang/codedesk-backend/pkg/enums"
)

// RecoveryLog is one append-only recovery attempt. Rows are never updated;
// readers derive the current status of a code from its highest-id row, and at
// most one success/skipped row may ever exist per original code.
type RecoveryLog struct {
	ID             int64                `gorm:"column:id;primaryKey;autoIncrement"`
	OriginalCodeID int64                `gorm:"column:original_code_id;index;not null"`
	Status         enums.RecoveryStatus `gorm:"column:status;size:16;not null"`
	Source         enums.OriginSource   `gorm:"column:source;size:16"`

	RecoveryCode         *string `gorm:"column:recovery_code;size:64"`
	RecoveryAccountEmail *string `gorm:"column:recovery_account_email;size:255"`
	ErrorMessage         *string `gorm:"column:error_message;type:text"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (RecoveryLog) TableName() string {
	return "recovery_logs"
}
