package models

import "time"

// Setting is a single key/value settings row.
type Setting struct {
	Key       string    `gorm:"column:key;primaryKey;size:64"`
	Value     string    `gorm:"column:value;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Setting) TableName() string {
	return "settings"
}
