package models

import (
	"time"

	"gorm.io/gorm"
)

// App is a calling application. Its ID string doubles as the billing scope
// for ledger rows; Token authenticates gateway requests.
type App struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"size:200;not null" json:"name"`
	ScopeID   string         `gorm:"uniqueIndex;size:100;not null" json:"scope_id"`
	Token     string         `gorm:"uniqueIndex;size:100;not null" json:"-"`
	TokenMask string         `gorm:"-" json:"token_mask"`
	Active    bool           `gorm:"default:true" json:"active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (App) TableName() string { return "apps" }
