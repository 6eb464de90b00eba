package models

import (
	"time"

	"gorm.io/gorm"
)

// Provider is an upstream AI service that credentials belong to.
// Name is the routing key ("openai", "anthropic", ...); BaseURL and Region
// override adapter defaults for self-hosted or regional deployments.
type Provider struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"size:100;uniqueIndex;not null" json:"name"`
	DisplayName string         `gorm:"size:200" json:"display_name"`
	BaseURL     string         `gorm:"size:500" json:"base_url"`
	Region      string         `gorm:"size:100" json:"region"`
	Enabled     bool           `gorm:"default:true" json:"enabled"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Provider) TableName() string { return "providers" }
