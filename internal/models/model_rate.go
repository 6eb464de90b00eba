package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Call kinds shared by rates, ledger rows and call logs.
const (
	KindChat      = "chat"
	KindEmbedding = "embedding"
	KindImage     = "image"
)

// ModelRate converts raw usage into credits. Rates are credits per single
// unit: one token for chat/embedding, one image for image generation.
type ModelRate struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	ProviderID uint            `gorm:"index:idx_rate_provider_model;not null" json:"provider_id"`
	Model      string          `gorm:"index:idx_rate_provider_model;size:200;not null" json:"model"`
	Kind       string          `gorm:"size:20;default:chat" json:"kind"`
	InputRate  decimal.Decimal `gorm:"type:decimal(30,12)" json:"input_rate"`
	OutputRate decimal.Decimal `gorm:"type:decimal(30,12)" json:"output_rate"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (ModelRate) TableName() string { return "model_rates" }
