package models

import (
	"time"

	"gorm.io/gorm"
)

// Credential types.
const (
	CredentialTypeAPIKey  = "api_key"
	CredentialTypeKeyPair = "key_pair"
	CredentialTypeCustom  = "custom"
)

// Credential holds one provider secret. Secret and SecretID are stored
// encrypted; they are decrypted only at the point of an upstream call.
// Weight drives smooth weighted round-robin selection.
type Credential struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	ProviderID uint           `gorm:"index;not null" json:"provider_id"`
	Name       string         `gorm:"size:200" json:"name"`
	Type       string         `gorm:"size:50;default:api_key" json:"type"`
	Secret     string         `gorm:"size:2000" json:"-"`
	SecretID   string         `gorm:"size:2000" json:"-"` // second half of a key pair
	SecretMask string         `gorm:"-" json:"secret_mask"`
	Active     bool           `gorm:"default:true" json:"active"`
	Weight     int            `gorm:"default:100" json:"weight"`
	UsageCount int64          `gorm:"default:0" json:"usage_count"`
	LastUsedAt *time.Time     `json:"last_used_at"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Credential) TableName() string { return "credentials" }
