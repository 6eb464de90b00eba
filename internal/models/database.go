package models

import (
	"fmt"

	"github.com/loopgate/loopgate/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func InitDB(cfg *config.DatabaseConfig) error {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}

	DB = db
	return nil
}

func AutoMigrate() error {
	return DB.AutoMigrate(
		&User{},
		&App{},
		&Provider{},
		&Credential{},
		&ModelRate{},
		&UsageRecord{},
		&ModelCall{},
	)
}

func GetDB() *gorm.DB {
	return DB
}

// SeedDefaultData creates the well-known provider records if they are missing.
// Credentials and rates are operator-supplied; providers only need a row so
// credentials can reference them.
func SeedDefaultData() error {
	defaults := []Provider{
		{Name: "openai", DisplayName: "OpenAI", BaseURL: "https://api.openai.com/v1", Enabled: true},
		{Name: "anthropic", DisplayName: "Anthropic", Enabled: true},
		{Name: "google", DisplayName: "Google Gemini", Enabled: true},
		{Name: "openrouter", DisplayName: "OpenRouter", BaseURL: "https://openrouter.ai/api/v1", Enabled: true},
		{Name: "ollama", DisplayName: "Ollama", BaseURL: "http://localhost:11434", Enabled: true},
	}

	for _, p := range defaults {
		var count int64
		DB.Model(&Provider{}).Where("name = ?", p.Name).Count(&count)
		if count == 0 {
			if err := DB.Create(&p).Error; err != nil {
				return err
			}
		}
	}

	return nil
}
