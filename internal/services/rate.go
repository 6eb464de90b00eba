package services

import (
	"strings"

	"github.com/loopgate/loopgate/internal/models"
	"github.com/loopgate/loopgate/pkg/response"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RateService manages per-model credit rates.
type RateService struct {
	db *gorm.DB
}

func NewRateService(db *gorm.DB) *RateService {
	return &RateService{db: db}
}

type UpsertRateRequest struct {
	ProviderID uint            `json:"provider_id" binding:"required"`
	Model      string          `json:"model" binding:"required"`
	Kind       string          `json:"kind"`
	InputRate  decimal.Decimal `json:"input_rate"`
	OutputRate decimal.Decimal `json:"output_rate"`
}

// Upsert creates the rate or overwrites an existing one for the same
// provider/model/kind triple.
func (s *RateService) Upsert(req *UpsertRateRequest) (*models.ModelRate, error) {
	if req.InputRate.IsNegative() || req.OutputRate.IsNegative() {
		return nil, response.NewBadRequest("rates must not be negative")
	}

	kind := req.Kind
	if kind == "" {
		kind = models.KindChat
	}
	switch kind {
	case models.KindChat, models.KindEmbedding, models.KindImage:
	default:
		return nil, response.NewBadRequest("unknown kind " + kind)
	}

	model := strings.TrimSpace(req.Model)

	var rate models.ModelRate
	err := s.db.Where("provider_id = ? AND LOWER(model) = ? AND kind = ?",
		req.ProviderID, strings.ToLower(model), kind).First(&rate).Error
	if err == nil {
		rate.InputRate = req.InputRate
		rate.OutputRate = req.OutputRate
		if err := s.db.Save(&rate).Error; err != nil {
			return nil, err
		}
		return &rate, nil
	}

	rate = models.ModelRate{
		ProviderID: req.ProviderID,
		Model:      model,
		Kind:       kind,
		InputRate:  req.InputRate,
		OutputRate: req.OutputRate,
	}
	if err := s.db.Create(&rate).Error; err != nil {
		return nil, err
	}
	return &rate, nil
}

func (s *RateService) Delete(id uint) error {
	res := s.db.Delete(&models.ModelRate{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return response.NewNotFound("rate not found")
	}
	return nil
}

func (s *RateService) ListByProvider(providerID uint) ([]models.ModelRate, error) {
	var rates []models.ModelRate
	err := s.db.Where("provider_id = ?", providerID).Order("model ASC").Find(&rates).Error
	if err != nil {
		return nil, err
	}
	return rates, nil
}
