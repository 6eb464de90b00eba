package services

import (
	"strings"

	"github.com/loopgate/loopgate/internal/models"
	"github.com/loopgate/loopgate/pkg/response"
	"gorm.io/gorm"
)

// ProviderService manages upstream provider records.
type ProviderService struct {
	db *gorm.DB
}

func NewProviderService(db *gorm.DB) *ProviderService {
	return &ProviderService{db: db}
}

type CreateProviderRequest struct {
	Name        string `json:"name" binding:"required"`
	DisplayName string `json:"display_name"`
	BaseURL     string `json:"base_url"`
	Region      string `json:"region"`
}

func (s *ProviderService) Create(req *CreateProviderRequest) (*models.Provider, error) {
	name := strings.ToLower(strings.TrimSpace(req.Name))
	if name == "" {
		return nil, response.NewBadRequest("name is required")
	}

	var count int64
	s.db.Model(&models.Provider{}).Where("LOWER(name) = ?", name).Count(&count)
	if count > 0 {
		return nil, response.NewConflict("provider already exists")
	}

	provider := &models.Provider{
		Name:        name,
		DisplayName: req.DisplayName,
		BaseURL:     req.BaseURL,
		Region:      req.Region,
		Enabled:     true,
	}
	if provider.DisplayName == "" {
		provider.DisplayName = req.Name
	}
	if err := s.db.Create(provider).Error; err != nil {
		return nil, err
	}
	return provider, nil
}

type UpdateProviderRequest struct {
	DisplayName *string `json:"display_name"`
	BaseURL     *string `json:"base_url"`
	Region      *string `json:"region"`
	Enabled     *bool   `json:"enabled"`
}

func (s *ProviderService) Update(id uint, req *UpdateProviderRequest) (*models.Provider, error) {
	var provider models.Provider
	if err := s.db.First(&provider, id).Error; err != nil {
		return nil, response.NewNotFound("provider not found")
	}

	if req.DisplayName != nil {
		provider.DisplayName = *req.DisplayName
	}
	if req.BaseURL != nil {
		provider.BaseURL = *req.BaseURL
	}
	if req.Region != nil {
		provider.Region = *req.Region
	}
	if req.Enabled != nil {
		provider.Enabled = *req.Enabled
	}
	if err := s.db.Save(&provider).Error; err != nil {
		return nil, err
	}
	return &provider, nil
}

func (s *ProviderService) Delete(id uint) error {
	var count int64
	s.db.Model(&models.Credential{}).Where("provider_id = ?", id).Count(&count)
	if count > 0 {
		return response.NewConflict("provider still has credentials, delete them first")
	}

	res := s.db.Delete(&models.Provider{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return response.NewNotFound("provider not found")
	}
	return nil
}

func (s *ProviderService) List() ([]models.Provider, error) {
	var providers []models.Provider
	if err := s.db.Order("id ASC").Find(&providers).Error; err != nil {
		return nil, err
	}
	return providers, nil
}

func (s *ProviderService) Get(id uint) (*models.Provider, error) {
	var provider models.Provider
	if err := s.db.First(&provider, id).Error; err != nil {
		return nil, response.NewNotFound("provider not found")
	}
	return &provider, nil
}
