package services

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/loopgate/loopgate/internal/models"
	"github.com/loopgate/loopgate/internal/utils"
	"github.com/loopgate/loopgate/pkg/response"
	"gorm.io/gorm"
)

// AppService manages calling applications. An app's scope id groups its
// ledger rows; its token authenticates gateway requests.
type AppService struct {
	db *gorm.DB
}

func NewAppService(db *gorm.DB) *AppService {
	return &AppService{db: db}
}

func newAppToken() string {
	return "lg-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

type CreateAppRequest struct {
	Name    string `json:"name" binding:"required"`
	ScopeID string `json:"scope_id"`
}

// Create issues a new app with a fresh token. The plaintext token is
// returned once, on creation; afterwards only the mask is visible.
func (s *AppService) Create(req *CreateAppRequest) (*models.App, string, error) {
	scopeID := req.ScopeID
	if scopeID == "" {
		scopeID = uuid.NewString()
	}

	var count int64
	s.db.Model(&models.App{}).Where("scope_id = ?", scopeID).Count(&count)
	if count > 0 {
		return nil, "", response.NewConflict("scope_id already exists")
	}

	token := newAppToken()
	app := &models.App{
		Name:    req.Name,
		ScopeID: scopeID,
		Token:   token,
		Active:  true,
	}
	if err := s.db.Create(app).Error; err != nil {
		return nil, "", err
	}
	app.TokenMask = utils.MaskSecret(token)
	return app, token, nil
}

// Authenticate resolves a gateway token to its active app.
func (s *AppService) Authenticate(token string) (*models.App, error) {
	var app models.App
	err := s.db.Where("token = ?", token).First(&app).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewUnauthorized("invalid app token")
		}
		return nil, err
	}
	if !app.Active {
		return nil, response.NewForbidden("app is disabled")
	}
	return &app, nil
}

// RotateToken replaces the app's token and returns the new plaintext once.
func (s *AppService) RotateToken(id uint) (*models.App, string, error) {
	var app models.App
	if err := s.db.First(&app, id).Error; err != nil {
		return nil, "", response.NewNotFound("app not found")
	}

	token := newAppToken()
	if err := s.db.Model(&app).Update("token", token).Error; err != nil {
		return nil, "", err
	}
	app.Token = token
	app.TokenMask = utils.MaskSecret(token)
	return &app, token, nil
}

type UpdateAppRequest struct {
	Name   *string `json:"name"`
	Active *bool   `json:"active"`
}

func (s *AppService) Update(id uint, req *UpdateAppRequest) (*models.App, error) {
	var app models.App
	if err := s.db.First(&app, id).Error; err != nil {
		return nil, response.NewNotFound("app not found")
	}
	if req.Name != nil {
		app.Name = *req.Name
	}
	if req.Active != nil {
		app.Active = *req.Active
	}
	if err := s.db.Save(&app).Error; err != nil {
		return nil, err
	}
	app.TokenMask = utils.MaskSecret(app.Token)
	return &app, nil
}

func (s *AppService) Delete(id uint) error {
	res := s.db.Delete(&models.App{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return response.NewNotFound("app not found")
	}
	return nil
}

func (s *AppService) List() ([]models.App, error) {
	var apps []models.App
	if err := s.db.Order("id ASC").Find(&apps).Error; err != nil {
		return nil, err
	}
	for i := range apps {
		apps[i].TokenMask = utils.MaskSecret(apps[i].Token)
	}
	return apps, nil
}
