package services

import (
	"time"

	"github.com/loopgate/loopgate/internal/models"
	"github.com/loopgate/loopgate/internal/services/adapter"
	"github.com/loopgate/loopgate/internal/utils"
	"github.com/loopgate/loopgate/pkg/logger"
	"github.com/loopgate/loopgate/pkg/response"
	"gorm.io/gorm"
)

// CredentialService owns credential storage and selection. Secrets are
// encrypted at rest and decrypted only at the point of an upstream call;
// anything returned to display surfaces is masked.
type CredentialService struct {
	db       *gorm.DB
	box      *utils.SecretBox
	balancer *CredentialBalancer
}

func NewCredentialService(db *gorm.DB, box *utils.SecretBox) *CredentialService {
	return &CredentialService{
		db:       db,
		box:      box,
		balancer: NewCredentialBalancer(db),
	}
}

// SelectForProvider picks the next credential via the balancer and returns
// it together with the decrypted secret material. The usage-count bump is
// fire-and-forget; selection never blocks on it.
func (s *CredentialService) SelectForProvider(provider *models.Provider) (*models.Credential, adapter.Credentials, error) {
	cred, err := s.balancer.Select(provider)
	if err != nil {
		return nil, adapter.Credentials{}, err
	}

	creds, err := s.decrypt(cred)
	if err != nil {
		return nil, adapter.Credentials{}, err
	}
	if creds.BaseURL == "" {
		creds.BaseURL = provider.BaseURL
	}
	creds.Region = provider.Region

	s.markUsed(cred.ID)
	return cred, creds, nil
}

func (s *CredentialService) decrypt(cred *models.Credential) (adapter.Credentials, error) {
	out := adapter.Credentials{}
	if cred.Secret != "" {
		secret, err := s.box.Decrypt(cred.Secret)
		if err != nil {
			return out, NewInternalError(err)
		}
		out.APIKey = secret
	}
	if cred.SecretID != "" {
		secretID, err := s.box.Decrypt(cred.SecretID)
		if err != nil {
			return out, NewInternalError(err)
		}
		out.SecretID = secretID
	}
	return out, nil
}

func (s *CredentialService) markUsed(id uint) {
	go func() {
		err := s.db.Model(&models.Credential{}).Where("id = ?", id).
			Updates(map[string]interface{}{
				"usage_count":  gorm.Expr("usage_count + 1"),
				"last_used_at": time.Now(),
			}).Error
		if err != nil {
			logger.Warnf("[Credential] Failed to record credential usage: %v", err)
		}
	}()
}

// --- admin CRUD ---

type CreateCredentialRequest struct {
	ProviderID uint   `json:"provider_id" binding:"required"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Secret     string `json:"secret" binding:"required"`
	SecretID   string `json:"secret_id"`
	Weight     int    `json:"weight"`
}

type UpdateCredentialRequest struct {
	Name     *string `json:"name"`
	Secret   *string `json:"secret"`
	SecretID *string `json:"secret_id"`
	Active   *bool   `json:"active"`
	Weight   *int    `json:"weight"`
}

func (s *CredentialService) Create(req *CreateCredentialRequest) (*models.Credential, error) {
	var provider models.Provider
	if err := s.db.First(&provider, req.ProviderID).Error; err != nil {
		return nil, response.NewNotFound("provider not found")
	}

	encrypted, err := s.box.Encrypt(req.Secret)
	if err != nil {
		return nil, err
	}

	cred := &models.Credential{
		ProviderID: req.ProviderID,
		Name:       req.Name,
		Type:       req.Type,
		Secret:     encrypted,
		Active:     true,
		Weight:     req.Weight,
	}
	if cred.Type == "" {
		cred.Type = models.CredentialTypeAPIKey
	}
	if cred.Weight <= 0 {
		cred.Weight = 100
	}
	if req.SecretID != "" {
		encryptedID, err := s.box.Encrypt(req.SecretID)
		if err != nil {
			return nil, err
		}
		cred.SecretID = encryptedID
	}

	if err := s.db.Create(cred).Error; err != nil {
		return nil, err
	}

	s.balancer.Purge(cred.ProviderID)
	cred.SecretMask = utils.MaskSecret(req.Secret)
	return cred, nil
}

func (s *CredentialService) Update(id uint, req *UpdateCredentialRequest) (*models.Credential, error) {
	var cred models.Credential
	if err := s.db.First(&cred, id).Error; err != nil {
		return nil, response.NewNotFound("credential not found")
	}

	if req.Name != nil {
		cred.Name = *req.Name
	}
	if req.Secret != nil {
		encrypted, err := s.box.Encrypt(*req.Secret)
		if err != nil {
			return nil, err
		}
		cred.Secret = encrypted
	}
	if req.SecretID != nil {
		encrypted, err := s.box.Encrypt(*req.SecretID)
		if err != nil {
			return nil, err
		}
		cred.SecretID = encrypted
	}
	if req.Active != nil {
		cred.Active = *req.Active
	}
	if req.Weight != nil && *req.Weight > 0 {
		cred.Weight = *req.Weight
	}

	if err := s.db.Save(&cred).Error; err != nil {
		return nil, err
	}

	s.balancer.Purge(cred.ProviderID)
	s.applyMask(&cred)
	return &cred, nil
}

func (s *CredentialService) Delete(id uint) error {
	var cred models.Credential
	if err := s.db.First(&cred, id).Error; err != nil {
		return response.NewNotFound("credential not found")
	}
	if err := s.db.Delete(&cred).Error; err != nil {
		return err
	}
	s.balancer.Purge(cred.ProviderID)
	return nil
}

func (s *CredentialService) ListByProvider(providerID uint) ([]models.Credential, error) {
	var creds []models.Credential
	err := s.db.Where("provider_id = ?", providerID).Order("id ASC").Find(&creds).Error
	if err != nil {
		return nil, err
	}
	for i := range creds {
		s.applyMask(&creds[i])
	}
	return creds, nil
}

// applyMask fills the display mask from the decrypted secret; if decryption
// fails (e.g. key rotated) it falls back to a fully hidden value.
func (s *CredentialService) applyMask(cred *models.Credential) {
	if cred.Secret == "" {
		cred.SecretMask = ""
		return
	}
	secret, err := s.box.Decrypt(cred.Secret)
	if err != nil {
		cred.SecretMask = "****"
		return
	}
	cred.SecretMask = utils.MaskSecret(secret)
}
