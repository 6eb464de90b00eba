package services

import (
	"strings"

	"github.com/loopgate/loopgate/internal/models"
	"github.com/loopgate/loopgate/pkg/logger"
	"gorm.io/gorm"
)

// prefix -> provider name inference for bare model strings. Ordered so the
// longest prefixes are tried first.
var modelPrefixProviders = []struct {
	prefix   string
	provider string
}{
	{"openrouter", "openrouter"},
	{"dall-e", "openai"},
	{"gemini", "google"},
	{"claude", "anthropic"},
	{"gpt", "openai"},
}

// ModelResolver turns a caller-supplied model string into a provider record
// plus the bare model name the provider understands.
type ModelResolver struct {
	db *gorm.DB
}

func NewModelResolver(db *gorm.DB) *ModelResolver {
	return &ModelResolver{db: db}
}

// ParseModel splits "provider/model" or infers the provider from well-known
// model-name prefixes. An explicit provider segment that is not a known
// provider name falls back to prefix inference rather than failing outright;
// the caller logs the mismatch.
func ParseModel(model string) (providerName, modelName string, err error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return "", "", NewValidationError("model is required, expected \"provider/model\"")
	}

	if idx := strings.Index(model, "/"); idx > 0 {
		return strings.ToLower(model[:idx]), model[idx+1:], nil
	}

	lower := strings.ToLower(model)
	for _, p := range modelPrefixProviders {
		if strings.HasPrefix(lower, p.prefix) {
			return p.provider, model, nil
		}
	}

	return "", "", NewValidationError("cannot infer provider from model \"" + model + "\", expected \"provider/model\"")
}

// Resolve parses the model string and loads the matching enabled provider.
func (r *ModelResolver) Resolve(model string) (*models.Provider, string, error) {
	providerName, modelName, err := ParseModel(model)
	if err != nil {
		return nil, "", err
	}

	provider, err := r.lookup(providerName)
	if err == nil {
		return provider, modelName, nil
	}

	// Explicit provider segment didn't match a known provider: fall back to
	// inferring from the full model string before giving up.
	inferredProvider, inferredModel, parseErr := ParseModel(modelName)
	if parseErr == nil && inferredProvider != providerName {
		if provider, lookupErr := r.lookup(inferredProvider); lookupErr == nil {
			logger.Warnf("[Resolver] Unknown provider %q in model %q, falling back to inferred provider %q",
				providerName, model, inferredProvider)
			return provider, inferredModel, nil
		}
	}

	return nil, "", err
}

func (r *ModelResolver) lookup(name string) (*models.Provider, error) {
	var provider models.Provider
	err := r.db.Where("LOWER(name) = ?", strings.ToLower(name)).First(&provider).Error
	if err != nil {
		return nil, NewConfigError("unknown provider \"" + name + "\"")
	}
	if !provider.Enabled {
		return nil, NewConfigError("provider \"" + provider.Name + "\" is disabled")
	}
	return &provider, nil
}
