package services

import (
	"testing"

	"github.com/loopgate/loopgate/internal/models"
)

func TestParseModel(t *testing.T) {
	tests := []struct {
		name         string
		model        string
		wantProvider string
		wantModel    string
		wantErr      bool
	}{
		{"explicit provider", "openai/gpt-4o", "openai", "gpt-4o", false},
		{"explicit provider mixed case", "OpenAI/gpt-4o", "openai", "gpt-4o", false},
		{"nested slashes keep model intact", "openrouter/meta/llama-3-70b", "openrouter", "meta/llama-3-70b", false},
		{"gpt prefix infers openai", "gpt-4o-mini", "openai", "gpt-4o-mini", false},
		{"claude prefix infers anthropic", "claude-sonnet-4-20250514", "anthropic", "claude-sonnet-4-20250514", false},
		{"gemini prefix infers google", "gemini-2.0-flash", "google", "gemini-2.0-flash", false},
		{"dall-e prefix infers openai", "dall-e-3", "openai", "dall-e-3", false},
		{"unknown bare model", "mistral-large", "", "", true},
		{"empty model", "", "", "", true},
		{"whitespace only", "   ", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, model, err := ParseModel(tt.model)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseModel(%q) should fail", tt.model)
				}
				if KindOf(err) != KindValidation {
					t.Errorf("error kind = %v, expected validation", KindOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseModel(%q) failed: %v", tt.model, err)
			}
			if provider != tt.wantProvider || model != tt.wantModel {
				t.Errorf("ParseModel(%q) = (%q, %q), expected (%q, %q)",
					tt.model, provider, model, tt.wantProvider, tt.wantModel)
			}
		})
	}
}

func TestResolver_DisabledProvider(t *testing.T) {
	db := newTestDB(t)
	db.Create(&models.Provider{Name: "openai", Enabled: false})

	_, _, err := NewModelResolver(db).Resolve("openai/gpt-4o")
	if err == nil {
		t.Fatal("Resolve should fail for a disabled provider")
	}
	if KindOf(err) != KindConfig {
		t.Errorf("error kind = %v, expected config", KindOf(err))
	}
}

func TestResolver_FallsBackToInference(t *testing.T) {
	db := newTestDB(t)
	db.Create(&models.Provider{Name: "openai", Enabled: true})

	// "azure" is not a configured provider, but the model name identifies one.
	provider, model, err := NewModelResolver(db).Resolve("azure/gpt-4o")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if provider.Name != "openai" {
		t.Errorf("provider = %q, expected openai", provider.Name)
	}
	if model != "gpt-4o" {
		t.Errorf("model = %q, expected gpt-4o", model)
	}
}
