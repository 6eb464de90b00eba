package services

import (
	"testing"

	"github.com/loopgate/loopgate/internal/models"
)

func TestBalancer_WeightedDistribution(t *testing.T) {
	db := newTestDB(t)

	provider := &models.Provider{Name: "openai", Enabled: true}
	if err := db.Create(provider).Error; err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	heavy := &models.Credential{ProviderID: provider.ID, Name: "heavy", Secret: "x", Active: true, Weight: 200}
	light := &models.Credential{ProviderID: provider.ID, Name: "light", Secret: "y", Active: true, Weight: 100}
	if err := db.Create(heavy).Error; err != nil {
		t.Fatalf("failed to create credential: %v", err)
	}
	if err := db.Create(light).Error; err != nil {
		t.Fatalf("failed to create credential: %v", err)
	}

	balancer := NewCredentialBalancer(db)
	counts := map[uint]int{}
	for i := 0; i < 300; i++ {
		cred, err := balancer.Select(provider)
		if err != nil {
			t.Fatalf("Select failed on draw %d: %v", i, err)
		}
		counts[cred.ID]++
	}

	if counts[heavy.ID] != 200 {
		t.Errorf("heavy credential picked %d times, expected 200", counts[heavy.ID])
	}
	if counts[light.ID] != 100 {
		t.Errorf("light credential picked %d times, expected 100", counts[light.ID])
	}
}

func TestBalancer_NoBurstRuns(t *testing.T) {
	db := newTestDB(t)

	provider := &models.Provider{Name: "anthropic", Enabled: true}
	if err := db.Create(provider).Error; err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	a := &models.Credential{ProviderID: provider.ID, Name: "a", Secret: "x", Active: true, Weight: 100}
	b := &models.Credential{ProviderID: provider.ID, Name: "b", Secret: "y", Active: true, Weight: 100}
	db.Create(a)
	db.Create(b)

	balancer := NewCredentialBalancer(db)

	// Equal weights must alternate strictly, never pick the same credential
	// three times in a row.
	var last uint
	run := 0
	for i := 0; i < 20; i++ {
		cred, err := balancer.Select(provider)
		if err != nil {
			t.Fatalf("Select failed: %v", err)
		}
		if cred.ID == last {
			run++
			if run >= 2 {
				t.Fatalf("credential %d picked %d times in a row", cred.ID, run+1)
			}
		} else {
			run = 0
		}
		last = cred.ID
	}
}

func TestBalancer_DistinguishesUnconfiguredFromExhausted(t *testing.T) {
	db := newTestDB(t)

	empty := &models.Provider{Name: "google", Enabled: true}
	db.Create(empty)

	_, err := NewCredentialBalancer(db).Select(empty)
	if KindOf(err) != KindConfig {
		t.Errorf("provider with zero credentials: kind = %v, expected %v", KindOf(err), KindConfig)
	}

	exhausted := &models.Provider{Name: "ollama", Enabled: true}
	db.Create(exhausted)
	db.Create(&models.Credential{ProviderID: exhausted.ID, Name: "off", Secret: "x", Active: false, Weight: 100})

	_, err = NewCredentialBalancer(db).Select(exhausted)
	if KindOf(err) != KindNoCredential {
		t.Errorf("provider with only inactive credentials: kind = %v, expected %v", KindOf(err), KindNoCredential)
	}
}

func TestBalancer_WeightEditKeepsCounters(t *testing.T) {
	db := newTestDB(t)

	provider := &models.Provider{Name: "openrouter", Enabled: true}
	db.Create(provider)
	a := &models.Credential{ProviderID: provider.ID, Name: "a", Secret: "x", Active: true, Weight: 100}
	b := &models.Credential{ProviderID: provider.ID, Name: "b", Secret: "y", Active: true, Weight: 100}
	db.Create(a)
	db.Create(b)

	balancer := NewCredentialBalancer(db)
	for i := 0; i < 10; i++ {
		if _, err := balancer.Select(provider); err != nil {
			t.Fatalf("Select failed: %v", err)
		}
	}

	// Tripling one weight shifts future draws without a reset burst.
	if err := db.Model(a).Update("weight", 300).Error; err != nil {
		t.Fatalf("failed to update weight: %v", err)
	}

	counts := map[uint]int{}
	for i := 0; i < 400; i++ {
		cred, err := balancer.Select(provider)
		if err != nil {
			t.Fatalf("Select failed: %v", err)
		}
		counts[cred.ID]++
	}

	if counts[a.ID] != 300 {
		t.Errorf("reweighted credential picked %d times, expected 300", counts[a.ID])
	}
	if counts[b.ID] != 100 {
		t.Errorf("other credential picked %d times, expected 100", counts[b.ID])
	}
}
