package services

import (
	"sync"

	"github.com/loopgate/loopgate/internal/models"
	"gorm.io/gorm"
)

// swrrEntry is the per-credential counter for smooth weighted round-robin.
type swrrEntry struct {
	current int
	weight  int
}

// CredentialBalancer picks the next credential for a provider using smooth
// weighted round-robin: every selection adds each candidate's weight to its
// counter, the highest counter wins, and the winner is debited the weight
// sum. That spreads picks proportionally to weight without bursty runs.
//
// Counters are per-process derived state, rebuilt from credential rows on
// demand; they are never persisted.
type CredentialBalancer struct {
	db *gorm.DB

	mu    sync.Mutex
	state map[uint]map[uint]*swrrEntry // providerID -> credentialID -> entry
}

func NewCredentialBalancer(db *gorm.DB) *CredentialBalancer {
	return &CredentialBalancer{
		db:    db,
		state: make(map[uint]map[uint]*swrrEntry),
	}
}

// Select returns the next credential for the provider. A provider with no
// credentials at all yields a "not configured" error; one whose credentials
// are all inactive yields a distinct "no credential available" error so
// callers can tell "needs setup" from "temporarily exhausted" apart.
func (b *CredentialBalancer) Select(provider *models.Provider) (*models.Credential, error) {
	var creds []models.Credential
	if err := b.db.Where("provider_id = ?", provider.ID).Find(&creds).Error; err != nil {
		return nil, NewInternalError(err)
	}

	if len(creds) == 0 {
		b.Purge(provider.ID)
		return nil, NewProviderNotConfiguredError(provider.Name)
	}

	active := creds[:0]
	for i := range creds {
		if creds[i].Active && creds[i].Weight > 0 {
			active = append(active, creds[i])
		}
	}
	if len(active) == 0 {
		b.Purge(provider.ID)
		return nil, NewNoCredentialError(provider.Name)
	}

	picked := b.pick(provider.ID, active)
	return picked, nil
}

// pick runs one SWRR round over the active credentials, reconciling the
// cached counters with the current rows first: new credentials enter with a
// zero counter, weight edits update in place without resetting counters,
// and entries for credentials no longer active are dropped.
func (b *CredentialBalancer) pick(providerID uint, active []models.Credential) *models.Credential {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.state[providerID]
	if entries == nil {
		entries = make(map[uint]*swrrEntry, len(active))
		b.state[providerID] = entries
	}

	seen := make(map[uint]bool, len(active))
	for i := range active {
		c := &active[i]
		seen[c.ID] = true
		if e, ok := entries[c.ID]; ok {
			e.weight = c.Weight
		} else {
			entries[c.ID] = &swrrEntry{weight: c.Weight}
		}
	}
	for id := range entries {
		if !seen[id] {
			delete(entries, id)
		}
	}

	total := 0
	var best *models.Credential
	var bestEntry *swrrEntry
	for i := range active {
		c := &active[i]
		e := entries[c.ID]
		e.current += e.weight
		total += e.weight
		if bestEntry == nil || e.current > bestEntry.current {
			best = c
			bestEntry = e
		}
	}
	bestEntry.current -= total

	return best
}

// Purge drops the cached counters for a provider. Called when credentials
// are edited, deactivated or deleted.
func (b *CredentialBalancer) Purge(providerID uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.state, providerID)
}
