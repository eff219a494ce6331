package license

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory license store for demo/development mode.
type MemoryStore struct {
	licenses    map[string]*License      // by ID
	byKey       map[string]string        // license key → ID
	activations map[string][]*Activation // by license ID
	mu          sync.RWMutex
}

// NewMemoryStore creates a new in-memory license store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		licenses:    make(map[string]*License),
		byKey:       make(map[string]string),
		activations: make(map[string][]*Activation),
	}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Create(ctx context.Context, lic *License) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byKey[lic.Key]; ok {
		return ErrDuplicateKey
	}
	cp := *lic
	m.licenses[lic.ID] = &cp
	m.byKey[lic.Key] = lic.ID
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*License, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lic, ok := m.licenses[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *lic
	return &cp, nil
}

func (m *MemoryStore) GetByKey(ctx context.Context, variants []string) (*License, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, v := range variants {
		if id, ok := m.byKey[v]; ok {
			cp := *m.licenses[id]
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) KeyExists(ctx context.Context, variants []string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, v := range variants {
		if _, ok := m.byKey[v]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) Update(ctx context.Context, lic *License) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.licenses[lic.ID]
	if !ok {
		return ErrNotFound
	}
	if old.Key != lic.Key {
		delete(m.byKey, old.Key)
		m.byKey[lic.Key] = lic.ID
	}
	cp := *lic
	cp.UpdatedAt = time.Now().UTC()
	m.licenses[lic.ID] = &cp
	return nil
}

func (m *MemoryStore) List(ctx context.Context, filter ListFilter) ([]*License, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []*License
	for _, lic := range m.licenses {
		if filter.Status != "" && lic.Status != filter.Status {
			continue
		}
		if filter.Plan != "" && lic.Plan != filter.Plan {
			continue
		}
		if filter.Before != nil {
			if !lic.CreatedAt.Before(filter.Before.CreatedAt) &&
				!(lic.CreatedAt.Equal(filter.Before.CreatedAt) && lic.ID < filter.Before.ID) {
				continue
			}
		}
		cp := *lic
		all = append(all, &cp)
	}

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	if filter.Offset >= len(all) {
		return nil, nil
	}
	all = all[filter.Offset:]
	if filter.Limit > 0 && len(all) > filter.Limit {
		all = all[:filter.Limit]
	}
	return all, nil
}

// Bind performs the check-and-increment under one lock acquisition, so
// concurrent activations can never both pass the limit check.
func (m *MemoryStore) Bind(ctx context.Context, id, domain, siteName string) (*License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lic, ok := m.licenses[id]
	if !ok {
		return nil, ErrNotFound
	}
	if lic.ActivationCount >= lic.ActivationLimit {
		return nil, &ActivationLimitError{Count: lic.ActivationCount, Limit: lic.ActivationLimit}
	}

	lic.Domain = domain
	lic.SiteName = siteName
	lic.ActivationCount++
	lic.UpdatedAt = time.Now().UTC()

	cp := *lic
	return &cp, nil
}

func (m *MemoryStore) ClearDomain(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lic, ok := m.licenses[id]
	if !ok {
		return ErrNotFound
	}
	lic.Domain = ""
	lic.SiteName = ""
	lic.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) RecordActivation(ctx context.Context, act *Activation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *act
	m.activations[act.LicenseID] = append(m.activations[act.LicenseID], &cp)
	return nil
}

func (m *MemoryStore) CloseActivation(ctx context.Context, licenseID, siteURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for _, act := range m.activations[licenseID] {
		if act.Active && act.SiteURL == siteURL {
			act.Active = false
			act.DeactivatedAt = &now
		}
	}
	return nil
}

// DebitCredits clamps at zero inside the critical section, so concurrent
// debits can never drive the balance negative.
func (m *MemoryStore) DebitCredits(ctx context.Context, id string, amount int) (*License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lic, ok := m.licenses[id]
	if !ok {
		return nil, ErrNotFound
	}
	lic.CreditsRemaining -= amount
	if lic.CreditsRemaining < 0 {
		lic.CreditsRemaining = 0
	}
	lic.UpdatedAt = time.Now().UTC()

	cp := *lic
	return &cp, nil
}

func (m *MemoryStore) ResetCredits(ctx context.Context, id string, nextReset time.Time) (*License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lic, ok := m.licenses[id]
	if !ok {
		return nil, ErrNotFound
	}
	lic.CreditsRemaining = lic.CreditsTotal
	lic.CreditsResetDate = nextReset
	lic.UpdatedAt = time.Now().UTC()

	cp := *lic
	return &cp, nil
}

func (m *MemoryStore) ListDueForReset(ctx context.Context, asOf time.Time) ([]*License, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var due []*License
	for _, lic := range m.licenses {
		if lic.Status == StatusActive && !lic.CreditsResetDate.After(asOf) {
			cp := *lic
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	return due, nil
}

func (m *MemoryStore) ListActivations(ctx context.Context, licenseID string) ([]*Activation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acts := m.activations[licenseID]
	result := make([]*Activation, 0, len(acts))
	for _, act := range acts {
		cp := *act
		result = append(result, &cp)
	}
	return result, nil
}
