package credits

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory ledger store for demo/development mode.
type MemoryStore struct {
	entries map[string][]*LedgerEntry // by license ID
	usage   map[string]map[string]int // license ID → date → credits
	markers map[string]time.Time      // marker key → expiry
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string][]*LedgerEntry),
		usage:   make(map[string]map[string]int),
		markers: make(map[string]time.Time),
	}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) AppendEntry(ctx context.Context, entry *LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *entry
	m.entries[entry.LicenseID] = append(m.entries[entry.LicenseID], &cp)
	return nil
}

func (m *MemoryStore) ListEntries(ctx context.Context, licenseID string, limit int) ([]*LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.entries[licenseID]
	result := make([]*LedgerEntry, 0, len(entries))
	// Newest first.
	for i := len(entries) - 1; i >= 0 && len(result) < limit; i-- {
		cp := *entries[i]
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MemoryStore) AddUsage(ctx context.Context, licenseID, date string, amount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.usage[licenseID] == nil {
		m.usage[licenseID] = make(map[string]int)
	}
	m.usage[licenseID][date] += amount
	return nil
}

func (m *MemoryStore) ListUsage(ctx context.Context, licenseID, from, to string) ([]*UsageStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*UsageStat
	for date, credits := range m.usage[licenseID] {
		if from != "" && date < from {
			continue
		}
		if to != "" && date > to {
			continue
		}
		result = append(result, &UsageStat{LicenseID: licenseID, Date: date, Credits: credits})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })
	return result, nil
}

func (m *MemoryStore) SetMarker(ctx context.Context, key string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.markers[key] = expiresAt
	return nil
}

func (m *MemoryStore) MarkerExists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	expiry, ok := m.markers[key]
	if !ok {
		return false, nil
	}
	return time.Now().Before(expiry), nil
}
