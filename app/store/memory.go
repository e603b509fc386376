package store

import (
	"context"
	"sort"
	"sync"

	"github.com/Toumari/NorthStar/app/models"
)

// MemoryStore keeps profiles in process. It backs local development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]models.SubscriptionRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: map[string]models.SubscriptionRecord{}}
}

// Put replaces a user's record wholesale.
func (m *MemoryStore) Put(userID string, r models.SubscriptionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID] = r
}

func (m *MemoryStore) GetSubscription(_ context.Context, userID string) (models.SubscriptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.users[userID]
	if !ok {
		return models.SubscriptionRecord{}, ErrNotFound
	}
	return r.Normalize(), nil
}

func (m *MemoryStore) EnsureProfile(_ context.Context, userID string) (models.SubscriptionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.users[userID]
	if !ok {
		r = models.DefaultRecord()
		m.users[userID] = r
	}
	return r.Normalize(), nil
}

func (m *MemoryStore) MergeSubscription(_ context.Context, userID string, patch models.SubscriptionPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.users[userID]
	if !ok {
		r = models.SubscriptionRecord{}
	}
	m.users[userID] = patch.Apply(r)
	return nil
}

func (m *MemoryStore) FindUsersBySubscriptionID(_ context.Context, subscriptionID string, limit int) ([]string, error) {
	return m.find(limit, func(r models.SubscriptionRecord) bool {
		return subscriptionID != "" && r.StoredSubscriptionID() == subscriptionID
	}), nil
}

func (m *MemoryStore) FindUsersByCustomerID(_ context.Context, customerID string, limit int) ([]string, error) {
	return m.find(limit, func(r models.SubscriptionRecord) bool {
		return customerID != "" && r.StoredCustomerID() == customerID
	}), nil
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) find(limit int, match func(models.SubscriptionRecord) bool) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, r := range m.users {
		if match(r) {
			ids = append(ids, id)
		}
	}
	// map order is random; keep lookups deterministic
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}
