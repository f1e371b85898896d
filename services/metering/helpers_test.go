package metering

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/upb/rag-query-service/models"
)

// MockUsageEventRepository is a mock implementation of UsageEventRepository
type MockUsageEventRepository struct {
	mock.Mock
	mu       sync.Mutex
	inserted []*models.UsageEvent
}

func (m *MockUsageEventRepository) Insert(ctx context.Context, event *models.UsageEvent) error {
	args := m.Called(ctx, event)

	m.mu.Lock()
	defer m.mu.Unlock()
	if args.Error(0) == nil {
		m.inserted = append(m.inserted, event)
	}
	return args.Error(0)
}

func (m *MockUsageEventRepository) ScanPrefix(ctx context.Context, prefix string, startKey *models.PageKey, limit int) ([]*models.UsageEvent, *models.PageKey, error) {
	args := m.Called(ctx, prefix, startKey, limit)
	var events []*models.UsageEvent
	if v := args.Get(0); v != nil {
		events = v.([]*models.UsageEvent)
	}
	var next *models.PageKey
	if v := args.Get(1); v != nil {
		next = v.(*models.PageKey)
	}
	return events, next, args.Error(2)
}

func (m *MockUsageEventRepository) Inserted() []*models.UsageEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.UsageEvent, len(m.inserted))
	copy(out, m.inserted)
	return out
}

// memoryUsageRepo is an ordered in-memory store with keyset paging
type memoryUsageRepo struct {
	mu     sync.Mutex
	events []*models.UsageEvent
	scans  int
}

func (r *memoryUsageRepo) Insert(ctx context.Context, event *models.UsageEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	sort.Slice(r.events, func(i, j int) bool {
		a, b := r.events[i], r.events[j]
		if a.PartitionKey() != b.PartitionKey() {
			return a.PartitionKey() < b.PartitionKey()
		}
		return a.SortKey() < b.SortKey()
	})
	return nil
}

func (r *memoryUsageRepo) ScanPrefix(ctx context.Context, prefix string, startKey *models.PageKey, limit int) ([]*models.UsageEvent, *models.PageKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scans++

	var page []*models.UsageEvent
	for _, e := range r.events {
		pk, sk := e.PartitionKey(), e.SortKey()
		if !strings.HasPrefix(pk, prefix) {
			continue
		}
		if startKey != nil && (pk < startKey.PK || (pk == startKey.PK && sk <= startKey.SK)) {
			continue
		}
		page = append(page, e)
		if len(page) == limit {
			return page, &models.PageKey{PK: pk, SK: sk}, nil
		}
	}
	return page, nil, nil
}
