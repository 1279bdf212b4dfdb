package approval

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"acquisition_backend/internal/leads/domain"
)

// MemoryStore keeps approval requests in process memory, for tests and
// database-free runs.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[uuid.UUID]*Request
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[uuid.UUID]*Request)}
}

func (m *MemoryStore) Create(_ context.Context, req *Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.requests {
		if existing.LeadID == req.LeadID && existing.Stage == req.Stage && existing.Attempt == req.Attempt {
			return ErrDuplicate
		}
	}
	m.requests[req.ID] = cloneRequest(req)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	req, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRequest(req), nil
}

func (m *MemoryStore) FindByToken(_ context.Context, leadID uuid.UUID, stage domain.Stage, attempt int) (*Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, req := range m.requests {
		if req.LeadID == leadID && req.Stage == stage && req.Attempt == attempt {
			return cloneRequest(req), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) Update(_ context.Context, req *Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.requests[req.ID]; !ok {
		return ErrNotFound
	}
	m.requests[req.ID] = cloneRequest(req)
	return nil
}

func (m *MemoryStore) ListPending(_ context.Context) ([]*Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]*Request, 0)
	for _, req := range m.requests {
		if req.Status == StatusPending {
			items = append(items, cloneRequest(req))
		}
	}
	sortByRequestedAt(items)
	return items, nil
}

func (m *MemoryStore) DeleteResolvedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for id, req := range m.requests {
		if req.Status != StatusPending && req.ResolvedAt != nil && req.ResolvedAt.Before(cutoff) {
			delete(m.requests, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MemoryStore) ListByLead(_ context.Context, leadID uuid.UUID) ([]*Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]*Request, 0)
	for _, req := range m.requests {
		if req.LeadID == leadID {
			items = append(items, cloneRequest(req))
		}
	}
	sortByRequestedAt(items)
	return items, nil
}

func cloneRequest(req *Request) *Request {
	dup := *req
	if req.Reason != nil {
		reason := *req.Reason
		dup.Reason = &reason
	}
	if req.ResolvedAt != nil {
		resolvedAt := *req.ResolvedAt
		dup.ResolvedAt = &resolvedAt
	}
	return &dup
}

func sortByRequestedAt(items []*Request) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].RequestedAt.Before(items[j].RequestedAt)
	})
}
