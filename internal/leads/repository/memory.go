package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"acquisition_backend/internal/leads/domain"
)

// MemoryStore keeps leads and runs in process memory. It enforces the
// same version contract as the Postgres repository and hands out deep
// copies, so callers can never mutate stored state without going through
// Save. Used in tests and for running without a database.
type MemoryStore struct {
	mu    sync.RWMutex
	leads map[uuid.UUID]*domain.LeadRecord
	runs  map[uuid.UUID]*domain.WorkflowRun
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		leads: make(map[uuid.UUID]*domain.LeadRecord),
		runs:  make(map[uuid.UUID]*domain.WorkflowRun),
	}
}

func (m *MemoryStore) Create(_ context.Context, rec *domain.LeadRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec.Version = 1
	m.leads[rec.ID] = rec.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*domain.LeadRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.leads[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) FindByEmail(_ context.Context, email string) (*domain.LeadRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var newest *domain.LeadRecord
	for _, rec := range m.leads {
		if !strings.EqualFold(rec.Contact.Email, email) {
			continue
		}
		if newest == nil || rec.CreatedAt.After(newest.CreatedAt) {
			newest = rec
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	return newest.Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, rec *domain.LeadRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.leads[rec.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != rec.Version {
		return ErrVersionConflict
	}

	rec.Version++
	rec.UpdatedAt = time.Now().UTC()
	m.leads[rec.ID] = rec.Clone()
	return nil
}

func (m *MemoryStore) ListByStage(_ context.Context, stage domain.Stage) ([]*domain.LeadRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]*domain.LeadRecord, 0)
	for _, rec := range m.leads {
		if rec.Stage == stage {
			items = append(items, rec.Clone())
		}
	}
	sortByCreatedAt(items)
	return items, nil
}

func (m *MemoryStore) ListAnalyzable(_ context.Context) ([]*domain.LeadRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]*domain.LeadRecord, 0)
	for _, rec := range m.leads {
		if rec.TranscriptRef == nil || rec.Analysis != nil {
			continue
		}
		switch rec.Stage {
		case domain.StageFailed, domain.StageAbandoned, domain.StageAnalyzed:
			continue
		}
		items = append(items, rec.Clone())
	}
	sortByCreatedAt(items)
	return items, nil
}

func (m *MemoryStore) ListReplyOverdue(_ context.Context, sentBefore time.Time) ([]*domain.LeadRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]*domain.LeadRecord, 0)
	for _, rec := range m.leads {
		if rec.Stage != domain.StageAwaitingReply || rec.SentAt == nil {
			continue
		}
		if rec.SentAt.After(sentBefore) {
			continue
		}
		items = append(items, rec.Clone())
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].SentAt.Before(*items[j].SentAt)
	})
	return items, nil
}

func (m *MemoryStore) StageCounts(_ context.Context) (map[domain.Stage]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[domain.Stage]int)
	for _, rec := range m.leads {
		counts[rec.Stage]++
	}
	return counts, nil
}

func (m *MemoryStore) Archive(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.leads[id]; !ok {
		return ErrNotFound
	}
	delete(m.leads, id)
	delete(m.runs, id)
	return nil
}

func (m *MemoryStore) GetRun(_ context.Context, leadID uuid.UUID) (*domain.WorkflowRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[leadID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run.Clone(), nil
}

func (m *MemoryStore) SaveRun(_ context.Context, run *domain.WorkflowRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run.UpdatedAt = time.Now().UTC()
	m.runs[run.LeadID] = run.Clone()
	return nil
}

func (m *MemoryStore) DeleteRun(_ context.Context, leadID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.runs, leadID)
	return nil
}

func (m *MemoryStore) ListRuns(_ context.Context) ([]*domain.WorkflowRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]*domain.WorkflowRun, 0, len(m.runs))
	for _, run := range m.runs {
		items = append(items, run.Clone())
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].StartedAt.Before(items[j].StartedAt)
	})
	return items, nil
}

func sortByCreatedAt(items []*domain.LeadRecord) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
