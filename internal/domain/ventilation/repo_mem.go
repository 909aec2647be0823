package ventilation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryCalculationRepo keeps history in process; used when no database is
// configured.
type memoryCalculationRepo struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*CalculationRecord
	now     func() time.Time
}

func NewCalculationRepoMemory() CalculationRepository {
	return &memoryCalculationRepo{
		records: make(map[uuid.UUID]*CalculationRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *memoryCalculationRepo) Create(_ context.Context, r *CalculationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = uuid.New()
	r.CreatedAt = m.now()
	cp := *r
	m.records[r.ID] = &cp
	return nil
}

func (m *memoryCalculationRepo) GetByID(_ context.Context, id uuid.UUID) (*CalculationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return nil, ErrCalculationNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memoryCalculationRepo) List(_ context.Context, kind CalculationKind, limit, offset int) ([]*CalculationRecord, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []*CalculationRecord
	for _, r := range m.records {
		if kind != "" && r.Kind != kind {
			continue
		}
		cp := *r
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID.String() < all[j].ID.String()
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}
