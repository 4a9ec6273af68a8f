package repository

import (
	"context"
	"sync"
	"time"

	"github.com/linea-events/linea-auth/internal/domain"
)

type memoryArrivalRepository struct {
	mu      sync.Mutex
	records map[string]*domain.ArrivalRecord
	now     func() time.Time
}

func NewMemoryArrivalRepository(now func() time.Time) ArrivalRepository {
	if now == nil {
		now = time.Now
	}
	return &memoryArrivalRepository{
		records: make(map[string]*domain.ArrivalRecord),
		now:     now,
	}
}

func (r *memoryArrivalRepository) Create(_ context.Context, rec *domain.ArrivalRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec.CreatedAt = r.now()
	stored := *rec
	r.records[rec.Hash] = &stored
	return nil
}

func (r *memoryArrivalRepository) FindByHash(_ context.Context, hash string) (*domain.ArrivalRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[hash]
	if !ok {
		return nil, domain.ErrArrivalNotFound
	}
	found := *rec
	return &found, nil
}

func (r *memoryArrivalRepository) MarkArrived(_ context.Context, hash string) (*domain.ArrivalRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[hash]
	if !ok {
		return nil, false, domain.ErrArrivalNotFound
	}
	if rec.ArrivedAt != nil {
		found := *rec
		return &found, true, nil
	}

	now := r.now()
	rec.ArrivedAt = &now
	marked := *rec
	return &marked, false, nil
}

// memoryEventDirectory seeds a couple of demo events so memory mode is
// usable end to end without the platform database.
type memoryEventDirectory struct {
	mu     sync.Mutex
	events map[int64]*domain.EventInfo
}

func NewMemoryEventDirectory(seed []domain.EventInfo) EventDirectory {
	d := &memoryEventDirectory{events: make(map[int64]*domain.EventInfo)}
	for i := range seed {
		ev := seed[i]
		d.events[ev.ID] = &ev
	}
	return d
}

func (d *memoryEventDirectory) Get(_ context.Context, eventID int64) (*domain.EventInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ev, ok := d.events[eventID]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	found := *ev
	return &found, nil
}
