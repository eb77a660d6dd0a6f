package storage

import (
	"github.com/google/uuid"

	"github.com/voltatlas/prognos/internal/domain"
)

// MemoryStore keeps aggregates in process memory. Used by tests and as the
// backing store for ad-hoc tooling that has no database at hand.
type MemoryStore struct {
	locations map[uuid.UUID]*domain.Location
	Committed int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{locations: map[uuid.UUID]*domain.Location{}}
}

// NewUnitOfWork returns a unit of work over the shared map. Aggregates are
// shared by reference, matching the single-process test usage.
func (s *MemoryStore) NewUnitOfWork() (UnitOfWork, error) {
	uow := &memoryUnitOfWork{store: s}
	uow.repo = &memoryLocationRepository{uow: uow}
	return uow, nil
}

// Factory returns a Factory bound to this store.
func (s *MemoryStore) Factory() Factory {
	return func() (UnitOfWork, error) { return s.NewUnitOfWork() }
}

type memoryUnitOfWork struct {
	store *MemoryStore
	repo  *memoryLocationRepository
	seen  []*domain.Location
}

func (u *memoryUnitOfWork) Locations() LocationRepository { return u.repo }

func (u *memoryUnitOfWork) track(loc *domain.Location) {
	for _, seen := range u.seen {
		if seen == loc {
			return
		}
	}
	u.seen = append(u.seen, loc)
}

func (u *memoryUnitOfWork) Commit() ([]domain.Event, error) {
	u.store.Committed++
	var events []domain.Event
	for _, loc := range u.seen {
		events = append(events, loc.DrainEvents()...)
	}
	return events, nil
}

func (u *memoryUnitOfWork) Rollback() error { return nil }

type memoryLocationRepository struct {
	uow *memoryUnitOfWork
}

func (r *memoryLocationRepository) Get(id uuid.UUID) (*domain.Location, error) {
	loc, ok := r.uow.store.locations[id]
	if !ok {
		return nil, nil
	}
	r.uow.track(loc)
	return loc, nil
}

func (r *memoryLocationRepository) GetAll() ([]*domain.Location, error) {
	var locs []*domain.Location
	for _, loc := range r.uow.store.locations {
		r.uow.track(loc)
		locs = append(locs, loc)
	}
	return locs, nil
}

func (r *memoryLocationRepository) Add(loc *domain.Location) error {
	r.uow.track(loc)
	r.uow.store.locations[loc.ID] = loc
	return nil
}

func (r *memoryLocationRepository) Update(loc *domain.Location) error {
	r.uow.track(loc)
	r.uow.store.locations[loc.ID] = loc
	return nil
}
