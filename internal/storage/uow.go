// Package storage provides the repository and unit-of-work implementations
// backing the Location aggregate.
package storage

import (
	"github.com/google/uuid"

	"github.com/voltatlas/prognos/internal/domain"
)

// LocationRepository is the repository contract consumed by the handlers.
// Implementations track every aggregate handed out or added so the unit of
// work can drain newly raised events on commit.
type LocationRepository interface {
	Get(id uuid.UUID) (*domain.Location, error)
	GetAll() ([]*domain.Location, error)
	Add(loc *domain.Location) error
	Update(loc *domain.Location) error
}

// UnitOfWork scopes one atomic aggregate mutation. Commit returns the
// domain events raised by the aggregates touched within this unit of work,
// in the order they were raised.
type UnitOfWork interface {
	Locations() LocationRepository
	Commit() ([]domain.Event, error)
	Rollback() error
}

// Factory opens a fresh unit of work. Handlers call it once per command.
type Factory func() (UnitOfWork, error)
