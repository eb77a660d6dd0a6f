package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltatlas/prognos/internal/domain"
)

func newStoredLocation(t *testing.T, store *MemoryStore) *domain.Location {
	t.Helper()
	loc := domain.NewLocation(domain.StateBayern, "test",
		&domain.MarketLocation{Number: "12345678905", Measurand: domain.MeasurandPositive},
		domain.LocationSettings{})

	uow, err := store.NewUnitOfWork()
	require.NoError(t, err)
	require.NoError(t, uow.Locations().Add(loc))
	_, err = uow.Commit()
	require.NoError(t, err)
	return loc
}

func TestMemoryStoreCommitDrainsEvents(t *testing.T) {
	store := NewMemoryStore()
	loc := domain.NewLocation(domain.StateBayern, "test",
		&domain.MarketLocation{Number: "12345678905"}, domain.LocationSettings{})

	uow, err := store.NewUnitOfWork()
	require.NoError(t, err)
	require.NoError(t, uow.Locations().Add(loc))

	events, err := uow.Commit()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "location_created", events[0].EventName())
	assert.Equal(t, 1, store.Committed)
	assert.Empty(t, loc.DrainEvents(), "commit consumed the aggregate's events")
}

func TestMemoryStoreGetSharesAggregate(t *testing.T) {
	store := NewMemoryStore()
	loc := newStoredLocation(t, store)

	uow, err := store.NewUnitOfWork()
	require.NoError(t, err)
	got, err := uow.Locations().Get(loc.ID)
	require.NoError(t, err)
	assert.Same(t, loc, got)

	missing, err := uow.Locations().Get(domain.NewLocation(domain.StateBerlin, "",
		&domain.MarketLocation{}, domain.LocationSettings{}).ID)
	require.NoError(t, err)
	assert.Nil(t, missing, "unknown ids resolve to nil, not an error")
}

func TestMemoryStoreCommitCollectsEventsFromLoadedAggregates(t *testing.T) {
	store := NewMemoryStore()
	loc := newStoredLocation(t, store)

	uow, err := store.NewUnitOfWork()
	require.NoError(t, err)
	got, err := uow.Locations().Get(loc.ID)
	require.NoError(t, err)
	got.MarkHistoricDataUpdated()

	events, err := uow.Commit()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "historic_data_updated", events[0].EventName())
}

func TestMemoryStoreGetAll(t *testing.T) {
	store := NewMemoryStore()
	newStoredLocation(t, store)
	newStoredLocation(t, store)

	uow, err := store.NewUnitOfWork()
	require.NoError(t, err)
	locs, err := uow.Locations().GetAll()
	require.NoError(t, err)
	assert.Len(t, locs, 2)
}
