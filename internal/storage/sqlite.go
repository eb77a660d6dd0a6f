package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/voltatlas/prognos/internal/database"
	"github.com/voltatlas/prognos/internal/domain"
	"github.com/voltatlas/prognos/internal/timeseries"
	"github.com/voltatlas/prognos/internal/utils"
)

const (
	roleResidualShort = "residual_short"
	roleResidualLong  = "residual_long"
	roleProducer      = "producer"
)

// Store opens unit-of-work instances over the locations database.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// NewStore creates a store and applies the schema.
func NewStore(db *database.DB, log zerolog.Logger) (*Store, error) {
	if err := db.Migrate(Schema); err != nil {
		return nil, err
	}
	return &Store{db: db, log: log.With().Str("component", "storage").Logger()}, nil
}

// NewUnitOfWork begins a transaction-scoped unit of work. One unit of work
// wraps one location's mutation atomically; cross-location partial failure
// must not corrupt a sibling's committed state.
func (s *Store) NewUnitOfWork() (UnitOfWork, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin unit of work: %w", err)
	}
	uow := &sqliteUnitOfWork{tx: tx, log: s.log}
	uow.locations = &sqliteLocationRepository{uow: uow}
	return uow, nil
}

// Factory returns a Factory bound to this store.
func (s *Store) Factory() Factory {
	return func() (UnitOfWork, error) { return s.NewUnitOfWork() }
}

type sqliteUnitOfWork struct {
	tx        *sql.Tx
	log       zerolog.Logger
	locations *sqliteLocationRepository
	seen      []*domain.Location
	done      bool
}

func (u *sqliteUnitOfWork) Locations() LocationRepository { return u.locations }

func (u *sqliteUnitOfWork) track(loc *domain.Location) {
	for _, seen := range u.seen {
		if seen == loc {
			return
		}
	}
	u.seen = append(u.seen, loc)
}

// Commit flushes the transaction and returns the events raised by every
// aggregate touched in this unit of work.
func (u *sqliteUnitOfWork) Commit() ([]domain.Event, error) {
	if u.done {
		return nil, fmt.Errorf("unit of work already finished")
	}
	if err := u.tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit unit of work: %w", err)
	}
	u.done = true
	var events []domain.Event
	for _, loc := range u.seen {
		events = append(events, loc.DrainEvents()...)
	}
	return events, nil
}

func (u *sqliteUnitOfWork) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	return u.tx.Rollback()
}

type sqliteLocationRepository struct {
	uow *sqliteUnitOfWork
}

func (r *sqliteLocationRepository) Get(id uuid.UUID) (*domain.Location, error) {
	locs, err := r.load("WHERE id = ?", id.String())
	if err != nil {
		return nil, err
	}
	if len(locs) == 0 {
		return nil, nil
	}
	r.uow.track(locs[0])
	return locs[0], nil
}

func (r *sqliteLocationRepository) GetAll() ([]*domain.Location, error) {
	locs, err := r.load("")
	if err != nil {
		return nil, err
	}
	for _, loc := range locs {
		r.uow.track(loc)
	}
	return locs, nil
}

func (r *sqliteLocationRepository) Add(loc *domain.Location) error {
	r.uow.track(loc)
	return r.save(loc, true)
}

func (r *sqliteLocationRepository) Update(loc *domain.Location) error {
	r.uow.track(loc)
	return r.save(loc, false)
}

func (r *sqliteLocationRepository) save(loc *domain.Location, isNew bool) error {
	tx := r.uow.tx

	var activeUntil any
	if loc.Settings.ActiveUntil != nil {
		activeUntil = loc.Settings.ActiveUntil.Unix()
	}
	if isNew {
		_, err := tx.Exec(
			`INSERT INTO locations (id, state, alias, active_from, active_until,
			    send_internal, send_eigenverbrauch, send_residual_long)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			loc.ID.String(), string(loc.State), loc.Alias,
			loc.Settings.ActiveFrom.Unix(), activeUntil,
			boolInt(loc.Settings.SendConsumptionToInternal),
			boolInt(loc.Settings.SendEigenverbrauchToPartner),
			boolInt(loc.Settings.SendResidualLongToPartner),
		)
		if err != nil {
			return fmt.Errorf("failed to insert location %s: %w", loc.ID, err)
		}
	} else {
		_, err := tx.Exec(
			`UPDATE locations SET state = ?, alias = ?, active_from = ?, active_until = ?,
			    send_internal = ?, send_eigenverbrauch = ?, send_residual_long = ?
			 WHERE id = ?`,
			string(loc.State), loc.Alias,
			loc.Settings.ActiveFrom.Unix(), activeUntil,
			boolInt(loc.Settings.SendConsumptionToInternal),
			boolInt(loc.Settings.SendEigenverbrauchToPartner),
			boolInt(loc.Settings.SendResidualLongToPartner),
			loc.ID.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to update location %s: %w", loc.ID, err)
		}
	}

	// child rows are rewritten wholesale; the aggregate is the unit of consistency
	for _, table := range []string{"market_locations", "predictions"} {
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE location_id = ?", table), loc.ID.String()); err != nil {
			return fmt.Errorf("failed to clear %s for location %s: %w", table, loc.ID, err)
		}
	}

	if err := r.saveMarketLocation(loc.ID, roleResidualShort, loc.ResidualShort, nil); err != nil {
		return err
	}
	if loc.ResidualLong != nil {
		if err := r.saveMarketLocation(loc.ID, roleResidualLong, loc.ResidualLong, nil); err != nil {
			return err
		}
	}
	for _, p := range loc.Producers {
		if err := r.saveMarketLocation(loc.ID, roleProducer, p.MarketLocation, p); err != nil {
			return err
		}
	}

	for _, p := range loc.Predictions {
		blob, err := encodeSeries(p.Series)
		if err != nil {
			return fmt.Errorf("failed to encode prediction %s: %w", p.ID, err)
		}
		var producerID any
		if p.Producer != nil {
			producerID = p.Producer.String()
		}
		if _, err := tx.Exec(
			`INSERT INTO predictions (id, location_id, type, producer_id, created, series)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID.String(), loc.ID.String(), string(p.Type), producerID, p.Created.UnixNano(), blob,
		); err != nil {
			return fmt.Errorf("failed to insert prediction %s: %w", p.ID, err)
		}
		for _, sh := range p.Shipments {
			if _, err := tx.Exec(
				`INSERT INTO prediction_shipments (id, prediction_id, receiver, created)
				 VALUES (?, ?, ?, ?)`,
				sh.ID.String(), p.ID.String(), string(sh.Receiver), sh.Created.UnixNano(),
			); err != nil {
				return fmt.Errorf("failed to insert shipment %s: %w", sh.ID, err)
			}
		}
	}
	return nil
}

func (r *sqliteLocationRepository) saveMarketLocation(locationID uuid.UUID, role string, ml *domain.MarketLocation, producer *domain.Producer) error {
	blob, err := encodeSeries(historicSeriesOf(ml))
	if err != nil {
		return fmt.Errorf("failed to encode historic series for %s: %w", ml.Number, err)
	}
	var historicID, producerID, producerName, retriever any
	var historicUpdated any
	if ml.HistoricLoadData != nil {
		historicID = ml.HistoricLoadData.ID.String()
		historicUpdated = ml.HistoricLoadData.Updated.Unix()
	}
	if producer != nil {
		producerID = producer.ID.String()
		producerName = producer.Name
		retriever = string(producer.PrognosisDataRetriever)
	}
	_, err = r.uow.tx.Exec(
		`INSERT INTO market_locations (id, location_id, role, number, measurand,
		    producer_id, producer_name, retriever, historic_id, historic_updated, historic_series)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), locationID.String(), role, ml.Number, string(ml.Measurand),
		producerID, producerName, retriever, historicID, historicUpdated, blob,
	)
	if err != nil {
		return fmt.Errorf("failed to insert market location %s: %w", ml.Number, err)
	}
	return nil
}

func historicSeriesOf(ml *domain.MarketLocation) *timeseries.Series {
	if ml.HistoricLoadData == nil {
		return nil
	}
	return ml.HistoricLoadData.Series
}

func (r *sqliteLocationRepository) load(where string, args ...any) ([]*domain.Location, error) {
	tx := r.uow.tx
	rows, err := tx.Query(
		`SELECT id, state, alias, active_from, active_until,
		    send_internal, send_eigenverbrauch, send_residual_long
		 FROM locations `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	var locs []*domain.Location
	for rows.Next() {
		var (
			id, state, alias                        string
			activeFrom                              int64
			activeUntil                             sql.NullInt64
			sendInternal, sendEigen, sendResidualLg int
		)
		if err := rows.Scan(&id, &state, &alias, &activeFrom, &activeUntil,
			&sendInternal, &sendEigen, &sendResidualLg); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		locID, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid location id %q: %w", id, err)
		}
		loc := &domain.Location{
			ID:    locID,
			State: domain.State(state),
			Alias: alias,
			Settings: domain.LocationSettings{
				ActiveFrom:                  time.Unix(activeFrom, 0).In(utils.ZoneBerlin),
				SendConsumptionToInternal:   sendInternal != 0,
				SendEigenverbrauchToPartner: sendEigen != 0,
				SendResidualLongToPartner:   sendResidualLg != 0,
			},
		}
		if activeUntil.Valid {
			t := time.Unix(activeUntil.Int64, 0).In(utils.ZoneBerlin)
			loc.Settings.ActiveUntil = &t
		}
		locs = append(locs, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, loc := range locs {
		if err := r.loadMarketLocations(loc); err != nil {
			return nil, err
		}
		if err := r.loadPredictions(loc); err != nil {
			return nil, err
		}
	}
	return locs, nil
}

func (r *sqliteLocationRepository) loadMarketLocations(loc *domain.Location) error {
	rows, err := r.uow.tx.Query(
		`SELECT role, number, measurand, producer_id, producer_name, retriever,
		    historic_id, historic_updated, historic_series
		 FROM market_locations WHERE location_id = ? ORDER BY rowid`, loc.ID.String())
	if err != nil {
		return fmt.Errorf("failed to query market locations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			role, number, measurand                string
			producerID, producerName, retrieverStr sql.NullString
			historicID                             sql.NullString
			historicUpdated                        sql.NullInt64
			blob                                   []byte
		)
		if err := rows.Scan(&role, &number, &measurand, &producerID, &producerName,
			&retrieverStr, &historicID, &historicUpdated, &blob); err != nil {
			return fmt.Errorf("failed to scan market location: %w", err)
		}
		ml := &domain.MarketLocation{Number: number, Measurand: domain.Measurand(measurand)}
		if historicID.Valid {
			series, err := decodeSeries(blob)
			if err != nil {
				return err
			}
			hid, err := uuid.Parse(historicID.String)
			if err != nil {
				return fmt.Errorf("invalid historic id %q: %w", historicID.String, err)
			}
			ml.HistoricLoadData = &domain.HistoricLoadData{
				ID:      hid,
				Updated: time.Unix(historicUpdated.Int64, 0),
				Series:  series,
			}
		}
		switch role {
		case roleResidualShort:
			loc.ResidualShort = ml
		case roleResidualLong:
			loc.ResidualLong = ml
		case roleProducer:
			pid, err := uuid.Parse(producerID.String)
			if err != nil {
				return fmt.Errorf("invalid producer id %q: %w", producerID.String, err)
			}
			loc.Producers = append(loc.Producers, &domain.Producer{
				ID:                     pid,
				Name:                   producerName.String,
				MarketLocation:         ml,
				PrognosisDataRetriever: domain.RetrieverKind(retrieverStr.String),
			})
		}
	}
	return rows.Err()
}

func (r *sqliteLocationRepository) loadPredictions(loc *domain.Location) error {
	rows, err := r.uow.tx.Query(
		`SELECT id, type, producer_id, created, series
		 FROM predictions WHERE location_id = ? ORDER BY created, rowid`, loc.ID.String())
	if err != nil {
		return fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, ptype  string
			producerID sql.NullString
			created    int64
			blob       []byte
		)
		if err := rows.Scan(&id, &ptype, &producerID, &created, &blob); err != nil {
			return fmt.Errorf("failed to scan prediction: %w", err)
		}
		pid, err := uuid.Parse(id)
		if err != nil {
			return fmt.Errorf("invalid prediction id %q: %w", id, err)
		}
		series, err := decodeSeries(blob)
		if err != nil {
			return err
		}
		p := &domain.Prediction{
			ID:      pid,
			Type:    domain.PredictionType(ptype),
			Created: time.Unix(0, created),
			Series:  series,
		}
		if producerID.Valid {
			prid, err := uuid.Parse(producerID.String)
			if err != nil {
				return fmt.Errorf("invalid prediction producer id %q: %w", producerID.String, err)
			}
			p.Producer = &prid
		}
		loc.Predictions = append(loc.Predictions, p)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	// the transaction supports one active statement; shipments are loaded
	// after the prediction rowset is drained
	for _, p := range loc.Predictions {
		if err := r.loadShipments(p); err != nil {
			return err
		}
	}
	return nil
}

func (r *sqliteLocationRepository) loadShipments(p *domain.Prediction) error {
	rows, err := r.uow.tx.Query(
		`SELECT id, receiver, created FROM prediction_shipments
		 WHERE prediction_id = ? ORDER BY created, rowid`, p.ID.String())
	if err != nil {
		return fmt.Errorf("failed to query shipments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, receiver string
			created      int64
		)
		if err := rows.Scan(&id, &receiver, &created); err != nil {
			return fmt.Errorf("failed to scan shipment: %w", err)
		}
		sid, err := uuid.Parse(id)
		if err != nil {
			return fmt.Errorf("invalid shipment id %q: %w", id, err)
		}
		p.Shipments = append(p.Shipments, domain.PredictionShipment{
			ID:       sid,
			Receiver: domain.Receiver(receiver),
			Created:  time.Unix(0, created),
		})
	}
	return rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
