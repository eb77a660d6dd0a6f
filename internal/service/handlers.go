// Package service wires the command and event handlers onto the bus. Each
// handler opens one unit of work, mutates one or more Location aggregates and
// returns the events collected on commit.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/voltatlas/prognos/internal/bus"
	"github.com/voltatlas/prognos/internal/delivery"
	"github.com/voltatlas/prognos/internal/domain"
	"github.com/voltatlas/prognos/internal/exchange"
	"github.com/voltatlas/prognos/internal/predictor"
	"github.com/voltatlas/prognos/internal/storage"
	"github.com/voltatlas/prognos/internal/utils"
)

// keepPredictionsPerType bounds the per-type prediction history of a
// location. Older entries have served their audit purpose once newer ones
// have shipped.
const keepPredictionsPerType = 10

// Handlers carries the fixed dependency set shared by every handler. Each
// handler uses only the fields it needs.
type Handlers struct {
	uow         storage.Factory
	retrievers  exchange.Registry
	metering    exchange.Retriever
	sender      exchange.Sender
	predictor   predictor.Predictor
	recipient   string
	sendEnabled bool
	log         zerolog.Logger
	now         func() time.Time
}

// Config configures the handler set.
type Config struct {
	UnitOfWork  storage.Factory
	Retrievers  exchange.Registry
	Metering    exchange.Retriever
	Sender      exchange.Sender
	Predictor   predictor.Predictor
	Recipient   string
	SendEnabled bool
}

// NewHandlers builds the handler set.
func NewHandlers(cfg Config, log zerolog.Logger) *Handlers {
	return &Handlers{
		uow:         cfg.UnitOfWork,
		retrievers:  cfg.Retrievers,
		metering:    cfg.Metering,
		sender:      cfg.Sender,
		predictor:   cfg.Predictor,
		recipient:   cfg.Recipient,
		sendEnabled: cfg.SendEnabled,
		log:         log.With().Str("component", "handlers").Logger(),
		now:         time.Now,
	}
}

// Register binds all command handlers and event subscriptions.
func (h *Handlers) Register(b *bus.Bus) {
	b.RegisterCommand(domain.CreateLocation{}.CommandName(), func(cmd domain.Command) (any, []domain.Event, error) {
		return h.createLocation(cmd.(domain.CreateLocation))
	})
	b.RegisterCommand(domain.UpdateLocationSettings{}.CommandName(), func(cmd domain.Command) (any, []domain.Event, error) {
		return h.updateLocationSettings(cmd.(domain.UpdateLocationSettings))
	})
	b.RegisterCommand(domain.UpdateHistoricData{}.CommandName(), func(cmd domain.Command) (any, []domain.Event, error) {
		return h.updateHistoricData(cmd.(domain.UpdateHistoricData))
	})
	b.RegisterCommand(domain.CalculatePredictions{}.CommandName(), func(cmd domain.Command) (any, []domain.Event, error) {
		return h.calculatePredictions(cmd.(domain.CalculatePredictions))
	})
	b.RegisterCommand(domain.SendPredictions{}.CommandName(), func(cmd domain.Command) (any, []domain.Event, error) {
		return h.sendPredictions(cmd.(domain.SendPredictions))
	})
	b.RegisterCommand(domain.UpdatePredictAll{}.CommandName(), func(cmd domain.Command) (any, []domain.Event, error) {
		return h.updatePredictAll(cmd.(domain.UpdatePredictAll))
	})
	b.RegisterCommand(domain.ForwardToTradingPartner{}.CommandName(), func(cmd domain.Command) (any, []domain.Event, error) {
		return h.forwardToTradingPartner(cmd.(domain.ForwardToTradingPartner))
	})
	b.Subscribe(domain.PredictionsCreated{}.EventName(), func(evt domain.Event) ([]domain.Event, error) {
		e := evt.(domain.PredictionsCreated)
		_, events, err := h.sendPredictions(domain.SendPredictions{LocationID: e.LocationID.String()})
		return events, err
	})
}

func (h *Handlers) createLocation(cmd domain.CreateLocation) (any, []domain.Event, error) {
	if err := domain.ValidateMarketLocationNumber(cmd.ResidualShortMalo); err != nil {
		return nil, nil, fmt.Errorf("residual short: %w", err)
	}
	if (cmd.ResidualLongMalo == "") != (len(cmd.Producers) == 0) {
		return nil, nil, errors.New("residual long market location and producers must both be present or both absent")
	}

	settings := domain.LocationSettings{
		ActiveFrom:                cmd.ActiveFrom,
		ActiveUntil:               cmd.ActiveUntil,
		SendConsumptionToInternal: true,
	}
	if settings.ActiveFrom.IsZero() {
		settings.ActiveFrom = utils.Midnight(h.now(), utils.ZoneBerlin)
	}

	loc := domain.NewLocation(cmd.State, cmd.Alias,
		&domain.MarketLocation{Number: cmd.ResidualShortMalo, Measurand: domain.MeasurandPositive},
		settings)

	if cmd.ResidualLongMalo != "" {
		if err := domain.ValidateMarketLocationNumber(cmd.ResidualLongMalo); err != nil {
			return nil, nil, fmt.Errorf("residual long: %w", err)
		}
		loc.ResidualLong = &domain.MarketLocation{Number: cmd.ResidualLongMalo, Measurand: domain.MeasurandNegative}
	}
	for _, def := range cmd.Producers {
		if err := domain.ValidateMarketLocationNumber(def.MarketLocationNumber); err != nil {
			return nil, nil, fmt.Errorf("producer %s: %w", def.Name, err)
		}
		loc.AddProducer(&domain.Producer{
			ID:                     uuid.New(),
			Name:                   def.Name,
			MarketLocation:         &domain.MarketLocation{Number: def.MarketLocationNumber, Measurand: domain.MeasurandNegative},
			PrognosisDataRetriever: def.PrognosisDataRetriever,
		})
	}

	uow, err := h.uow()
	if err != nil {
		return nil, nil, err
	}
	defer uow.Rollback()
	if err := uow.Locations().Add(loc); err != nil {
		return nil, nil, err
	}
	events, err := uow.Commit()
	if err != nil {
		return nil, nil, err
	}
	h.log.Info().Str("location", loc.ID.String()).Str("alias", loc.Alias).Msg("Created location")
	return loc, events, nil
}

func (h *Handlers) updateLocationSettings(cmd domain.UpdateLocationSettings) (any, []domain.Event, error) {
	uow, loc, err := h.getLocation(cmd.LocationID)
	if err != nil {
		return nil, nil, err
	}
	defer uow.Rollback()

	loc.Settings = cmd.Settings
	if err := uow.Locations().Update(loc); err != nil {
		return nil, nil, err
	}
	events, err := uow.Commit()
	return loc, events, err
}

func (h *Handlers) updateHistoricData(cmd domain.UpdateHistoricData) (any, []domain.Event, error) {
	uow, loc, err := h.getLocation(cmd.LocationID)
	if err != nil {
		return nil, nil, err
	}
	defer uow.Rollback()

	ctx := context.Background()
	updated := false
	var badData error
	fetch := func(ml *domain.MarketLocation) {
		if badData != nil {
			return
		}
		series, err := h.metering.GetData(ctx, ml.Number, ml.Measurand, time.Time{}, time.Time{})
		if err != nil {
			if isDataIntegrityError(err) {
				badData = fmt.Errorf("market location %s: %w", ml.Number, err)
				return
			}
			// transient failure: stale data for this cycle beats aborting
			// the location
			h.log.Error().Str("malo", ml.Number).Err(err).Msg("Could not get historic data")
			return
		}
		ml.HistoricLoadData = domain.NewHistoricLoadData(series)
		updated = true
	}

	fetch(loc.ResidualShort)
	if loc.HasProduction() && loc.ResidualLong != nil {
		fetch(loc.ResidualLong)
	}
	for _, p := range loc.Producers {
		fetch(p.MarketLocation)
	}
	if badData != nil {
		return nil, nil, badData
	}
	if updated {
		loc.MarkHistoricDataUpdated()
	}

	if err := uow.Locations().Update(loc); err != nil {
		return nil, nil, err
	}
	events, err := uow.Commit()
	return nil, events, err
}

func (h *Handlers) calculatePredictions(cmd domain.CalculatePredictions) (any, []domain.Event, error) {
	uow, loc, err := h.getLocation(cmd.LocationID)
	if err != nil {
		return nil, nil, err
	}
	defer uow.Rollback()

	start, end, ok := loc.PredictionWindow(h.now())
	if !ok {
		h.log.Info().Str("location", loc.ID.String()).Msg("Location outside activation window, no predictions due")
		return nil, nil, nil
	}

	consumption, err := loc.CalculateLocalConsumption()
	if err != nil {
		if errors.Is(err, domain.ErrHistoricDataUnavailable) {
			h.log.Warn().Str("location", loc.ID.String()).Msg("No historic data yet, skipping prediction")
			return nil, nil, nil
		}
		return nil, nil, err
	}

	forecast, err := h.predictor.Predict(consumption, loc.State, predictor.Window{Start: start, End: end})
	if err != nil {
		h.log.Error().Str("location", loc.ID.String()).Err(err).Msg("Could not create consumption prediction")
		return nil, nil, nil
	}
	loc.AddPrediction(domain.NewPrediction(domain.PredictionConsumption, forecast))

	incomplete := false
	if loc.HasProduction() {
		ctx := context.Background()
		for _, producer := range loc.Producers {
			series, err := h.retrievers.FetchProduction(ctx, producer, start, end)
			if err != nil {
				if isDataIntegrityError(err) {
					return nil, nil, fmt.Errorf("production forecast for producer %s: %w", producer.Name, err)
				}
				h.log.Error().Str("location", loc.ID.String()).Str("producer", producer.Name).Err(err).
					Msg("Could not retrieve production forecast")
				incomplete = true
				continue
			}
			pred := domain.NewPrediction(domain.PredictionProduction, series)
			id := producer.ID
			pred.Producer = &id
			loc.AddPrediction(pred)
		}
	}

	// netting residuals against a partial production total would count the
	// missing producer's generation as grid withdrawal
	if incomplete {
		h.log.Warn().Str("location", loc.ID.String()).Msg("Production forecast incomplete, no residual loads this cycle")
	} else if err := loc.CalculateResidualLoads(); err != nil {
		h.log.Error().Str("location", loc.ID.String()).Err(err).Msg("Could not calculate residual loads")
	}
	for _, t := range []domain.PredictionType{
		domain.PredictionConsumption, domain.PredictionProduction,
		domain.PredictionResidualShort, domain.PredictionResidualLong,
	} {
		loc.DeleteOldestPredictions(t, keepPredictionsPerType)
	}

	if err := uow.Locations().Update(loc); err != nil {
		return nil, nil, err
	}
	events, err := uow.Commit()
	return nil, events, err
}

func (h *Handlers) sendPredictions(cmd domain.SendPredictions) (any, []domain.Event, error) {
	if !h.sendEnabled {
		return nil, nil, nil
	}
	uow, loc, err := h.getLocation(cmd.LocationID)
	if err != nil {
		return nil, nil, err
	}
	defer uow.Rollback()

	if !loc.Settings.SendConsumptionToInternal {
		return nil, nil, nil
	}
	short := loc.MostRecentPrediction(domain.PredictionResidualShort, domain.Eligibility{})
	if short == nil {
		return nil, nil, nil
	}

	now := h.now()
	filename := fmt.Sprintf("%s_residuallast_prognose_%s.csv", loc.ResidualShort.Number, now.Format("20060102"))
	data := delivery.RenderInternalCSV(short.Series)
	if !h.sender.SendToInternal(context.Background(), data, filename, h.recipient) {
		h.log.Warn().Str("location", loc.ID.String()).Msg("Internal delivery declined, no shipment recorded")
		return nil, nil, nil
	}
	// the whole forecast generation clears the internal deadline together;
	// the partner forward gates on these shipments
	short.RecordShipment(domain.ReceiverInternalFahrplanmanagement, now)
	for _, p := range []*domain.Prediction{
		loc.MostRecentPrediction(domain.PredictionConsumption, domain.Eligibility{}),
		loc.MostRecentPrediction(domain.PredictionResidualLong, domain.Eligibility{}),
	} {
		if p != nil {
			p.RecordShipment(domain.ReceiverInternalFahrplanmanagement, now)
		}
	}
	for _, p := range loc.EligibleProductionPredictions(domain.Eligibility{}) {
		p.RecordShipment(domain.ReceiverInternalFahrplanmanagement, now)
	}

	if err := uow.Locations().Update(loc); err != nil {
		return nil, nil, err
	}
	events, err := uow.Commit()
	return nil, events, err
}

func (h *Handlers) updatePredictAll(_ domain.UpdatePredictAll) (any, []domain.Event, error) {
	ids, err := h.allLocationIDs()
	if err != nil {
		return nil, nil, err
	}

	h.log.Info().Int("locations", len(ids)).Msg("Start updating data and creating predictions for all locations")
	var events []domain.Event
	for _, id := range ids {
		// a failing location never aborts its siblings, but a failed data
		// update disqualifies the location for this cycle
		_, evts, err := h.updateHistoricData(domain.UpdateHistoricData{LocationID: id})
		if err != nil {
			h.log.Error().Str("location", id).Err(err).Msg("Historic update failed, skipping location this cycle")
			continue
		}
		events = append(events, evts...)
		if _, evts, err := h.calculatePredictions(domain.CalculatePredictions{LocationID: id}); err != nil {
			h.log.Error().Str("location", id).Err(err).Msg("Prediction failed")
		} else {
			events = append(events, evts...)
		}
	}
	h.log.Info().Msg("Finished updating data and creating predictions for all locations")
	return nil, events, nil
}

// forwardToTradingPartner builds the combined eigenverbrauch and
// residual-long files across all locations and uploads one file per UTC
// forecast day. Only predictions that cleared the internal gate closure are
// eligible unless the command overrides the gate.
func (h *Handlers) forwardToTradingPartner(cmd domain.ForwardToTradingPartner) (any, []domain.Event, error) {
	uow, err := h.uow()
	if err != nil {
		return nil, nil, err
	}
	defer uow.Rollback()

	locs, err := uow.Locations().GetAll()
	if err != nil {
		return nil, nil, err
	}

	now := h.now()
	elig := domain.Eligibility{
		Receiver:   domain.ReceiverInternalFahrplanmanagement,
		SentBefore: delivery.GateClosure(domain.ReceiverInternalFahrplanmanagement, now),
		Override:   cmd.Override,
	}

	var eigenCols, longCols []delivery.Column
	var eigenFeeds, longFeeds []*domain.Prediction
	for _, loc := range locs {
		if !loc.HasProduction() {
			continue
		}
		if loc.Settings.SendEigenverbrauchToPartner {
			own, err := loc.PredictedOwnConsumption(elig)
			if err != nil {
				h.log.Warn().Str("location", loc.ID.String()).Err(err).Msg("No eligible own consumption to forward")
			} else {
				eigenCols = append(eigenCols, delivery.Column{ID: loc.ResidualShort.Number, Series: own})
				eigenFeeds = append(eigenFeeds, loc.MostRecentPrediction(domain.PredictionConsumption, elig))
				eigenFeeds = append(eigenFeeds, loc.EligibleProductionPredictions(elig)...)
			}
		}
		if loc.Settings.SendResidualLongToPartner && loc.ResidualLong != nil {
			long := loc.MostRecentPrediction(domain.PredictionResidualLong, elig)
			if long == nil {
				h.log.Warn().Str("location", loc.ID.String()).Msg("No eligible residual long to forward")
			} else {
				longCols = append(longCols, delivery.Column{ID: loc.ResidualLong.Number, Series: long.Series})
				longFeeds = append(longFeeds, long)
			}
		}
	}

	ctx := context.Background()
	if len(eigenCols) > 0 {
		if err := h.shipPartnerTables(ctx, eigenCols, eigenFeeds, now, h.sender.SendEigenverbrauchToPartner); err != nil {
			return nil, nil, err
		}
	}
	if len(longCols) > 0 {
		if err := h.shipPartnerTables(ctx, longCols, longFeeds, now, h.sender.SendResidualLongToPartner); err != nil {
			return nil, nil, err
		}
	}

	for _, loc := range locs {
		if err := uow.Locations().Update(loc); err != nil {
			return nil, nil, err
		}
	}
	events, err := uow.Commit()
	return nil, events, err
}

// shipPartnerTables delivers one table per forecast day and records a
// shipment on every feeding prediction for each day that went out.
func (h *Handlers) shipPartnerTables(ctx context.Context, cols []delivery.Column, feeds []*domain.Prediction,
	now time.Time, send func(context.Context, []byte, time.Time) bool) error {

	tables, err := delivery.PartitionForPartner(cols, now, h.log)
	if err != nil {
		return err
	}
	for _, dt := range tables {
		if !send(ctx, dt.Table.RenderPartnerCSV(), dt.Date) {
			h.log.Warn().Time("day", dt.Date).Msg("Partner delivery declined, no shipment recorded")
			continue
		}
		for _, p := range feeds {
			if p != nil {
				p.RecordShipment(domain.ReceiverEnergyTradingPartner, now)
			}
		}
	}
	return nil
}

// isDataIntegrityError reports whether a retrieval failed on the data itself
// rather than on the transport. Integrity failures disqualify the location
// for the cycle instead of leaving a single component stale.
func isDataIntegrityError(err error) bool {
	var noMatch *exchange.NoMatchingAsset
	var conflict *exchange.ConflictingSourceData
	return errors.As(err, &noMatch) || errors.As(err, &conflict)
}

func (h *Handlers) getLocation(id string) (storage.UnitOfWork, *domain.Location, error) {
	locID, err := uuid.Parse(id)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid location id %q: %w", id, err)
	}
	uow, err := h.uow()
	if err != nil {
		return nil, nil, err
	}
	loc, err := uow.Locations().Get(locID)
	if err != nil {
		_ = uow.Rollback()
		return nil, nil, err
	}
	if loc == nil {
		_ = uow.Rollback()
		return nil, nil, fmt.Errorf("location %s not found", id)
	}
	return uow, loc, nil
}

func (h *Handlers) allLocationIDs() ([]string, error) {
	uow, err := h.uow()
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()
	locs, err := uow.Locations().GetAll()
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(locs))
	for i, loc := range locs {
		ids[i] = loc.ID.String()
	}
	return ids, nil
}
