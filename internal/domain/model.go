package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/voltatlas/prognos/internal/timeseries"
	"github.com/voltatlas/prognos/internal/utils"
)

// PrognosisHorizonDays is the forward-looking window for the internal
// schedule management forecast.
const PrognosisHorizonDays = 7

// ErrHistoricDataUnavailable is returned when a consumption reconstruction is
// requested before any historic load data has been loaded. The caller skips
// the location for this cycle; the model never guesses.
var ErrHistoricDataUnavailable = errors.New("no historic load data available")

// HistoricLoadData is the most recent metered series for a market location.
type HistoricLoadData struct {
	ID      uuid.UUID
	Updated time.Time
	Series  *timeseries.Series
}

// NewHistoricLoadData wraps a metered series with identity and freshness.
func NewHistoricLoadData(series *timeseries.Series) *HistoricLoadData {
	return &HistoricLoadData{ID: uuid.New(), Updated: time.Now(), Series: series}
}

// MarketLocation identifies a physical metering point.
type MarketLocation struct {
	Number           string
	Measurand        Measurand
	HistoricLoadData *HistoricLoadData
}

// historicSeries returns the metered series, or nil when none is loaded.
func (m *MarketLocation) historicSeries() *timeseries.Series {
	if m == nil || m.HistoricLoadData == nil {
		return nil
	}
	return m.HistoricLoadData.Series
}

// Producer is a production role attached to a market location within a
// location. The retriever selector names the external forecast source to
// query for this asset.
type Producer struct {
	ID                     uuid.UUID
	Name                   string
	MarketLocation         *MarketLocation
	PrognosisDataRetriever RetrieverKind
}

// LocationSettings is the immutable-per-update configuration of a location.
// The activation window is half-open: [ActiveFrom, ActiveUntil).
type LocationSettings struct {
	ActiveFrom                  time.Time
	ActiveUntil                 *time.Time
	SendConsumptionToInternal   bool
	SendEigenverbrauchToPartner bool
	SendResidualLongToPartner   bool
}

// PredictionShipment records that a prediction was transmitted to a receiver
// at a point in time. Shipments are appended, never edited or removed; they
// are the audit trail and the input to re-send eligibility.
type PredictionShipment struct {
	ID       uuid.UUID
	Receiver Receiver
	Created  time.Time
}

// Prediction is an immutable forecast series. Corrections are new
// predictions; recency is decided by the creation timestamp.
type Prediction struct {
	ID        uuid.UUID
	Type      PredictionType
	Created   time.Time
	Series    *timeseries.Series
	Producer  *uuid.UUID // origin producer for production predictions
	Shipments []PredictionShipment
}

// NewPrediction creates a prediction stamped with the current time.
func NewPrediction(t PredictionType, series *timeseries.Series) *Prediction {
	return &Prediction{ID: uuid.New(), Type: t, Created: time.Now(), Series: series}
}

// RecordShipment appends a shipment fact.
func (p *Prediction) RecordShipment(receiver Receiver, at time.Time) {
	p.Shipments = append(p.Shipments, PredictionShipment{ID: uuid.New(), Receiver: receiver, Created: at})
}

// ShippedTo reports whether the prediction has at least one shipment to the
// receiver created strictly before the cutoff. A zero cutoff accepts any
// shipment to that receiver. The comparison is performed in the cutoff's own
// timezone.
func (p *Prediction) ShippedTo(receiver Receiver, before time.Time) bool {
	for _, s := range p.Shipments {
		if s.Receiver != receiver {
			continue
		}
		if before.IsZero() || s.Created.In(before.Location()).Before(before) {
			return true
		}
	}
	return false
}

// Eligibility narrows prediction selection to those already cleared for a
// receiver. Override skips the gate entirely.
type Eligibility struct {
	Receiver   Receiver
	SentBefore time.Time
	Override   bool
}

// Location is the aggregate root and unit of consistency. It owns the
// mandatory residual-short market location (grid withdrawal), an optional
// residual-long market location (grid feed-in, present only with
// production), the producers, the settings and the append-only prediction
// history.
type Location struct {
	ID            uuid.UUID
	State         State
	Alias         string
	ResidualShort *MarketLocation
	ResidualLong  *MarketLocation
	Producers     []*Producer
	Settings      LocationSettings
	Predictions   []*Prediction

	events []Event
}

// NewLocation constructs a location with a fresh identity and raises
// LocationCreated.
func NewLocation(state State, alias string, residualShort *MarketLocation, settings LocationSettings) *Location {
	loc := &Location{
		ID:            uuid.New(),
		State:         state,
		Alias:         alias,
		ResidualShort: residualShort,
		Settings:      settings,
	}
	loc.raise(LocationCreated{LocationID: loc.ID})
	return loc
}

// HasProduction reports whether the location has any producers. Presence of
// the residual-long market location is coupled to this: a location either
// has no production at all or has both.
func (l *Location) HasProduction() bool { return len(l.Producers) > 0 }

// AddProducer attaches a producer. Only one producer is supported in the
// legacy consumption-reconstruction path; further producers still take part
// in the forecast-stage production sum.
func (l *Location) AddProducer(p *Producer) {
	l.Producers = append(l.Producers, p)
}

func (l *Location) raise(e Event) { l.events = append(l.events, e) }

// MarkHistoricDataUpdated raises HistoricDataUpdated after a metered-history
// refresh touched at least one market location.
func (l *Location) MarkHistoricDataUpdated() {
	l.raise(HistoricDataUpdated{LocationID: l.ID})
}

// DrainEvents returns and clears the events raised since the last drain.
// The unit of work collects these on commit.
func (l *Location) DrainEvents() []Event {
	out := l.events
	l.events = nil
	return out
}

// CalculateLocalConsumption reconstructs the location's metered consumption
// from historic series. Without production it is the residual-short history
// directly; with feed-in metering folded in it is production plus
// residual-short; with a residual-long meter it is production minus
// residual-long plus residual-short. Only the first producer participates
// here; multi-producer locations are netted at the forecast stage instead.
func (l *Location) CalculateLocalConsumption() (*timeseries.Series, error) {
	short := l.ResidualShort.historicSeries()
	if short == nil {
		return nil, ErrHistoricDataUnavailable
	}
	if !l.HasProduction() {
		return short, nil
	}
	production := l.Producers[0].MarketLocation.historicSeries()
	if production == nil {
		return nil, ErrHistoricDataUnavailable
	}
	long := l.ResidualLong.historicSeries()
	if long == nil {
		return production.Add(short), nil
	}
	return production.Sub(long).Add(short), nil
}

// PredictionWindow clamps the forward-looking horizon [tomorrow, tomorrow+7d)
// in the location's local calendar to the activation window. The zero window
// (ok == false) means the location is expired or not yet active and no
// predictions are due.
func (l *Location) PredictionWindow(now time.Time) (start, end time.Time, ok bool) {
	start = utils.Midnight(now, utils.ZoneBerlin).AddDate(0, 0, 1)
	end = start.AddDate(0, 0, PrognosisHorizonDays)

	activeFrom := utils.Midnight(l.Settings.ActiveFrom, utils.ZoneBerlin)
	if l.Settings.ActiveUntil != nil {
		activeUntil := utils.Midnight(*l.Settings.ActiveUntil, utils.ZoneBerlin)
		if !start.Before(activeUntil) {
			return time.Time{}, time.Time{}, false // expired
		}
		if end.After(activeUntil) {
			end = activeUntil
		}
	}
	if !end.After(activeFrom) {
		return time.Time{}, time.Time{}, false // not yet active
	}
	if start.Before(activeFrom) {
		start = activeFrom
	}
	return start, end, true
}

// clampToActivation slices a series to the activation window and trims the
// gap edges left by the clamp.
func (l *Location) clampToActivation(s *timeseries.Series) *timeseries.Series {
	start := utils.Midnight(l.Settings.ActiveFrom, utils.ZoneBerlin)
	var end time.Time
	if l.Settings.ActiveUntil != nil {
		end = utils.Midnight(*l.Settings.ActiveUntil, utils.ZoneBerlin)
	}
	return s.Slice(start, end).Trim()
}

// AddPrediction appends a prediction to the history.
func (l *Location) AddPrediction(p *Prediction) {
	l.Predictions = append(l.Predictions, p)
}

// DeleteOldestPredictions removes all but the newest keep predictions of the
// given type, by creation timestamp descending.
func (l *Location) DeleteOldestPredictions(t PredictionType, keep int) {
	var ofType []*Prediction
	for _, p := range l.Predictions {
		if p.Type == t {
			ofType = append(ofType, p)
		}
	}
	if len(ofType) <= keep {
		return
	}
	// newest first; ties broken by later insertion
	victims := map[*Prediction]bool{}
	for _, p := range ofType {
		victims[p] = true
	}
	for i := 0; i < keep; i++ {
		var best *Prediction
		for _, p := range ofType {
			if !victims[p] {
				continue
			}
			if best == nil || !p.Created.Before(best.Created) {
				best = p
			}
		}
		delete(victims, best)
	}
	var kept []*Prediction
	for _, p := range l.Predictions {
		if !victims[p] {
			kept = append(kept, p)
		}
	}
	l.Predictions = kept
}

// MostRecentPrediction returns the newest prediction of the given type, or
// nil. With an eligibility receiver set and no override, only predictions
// that already cleared a delivery to that receiver before the cutoff
// qualify. This is the re-send gate: a forecast must have passed one
// delivery deadline before it may be forwarded to a dependent receiver.
func (l *Location) MostRecentPrediction(t PredictionType, elig Eligibility) *Prediction {
	var best *Prediction
	for _, p := range l.Predictions {
		if p.Type != t {
			continue
		}
		if elig.Receiver != "" && !elig.Override && !p.ShippedTo(elig.Receiver, elig.SentBefore) {
			continue
		}
		// equal creation timestamps resolve to the latest appended
		if best == nil || !p.Created.Before(best.Created) {
			best = p
		}
	}
	return best
}

// EligibleProductionPredictions returns the newest eligible production
// prediction per producer, plus eligible production predictions without a
// producer tag. The delivery step records shipments on exactly these.
func (l *Location) EligibleProductionPredictions(elig Eligibility) []*Prediction {
	byProducer := map[uuid.UUID]*Prediction{}
	var anonymous []*Prediction
	for _, p := range l.Predictions {
		if p.Type != PredictionProduction {
			continue
		}
		if elig.Receiver != "" && !elig.Override && !p.ShippedTo(elig.Receiver, elig.SentBefore) {
			continue
		}
		if p.Producer == nil {
			anonymous = append(anonymous, p)
			continue
		}
		cur, ok := byProducer[*p.Producer]
		if !ok || !p.Created.Before(cur.Created) {
			byProducer[*p.Producer] = p
		}
	}
	out := make([]*Prediction, 0, len(byProducer)+len(anonymous))
	for _, p := range byProducer {
		out = append(out, p)
	}
	return append(out, anonymous...)
}

// productionTotal sums all production predictions that pass the eligibility
// filter, newest per producer.
func (l *Location) productionTotal(elig Eligibility) *timeseries.Series {
	var total *timeseries.Series
	for _, p := range l.EligibleProductionPredictions(elig) {
		if total == nil {
			total = p.Series
		} else {
			total = total.Add(p.Series)
		}
	}
	return total
}

// CalculateResidualLoads derives the residual-short and, with production, the
// residual-long prediction from the most recent consumption and production
// predictions. Residuals are clipped to zero (negative withdrawal is not
// meaningful), clamped to the activation window and trimmed before being
// appended. Raises PredictionsCreated.
func (l *Location) CalculateResidualLoads() error {
	consumption := l.MostRecentPrediction(PredictionConsumption, Eligibility{})
	if consumption == nil {
		return errors.New("no consumption prediction available")
	}

	production := l.productionTotal(Eligibility{})
	if l.HasProduction() && production == nil {
		// netting against nothing would book the missing generation as
		// grid withdrawal
		return errors.New("no production prediction available")
	}

	short := consumption.Series
	if production != nil {
		short = consumption.Series.Sub(production)
	}
	short = l.clampToActivation(short.ClipLowerZero())
	l.AddPrediction(NewPrediction(PredictionResidualShort, short))

	if production != nil {
		long := l.clampToActivation(production.Sub(consumption.Series).ClipLowerZero())
		l.AddPrediction(NewPrediction(PredictionResidualLong, long))
	}

	l.raise(PredictionsCreated{LocationID: l.ID})
	return nil
}

// PredictedOwnConsumption is the elementwise minimum of the eligible
// consumption and production predictions, trimmed to the overlapping
// non-gap range. It represents the portion of production consumed on site
// and is only meaningful for locations with production.
func (l *Location) PredictedOwnConsumption(elig Eligibility) (*timeseries.Series, error) {
	if !l.HasProduction() {
		return nil, errors.New("location has no production")
	}
	consumption := l.MostRecentPrediction(PredictionConsumption, elig)
	if consumption == nil {
		return nil, errors.New("no eligible consumption prediction")
	}
	production := l.productionTotal(elig)
	if production == nil {
		return nil, errors.New("no eligible production prediction")
	}
	return consumption.Series.ClipUpper(production).Trim(), nil
}
