package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltatlas/prognos/internal/timeseries"
	"github.com/voltatlas/prognos/internal/utils"
)

const (
	testShortMalo    = "12345678905"
	testLongMalo     = "98765432105"
	testProducerMalo = "55555555555"
)

func berlinDate(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, utils.ZoneBerlin)
}

func seriesOf(t *testing.T, start time.Time, values ...float64) *timeseries.Series {
	t.Helper()
	points := make([]timeseries.Point, len(values))
	for i, v := range values {
		points[i] = timeseries.Point{Time: start.Add(time.Duration(i) * timeseries.Cadence), Value: v}
	}
	s, err := timeseries.New(points, utils.ZoneBerlin, timeseries.Schema{})
	require.NoError(t, err)
	return s
}

func newTestLocation() *Location {
	loc := NewLocation(StateBayern, "test site",
		&MarketLocation{Number: testShortMalo, Measurand: MeasurandPositive},
		LocationSettings{ActiveFrom: berlinDate(2025, 1, 1, 0, 0), SendConsumptionToInternal: true})
	loc.DrainEvents()
	return loc
}

func addProduction(loc *Location) *Producer {
	loc.ResidualLong = &MarketLocation{Number: testLongMalo, Measurand: MeasurandNegative}
	producer := &Producer{
		ID:                     uuid.New(),
		Name:                   "pv roof",
		MarketLocation:         &MarketLocation{Number: testProducerMalo, Measurand: MeasurandNegative},
		PrognosisDataRetriever: RetrieverEnercastSFTP,
	}
	loc.AddProducer(producer)
	return producer
}

func TestNewLocationRaisesCreated(t *testing.T) {
	loc := NewLocation(StateBerlin, "new", &MarketLocation{Number: testShortMalo}, LocationSettings{})

	events := loc.DrainEvents()
	require.Len(t, events, 1)
	created, ok := events[0].(LocationCreated)
	require.True(t, ok)
	assert.Equal(t, loc.ID, created.LocationID)
	assert.Empty(t, loc.DrainEvents(), "drain clears the event buffer")
}

func TestCalculateLocalConsumptionWithoutProduction(t *testing.T) {
	loc := newTestLocation()
	start := berlinDate(2025, 6, 1, 0, 0)
	short := seriesOf(t, start, 10, 20, 30)
	loc.ResidualShort.HistoricLoadData = NewHistoricLoadData(short)

	consumption, err := loc.CalculateLocalConsumption()
	require.NoError(t, err)
	assert.True(t, consumption.Equal(short), "consumption-only locations consume exactly their withdrawal")
}

func TestCalculateLocalConsumptionWithProduction(t *testing.T) {
	loc := newTestLocation()
	producer := addProduction(loc)
	start := berlinDate(2025, 6, 1, 0, 0)

	loc.ResidualShort.HistoricLoadData = NewHistoricLoadData(seriesOf(t, start, 10, 10))
	producer.MarketLocation.HistoricLoadData = NewHistoricLoadData(seriesOf(t, start, 50, 30))

	// without feed-in metering: production + residual short
	consumption, err := loc.CalculateLocalConsumption()
	require.NoError(t, err)
	v0, _ := consumption.At(start)
	v1, _ := consumption.At(start.Add(timeseries.Cadence))
	assert.Equal(t, 60.0, v0)
	assert.Equal(t, 40.0, v1)

	// with feed-in metering: production - residual long + residual short
	loc.ResidualLong.HistoricLoadData = NewHistoricLoadData(seriesOf(t, start, 20, 5))
	consumption, err = loc.CalculateLocalConsumption()
	require.NoError(t, err)
	v0, _ = consumption.At(start)
	v1, _ = consumption.At(start.Add(timeseries.Cadence))
	assert.Equal(t, 40.0, v0)
	assert.Equal(t, 35.0, v1)
}

func TestCalculateLocalConsumptionRequiresHistoricData(t *testing.T) {
	loc := newTestLocation()
	_, err := loc.CalculateLocalConsumption()
	assert.ErrorIs(t, err, ErrHistoricDataUnavailable)

	// with production, missing producer history is just as fatal
	loc.ResidualShort.HistoricLoadData = NewHistoricLoadData(seriesOf(t, berlinDate(2025, 6, 1, 0, 0), 1))
	addProduction(loc)
	_, err = loc.CalculateLocalConsumption()
	assert.ErrorIs(t, err, ErrHistoricDataUnavailable)
}

func TestPredictionWindowDefaults(t *testing.T) {
	loc := newTestLocation()
	now := berlinDate(2025, 6, 10, 10, 30)

	start, end, ok := loc.PredictionWindow(now)
	require.True(t, ok)
	assert.Equal(t, berlinDate(2025, 6, 11, 0, 0), start)
	assert.Equal(t, berlinDate(2025, 6, 18, 0, 0), end)
}

func TestPredictionWindowFarFutureActivation(t *testing.T) {
	loc := newTestLocation()
	loc.Settings.ActiveFrom = berlinDate(2025, 7, 30, 0, 0)

	_, _, ok := loc.PredictionWindow(berlinDate(2025, 6, 10, 10, 30))
	assert.False(t, ok, "a location activating 50 days out has no predictions due")
}

func TestPredictionWindowExpired(t *testing.T) {
	loc := newTestLocation()
	until := berlinDate(2025, 6, 5, 0, 0)
	loc.Settings.ActiveUntil = &until

	_, _, ok := loc.PredictionWindow(berlinDate(2025, 6, 10, 10, 30))
	assert.False(t, ok)
}

func TestPredictionWindowClampsToActivation(t *testing.T) {
	loc := newTestLocation()
	loc.Settings.ActiveFrom = berlinDate(2025, 6, 13, 0, 0)
	until := berlinDate(2025, 6, 15, 0, 0)
	loc.Settings.ActiveUntil = &until

	start, end, ok := loc.PredictionWindow(berlinDate(2025, 6, 10, 10, 30))
	require.True(t, ok)
	assert.Equal(t, berlinDate(2025, 6, 13, 0, 0), start)
	assert.Equal(t, berlinDate(2025, 6, 15, 0, 0), end)
}

func TestCalculateResidualLoadsConsumptionOnly(t *testing.T) {
	loc := newTestLocation()
	start := berlinDate(2025, 6, 11, 0, 0)
	loc.AddPrediction(NewPrediction(PredictionConsumption, seriesOf(t, start, 42, 42, 42, 42)))

	require.NoError(t, loc.CalculateResidualLoads())

	short := loc.MostRecentPrediction(PredictionResidualShort, Eligibility{})
	require.NotNil(t, short)
	require.Equal(t, 4, short.Series.Len())
	for _, p := range short.Series.Points() {
		assert.Equal(t, 42.0, p.Value, "without production the residual short is the consumption itself")
	}
	assert.Nil(t, loc.MostRecentPrediction(PredictionResidualLong, Eligibility{}),
		"no residual long without production")

	events := loc.DrainEvents()
	require.Len(t, events, 1)
	assert.IsType(t, PredictionsCreated{}, events[0])
}

func TestCalculateResidualLoadsWithProduction(t *testing.T) {
	loc := newTestLocation()
	addProduction(loc)
	start := berlinDate(2025, 6, 11, 0, 0)
	loc.AddPrediction(NewPrediction(PredictionConsumption, seriesOf(t, start, 100, 100)))
	loc.AddPrediction(NewPrediction(PredictionProduction, seriesOf(t, start, 120, 80)))

	require.NoError(t, loc.CalculateResidualLoads())

	short := loc.MostRecentPrediction(PredictionResidualShort, Eligibility{})
	require.NotNil(t, short)
	v0, _ := short.Series.At(start)
	v1, _ := short.Series.At(start.Add(timeseries.Cadence))
	assert.Equal(t, 0.0, v0)
	assert.Equal(t, 20.0, v1)

	long := loc.MostRecentPrediction(PredictionResidualLong, Eligibility{})
	require.NotNil(t, long)
	v0, _ = long.Series.At(start)
	v1, _ = long.Series.At(start.Add(timeseries.Cadence))
	assert.Equal(t, 20.0, v0)
	assert.Equal(t, 0.0, v1)

	for _, p := range append(short.Series.Points(), long.Series.Points()...) {
		assert.GreaterOrEqual(t, p.Value, 0.0, "residual loads are never negative")
	}
}

func TestCalculateResidualLoadsClampsToActivationWindow(t *testing.T) {
	loc := newTestLocation()
	until := berlinDate(2025, 6, 12, 0, 0)
	loc.Settings.ActiveUntil = &until

	// consumption runs a full quarter hour past the activation end
	start := berlinDate(2025, 6, 11, 23, 30)
	loc.AddPrediction(NewPrediction(PredictionConsumption, seriesOf(t, start, 1, 1, 1, 1)))

	require.NoError(t, loc.CalculateResidualLoads())
	short := loc.MostRecentPrediction(PredictionResidualShort, Eligibility{})
	require.NotNil(t, short)
	assert.True(t, short.Series.End().Before(until), "values past the activation window are cut off")
}

func TestCalculateResidualLoadsRequiresConsumption(t *testing.T) {
	loc := newTestLocation()
	assert.Error(t, loc.CalculateResidualLoads())
}

func TestCalculateResidualLoadsRequiresProductionForecast(t *testing.T) {
	loc := newTestLocation()
	addProduction(loc)
	loc.AddPrediction(NewPrediction(PredictionConsumption, seriesOf(t, berlinDate(2025, 6, 11, 0, 0), 42, 42)))

	assert.Error(t, loc.CalculateResidualLoads())
	assert.Nil(t, loc.MostRecentPrediction(PredictionResidualShort, Eligibility{}),
		"a missing production forecast must not surface as pure consumption")
}

func TestMostRecentPredictionPicksNewest(t *testing.T) {
	loc := newTestLocation()
	start := berlinDate(2025, 6, 11, 0, 0)

	older := NewPrediction(PredictionConsumption, seriesOf(t, start, 1))
	older.Created = berlinDate(2025, 6, 10, 8, 0)
	newer := NewPrediction(PredictionConsumption, seriesOf(t, start, 2))
	newer.Created = berlinDate(2025, 6, 10, 9, 0)
	loc.AddPrediction(newer)
	loc.AddPrediction(older)

	best := loc.MostRecentPrediction(PredictionConsumption, Eligibility{})
	require.NotNil(t, best)
	assert.Equal(t, newer.ID, best.ID)
}

func TestMostRecentPredictionTieBreaksByInsertionOrder(t *testing.T) {
	loc := newTestLocation()
	start := berlinDate(2025, 6, 11, 0, 0)
	created := berlinDate(2025, 6, 10, 8, 0)

	first := NewPrediction(PredictionConsumption, seriesOf(t, start, 1))
	first.Created = created
	second := NewPrediction(PredictionConsumption, seriesOf(t, start, 2))
	second.Created = created
	loc.AddPrediction(first)
	loc.AddPrediction(second)

	best := loc.MostRecentPrediction(PredictionConsumption, Eligibility{})
	require.NotNil(t, best)
	assert.Equal(t, second.ID, best.ID)
}

func TestMostRecentPredictionEligibilityGate(t *testing.T) {
	loc := newTestLocation()
	start := berlinDate(2025, 6, 11, 0, 0)
	pred := NewPrediction(PredictionResidualLong, seriesOf(t, start, 5))
	loc.AddPrediction(pred)

	cutoff := berlinDate(2025, 6, 10, 11, 45)
	elig := Eligibility{Receiver: ReceiverInternalFahrplanmanagement, SentBefore: cutoff}

	assert.Nil(t, loc.MostRecentPrediction(PredictionResidualLong, elig),
		"a prediction never shipped to the receiver is not eligible")

	// a shipment after the cutoff does not qualify either
	pred.RecordShipment(ReceiverInternalFahrplanmanagement, cutoff.Add(time.Hour))
	assert.Nil(t, loc.MostRecentPrediction(PredictionResidualLong, elig))

	// override skips the gate entirely
	override := elig
	override.Override = true
	assert.NotNil(t, loc.MostRecentPrediction(PredictionResidualLong, override))

	// a shipment before the cutoff clears the gate
	pred.RecordShipment(ReceiverInternalFahrplanmanagement, cutoff.Add(-time.Hour))
	assert.NotNil(t, loc.MostRecentPrediction(PredictionResidualLong, elig))
}

func TestShippedTo(t *testing.T) {
	pred := NewPrediction(PredictionResidualShort, nil)
	at := berlinDate(2025, 6, 10, 9, 0)
	pred.RecordShipment(ReceiverInternalFahrplanmanagement, at)

	assert.True(t, pred.ShippedTo(ReceiverInternalFahrplanmanagement, time.Time{}),
		"zero cutoff accepts any shipment")
	assert.False(t, pred.ShippedTo(ReceiverEnergyTradingPartner, time.Time{}))
	assert.True(t, pred.ShippedTo(ReceiverInternalFahrplanmanagement, at.Add(time.Minute)))
	assert.False(t, pred.ShippedTo(ReceiverInternalFahrplanmanagement, at), "cutoff is strict")
}

func TestDeleteOldestPredictions(t *testing.T) {
	loc := newTestLocation()
	start := berlinDate(2025, 6, 11, 0, 0)
	var preds []*Prediction
	for i := 0; i < 5; i++ {
		p := NewPrediction(PredictionConsumption, seriesOf(t, start, float64(i)))
		p.Created = berlinDate(2025, 6, 10, 8+i, 0)
		loc.AddPrediction(p)
		preds = append(preds, p)
	}
	other := NewPrediction(PredictionResidualShort, seriesOf(t, start, 9))
	loc.AddPrediction(other)

	loc.DeleteOldestPredictions(PredictionConsumption, 2)

	require.Len(t, loc.Predictions, 3)
	assert.Contains(t, loc.Predictions, preds[3])
	assert.Contains(t, loc.Predictions, preds[4])
	assert.Contains(t, loc.Predictions, other, "other types are untouched")
}

func TestPredictedOwnConsumptionIsElementwiseMinimum(t *testing.T) {
	loc := newTestLocation()
	addProduction(loc)
	start := berlinDate(2025, 6, 11, 0, 0)
	consumption := seriesOf(t, start, 10, 30, 20)
	production := seriesOf(t, start, 20, 20, 20)
	loc.AddPrediction(NewPrediction(PredictionConsumption, consumption))
	loc.AddPrediction(NewPrediction(PredictionProduction, production))

	own, err := loc.PredictedOwnConsumption(Eligibility{})
	require.NoError(t, err)
	for _, p := range own.Points() {
		c, _ := consumption.At(p.Time)
		pr, _ := production.At(p.Time)
		assert.LessOrEqual(t, p.Value, c)
		assert.LessOrEqual(t, p.Value, pr)
	}
	v, _ := own.At(start.Add(timeseries.Cadence))
	assert.Equal(t, 20.0, v)
}

func TestPredictedOwnConsumptionRequiresProduction(t *testing.T) {
	loc := newTestLocation()
	_, err := loc.PredictedOwnConsumption(Eligibility{})
	assert.Error(t, err)
}

func TestProductionTotalSumsNewestPerProducer(t *testing.T) {
	loc := newTestLocation()
	producerA := addProduction(loc)
	producerB := &Producer{
		ID:                     uuid.New(),
		Name:                   "wind",
		MarketLocation:         &MarketLocation{Number: testProducerMalo, Measurand: MeasurandNegative},
		PrognosisDataRetriever: RetrieverTradingPartnerSFTP,
	}
	loc.AddProducer(producerB)

	start := berlinDate(2025, 6, 11, 0, 0)
	stale := NewPrediction(PredictionProduction, seriesOf(t, start, 999))
	stale.Created = berlinDate(2025, 6, 9, 8, 0)
	stale.Producer = &producerA.ID
	fresh := NewPrediction(PredictionProduction, seriesOf(t, start, 30))
	fresh.Created = berlinDate(2025, 6, 10, 8, 0)
	fresh.Producer = &producerA.ID
	windPred := NewPrediction(PredictionProduction, seriesOf(t, start, 12))
	windPred.Created = berlinDate(2025, 6, 10, 8, 0)
	windPred.Producer = &producerB.ID
	loc.AddPrediction(stale)
	loc.AddPrediction(fresh)
	loc.AddPrediction(windPred)

	loc.AddPrediction(NewPrediction(PredictionConsumption, seriesOf(t, start, 100)))
	require.NoError(t, loc.CalculateResidualLoads())

	short := loc.MostRecentPrediction(PredictionResidualShort, Eligibility{})
	require.NotNil(t, short)
	v, _ := short.Series.At(start)
	assert.Equal(t, 58.0, v, "only the newest prediction per producer enters the sum")
}
