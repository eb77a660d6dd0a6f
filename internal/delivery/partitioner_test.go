package delivery

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltatlas/prognos/internal/domain"
	"github.com/voltatlas/prognos/internal/timeseries"
	"github.com/voltatlas/prognos/internal/utils"
)

// kwSeriesOverDays builds an hourly kW series covering full UTC days starting
// at the given midnight.
func kwSeriesOverDays(t *testing.T, start time.Time, days int, valueKW float64) *timeseries.Series {
	t.Helper()
	var points []timeseries.Point
	for i := 0; i < days*24; i++ {
		points = append(points, timeseries.Point{Time: start.Add(time.Duration(i) * time.Hour), Value: valueKW})
	}
	s, err := timeseries.New(points, utils.ZoneUTC, timeseries.Schema{})
	require.NoError(t, err)
	return s
}

func TestPartitionForPartnerProducesSixUTCDayTables(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, utils.ZoneUTC)
	tomorrow := time.Date(2025, 6, 11, 0, 0, 0, 0, utils.ZoneUTC)
	cols := []Column{{ID: "12345678905", Series: kwSeriesOverDays(t, tomorrow, PartnerHorizonDays, 1500)}}

	tables, err := PartitionForPartner(cols, now, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, tables, 6)

	for i, dt := range tables {
		assert.Equal(t, tomorrow.AddDate(0, 0, i), dt.Date)
		assert.Equal(t, 24, dt.Table.Len())
	}

	// 1500 kW renders as 1,5 MW
	assert.Contains(t, string(tables[0].Table.RenderPartnerCSV()), ";1,5\n")
}

func TestPartitionForPartnerSkipsEmptyDays(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, utils.ZoneUTC)
	tomorrow := time.Date(2025, 6, 11, 0, 0, 0, 0, utils.ZoneUTC)
	cols := []Column{{ID: "a", Series: kwSeriesOverDays(t, tomorrow, 2, 1000)}}

	tables, err := PartitionForPartner(cols, now, zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, tables, 2, "horizon days without data are skipped, not delivered empty")
}

func TestPartitionForPartnerRejectsImplausibleUnits(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, utils.ZoneUTC)
	tomorrow := time.Date(2025, 6, 11, 0, 0, 0, 0, utils.ZoneUTC)
	// 20 MW after scaling, above any site in the portfolio
	cols := []Column{{ID: "a", Series: kwSeriesOverDays(t, tomorrow, 1, 20000)}}

	_, err := PartitionForPartner(cols, now, zerolog.Nop())
	assert.Error(t, err)
}

func TestPartitionForPartnerUsesUTCDayBoundaries(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, utils.ZoneUTC)
	// a Berlin-zoned series starting at Berlin midnight: its first two
	// quarter hours still belong to the previous UTC day
	start := time.Date(2025, 6, 12, 0, 0, 0, 0, utils.ZoneBerlin)
	var points []timeseries.Point
	for i := 0; i < 96; i++ {
		points = append(points, timeseries.Point{Time: start.Add(time.Duration(i) * timeseries.Cadence), Value: 100})
	}
	s, err := timeseries.New(points, utils.ZoneBerlin, timeseries.Schema{})
	require.NoError(t, err)

	tables, err := PartitionForPartner([]Column{{ID: "a", Series: s}}, now, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, tables, 2)

	assert.Equal(t, time.Date(2025, 6, 11, 0, 0, 0, 0, utils.ZoneUTC), tables[0].Date)
	assert.Equal(t, 8, tables[0].Table.Len(), "22:00-24:00 UTC of the prior day")
	assert.Equal(t, 88, tables[1].Table.Len())
}

func TestGateClosure(t *testing.T) {
	day := time.Date(2025, 6, 10, 18, 30, 0, 0, utils.ZoneBerlin)

	internal := GateClosure(domain.ReceiverInternalFahrplanmanagement, day)
	assert.Equal(t, time.Date(2025, 6, 10, 11, 45, 0, 0, utils.ZoneBerlin), internal)

	partner := GateClosure(domain.ReceiverEnergyTradingPartner, day)
	assert.Equal(t, time.Date(2025, 6, 10, 13, 0, 0, 0, utils.ZoneBerlin), partner)
}

func TestHorizonDatesStartTomorrow(t *testing.T) {
	now := time.Date(2025, 6, 10, 23, 59, 0, 0, utils.ZoneUTC)
	dates := HorizonDates(now, 3, utils.ZoneUTC)
	require.Len(t, dates, 3)
	assert.Equal(t, time.Date(2025, 6, 11, 0, 0, 0, 0, utils.ZoneUTC), dates[0])
	assert.Equal(t, time.Date(2025, 6, 13, 0, 0, 0, 0, utils.ZoneUTC), dates[2])
}

func TestSplitSeriesByUTCDay(t *testing.T) {
	start := time.Date(2025, 6, 11, 23, 0, 0, 0, utils.ZoneUTC)
	points := []timeseries.Point{
		{Time: start, Value: 1},
		{Time: start.Add(2 * time.Hour), Value: 2},
	}
	s, err := timeseries.New(points, utils.ZoneBerlin, timeseries.Schema{})
	require.NoError(t, err)

	days := SplitSeriesByUTCDay(s)
	require.Len(t, days, 2)
	assert.Equal(t, time.Date(2025, 6, 11, 0, 0, 0, 0, utils.ZoneUTC), days[0].Date)
	assert.Equal(t, time.Date(2025, 6, 12, 0, 0, 0, 0, utils.ZoneUTC), days[1].Date)
}
