package predictor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltatlas/prognos/internal/domain"
	"github.com/voltatlas/prognos/internal/timeseries"
	"github.com/voltatlas/prognos/internal/utils"
)

func historicSeries(t *testing.T, start time.Time, days int, value func(ts time.Time) float64) *timeseries.Series {
	t.Helper()
	var points []timeseries.Point
	for i := 0; i < days*slotsPerDay; i++ {
		ts := start.Add(time.Duration(i) * cadence)
		points = append(points, timeseries.Point{Time: ts, Value: value(ts)})
	}
	s, err := timeseries.New(points, utils.ZoneBerlin, timeseries.Schema{})
	require.NoError(t, err)
	return s
}

func TestPredictConstantHistoryGivesConstantForecast(t *testing.T) {
	// two weeks of constant 42 kW
	start := time.Date(2025, 5, 26, 0, 0, 0, 0, utils.ZoneBerlin)
	historic := historicSeries(t, start, 14, func(time.Time) float64 { return 42 })

	window := Window{
		Start: time.Date(2025, 6, 11, 0, 0, 0, 0, utils.ZoneBerlin),
		End:   time.Date(2025, 6, 13, 0, 0, 0, 0, utils.ZoneBerlin),
	}
	forecast, err := NewProfilePredictor().Predict(historic, domain.StateBayern, window)
	require.NoError(t, err)

	require.Equal(t, 2*slotsPerDay, forecast.Len())
	for _, p := range forecast.Points() {
		assert.Equal(t, 42.0, p.Value)
	}
	assert.Equal(t, window.Start, forecast.Start())
	assert.True(t, forecast.End().Before(window.End), "window end is exclusive")
}

func TestPredictUsesWeekdayProfile(t *testing.T) {
	// May 26 2025 is a Monday; Mondays draw 10 kW, every other day 20 kW
	start := time.Date(2025, 5, 26, 0, 0, 0, 0, utils.ZoneBerlin)
	historic := historicSeries(t, start, 14, func(ts time.Time) float64 {
		if ts.Weekday() == time.Monday {
			return 10
		}
		return 20
	})

	// June 16 2025 is a Monday, June 17 a Tuesday
	window := Window{
		Start: time.Date(2025, 6, 16, 0, 0, 0, 0, utils.ZoneBerlin),
		End:   time.Date(2025, 6, 18, 0, 0, 0, 0, utils.ZoneBerlin),
	}
	forecast, err := NewProfilePredictor().Predict(historic, domain.StateBayern, window)
	require.NoError(t, err)

	monday, ok := forecast.At(time.Date(2025, 6, 16, 12, 0, 0, 0, utils.ZoneBerlin))
	require.True(t, ok)
	assert.Equal(t, 10.0, monday)

	tuesday, ok := forecast.At(time.Date(2025, 6, 17, 12, 0, 0, 0, utils.ZoneBerlin))
	require.True(t, ok)
	assert.Equal(t, 20.0, tuesday)
}

func TestPredictAveragesWithinBucket(t *testing.T) {
	// the same Monday quarter hour observed twice with different values
	start := time.Date(2025, 5, 26, 0, 0, 0, 0, utils.ZoneBerlin)
	points := []timeseries.Point{
		{Time: start, Value: 10},
		{Time: start.AddDate(0, 0, 7), Value: 30},
	}
	historic, err := timeseries.New(points, utils.ZoneBerlin, timeseries.Schema{})
	require.NoError(t, err)

	window := Window{
		Start: time.Date(2025, 6, 16, 0, 0, 0, 0, utils.ZoneBerlin),
		End:   time.Date(2025, 6, 16, 0, 15, 0, 0, utils.ZoneBerlin),
	}
	forecast, err := NewProfilePredictor().Predict(historic, domain.StateBayern, window)
	require.NoError(t, err)
	v, ok := forecast.At(window.Start)
	require.True(t, ok)
	assert.Equal(t, 20.0, v)
}

func TestPredictFallsBackToOverallMean(t *testing.T) {
	// only one observed slot; all other forecast slots fall back to its mean
	start := time.Date(2025, 5, 26, 0, 0, 0, 0, utils.ZoneBerlin)
	historic, err := timeseries.New([]timeseries.Point{{Time: start, Value: 7}}, utils.ZoneBerlin, timeseries.Schema{})
	require.NoError(t, err)

	window := Window{
		Start: time.Date(2025, 6, 17, 0, 0, 0, 0, utils.ZoneBerlin),
		End:   time.Date(2025, 6, 17, 1, 0, 0, 0, utils.ZoneBerlin),
	}
	forecast, err := NewProfilePredictor().Predict(historic, domain.StateBayern, window)
	require.NoError(t, err)
	for _, p := range forecast.Points() {
		assert.Equal(t, 7.0, p.Value)
	}
}

func TestPredictRequiresHistory(t *testing.T) {
	window := Window{
		Start: time.Date(2025, 6, 16, 0, 0, 0, 0, utils.ZoneBerlin),
		End:   time.Date(2025, 6, 17, 0, 0, 0, 0, utils.ZoneBerlin),
	}

	_, err := NewProfilePredictor().Predict(nil, domain.StateBayern, window)
	assert.Error(t, err)

	gapOnly, err := timeseries.New([]timeseries.Point{
		{Time: time.Date(2025, 6, 1, 0, 0, 0, 0, utils.ZoneBerlin), Gap: true},
	}, utils.ZoneBerlin, timeseries.Schema{AllowGaps: true})
	require.NoError(t, err)
	_, err = NewProfilePredictor().Predict(gapOnly, domain.StateBayern, window)
	assert.Error(t, err)
}
