package timeseries

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	berlin = mustZone("Europe/Berlin")
	base   = time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
)

func mustZone(name string) *time.Location {
	zone, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return zone
}

// quarterHours builds consecutive 15-minute points starting at start.
func quarterHours(start time.Time, values ...float64) []Point {
	points := make([]Point, len(values))
	for i, v := range values {
		points[i] = Point{Time: start.Add(time.Duration(i) * Cadence), Value: v}
	}
	return points
}

func mustSeries(t *testing.T, points []Point, zone *time.Location, schema Schema) *Series {
	t.Helper()
	s, err := New(points, zone, schema)
	require.NoError(t, err)
	return s
}

func TestNewSortsUnorderedPoints(t *testing.T) {
	points := []Point{
		{Time: base.Add(30 * time.Minute), Value: 3},
		{Time: base, Value: 1},
		{Time: base.Add(15 * time.Minute), Value: 2},
	}
	s := mustSeries(t, points, time.UTC, Schema{})

	assert.Equal(t, base, s.Start())
	assert.Equal(t, base.Add(30*time.Minute), s.End())
	v, ok := s.At(base.Add(15 * time.Minute))
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
}

func TestNewRejectsDuplicateTimestamps(t *testing.T) {
	points := []Point{
		{Time: base, Value: 1},
		{Time: base, Value: 2},
	}
	_, err := New(points, time.UTC, Schema{})
	var violation *SchemaViolation
	require.ErrorAs(t, err, &violation)
	assert.Contains(t, violation.Reason, "duplicate")
}

func TestNewRejectsTimestampsBeforeDomainFloor(t *testing.T) {
	points := []Point{{Time: time.Date(2019, 12, 31, 23, 45, 0, 0, time.UTC), Value: 1}}
	_, err := New(points, time.UTC, Schema{})
	var violation *SchemaViolation
	require.ErrorAs(t, err, &violation)
	assert.Contains(t, violation.Reason, "domain floor")
}

func TestNewNegativeValues(t *testing.T) {
	points := []Point{{Time: base, Value: -5}}

	_, err := New(points, time.UTC, Schema{})
	var violation *SchemaViolation
	require.ErrorAs(t, err, &violation)

	s, err := New(points, time.UTC, Schema{AllowSigned: true})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
}

func TestNewGapPoints(t *testing.T) {
	points := []Point{
		{Time: base, Value: 1},
		{Time: base.Add(Cadence), Gap: true},
	}

	_, err := New(points, time.UTC, Schema{})
	var violation *SchemaViolation
	require.ErrorAs(t, err, &violation)

	s, err := New(points, time.UTC, Schema{AllowGaps: true})
	require.NoError(t, err)
	_, ok := s.At(base.Add(Cadence))
	assert.False(t, ok, "gap points carry no value")
}

func TestNewRequiresTimezone(t *testing.T) {
	_, err := New(nil, nil, Schema{})
	var violation *SchemaViolation
	require.ErrorAs(t, err, &violation)
}

func TestSliceIsHalfOpen(t *testing.T) {
	s := mustSeries(t, quarterHours(base, 1, 2, 3, 4), time.UTC, Schema{})

	sliced := s.Slice(base.Add(Cadence), base.Add(3*Cadence))
	require.Equal(t, 2, sliced.Len())
	assert.Equal(t, base.Add(Cadence), sliced.Start())
	assert.Equal(t, base.Add(2*Cadence), sliced.End())

	// zero bounds leave the side open
	assert.Equal(t, 4, s.Slice(time.Time{}, time.Time{}).Len())
	assert.Equal(t, 3, s.Slice(base.Add(Cadence), time.Time{}).Len())
}

func TestClipUpperIsElementwiseMinimum(t *testing.T) {
	a := mustSeries(t, quarterHours(base, 10, 20, 30, 40), time.UTC, Schema{})
	b := mustSeries(t, quarterHours(base, 40, 30, 20, 10), time.UTC, Schema{})

	clipped := a.ClipUpper(b)
	for _, p := range clipped.Points() {
		va, _ := a.At(p.Time)
		vb, _ := b.At(p.Time)
		assert.LessOrEqual(t, p.Value, va)
		assert.LessOrEqual(t, p.Value, vb)
	}
	v, _ := clipped.At(base.Add(2 * Cadence))
	assert.Equal(t, 20.0, v)
}

func TestSubAndClipLowerZero(t *testing.T) {
	a := mustSeries(t, quarterHours(base, 10, 20), time.UTC, Schema{})
	b := mustSeries(t, quarterHours(base, 15, 5), time.UTC, Schema{})

	diff := a.Sub(b).ClipLowerZero()
	v0, _ := diff.At(base)
	v1, _ := diff.At(base.Add(Cadence))
	assert.Equal(t, 0.0, v0)
	assert.Equal(t, 15.0, v1)
}

func TestCombineMismatchedIndexProducesGaps(t *testing.T) {
	a := mustSeries(t, quarterHours(base, 1, 2), time.UTC, Schema{})
	b := mustSeries(t, quarterHours(base.Add(Cadence), 10, 20), time.UTC, Schema{})

	sum := a.Add(b)
	require.Equal(t, 3, sum.Len())
	_, ok := sum.At(base)
	assert.False(t, ok, "only one side present")
	v, ok := sum.At(base.Add(Cadence))
	require.True(t, ok)
	assert.Equal(t, 12.0, v)
	_, ok = sum.At(base.Add(2 * Cadence))
	assert.False(t, ok)
}

func TestTrimDropsEdgeGapsKeepsInteriorOnes(t *testing.T) {
	points := []Point{
		{Time: base, Gap: true},
		{Time: base.Add(Cadence), Value: 1},
		{Time: base.Add(2 * Cadence), Gap: true},
		{Time: base.Add(3 * Cadence), Value: 2},
		{Time: base.Add(4 * Cadence), Gap: true},
	}
	s := mustSeries(t, points, time.UTC, Schema{AllowGaps: true})

	trimmed := s.Trim()
	require.Equal(t, 3, trimmed.Len())
	assert.Equal(t, base.Add(Cadence), trimmed.Start())
	assert.Equal(t, base.Add(3*Cadence), trimmed.End())
	assert.True(t, trimmed.Points()[1].Gap)
}

func TestScaleAndRound(t *testing.T) {
	s := mustSeries(t, quarterHours(base, 1234.5), time.UTC, Schema{})
	mw := s.Scale(1.0 / 1000).Round(3)
	v, _ := mw.At(base)
	assert.Equal(t, 1.234, v)
}

func TestInZoneKeepsInstants(t *testing.T) {
	s := mustSeries(t, quarterHours(base, 1, 2), time.UTC, Schema{})
	rezoned := s.InZone(berlin)

	assert.Equal(t, berlin, rezoned.Zone())
	assert.True(t, rezoned.Start().Equal(s.Start()))
	v, ok := rezoned.At(base)
	require.True(t, ok)
	assert.Equal(t, 1.0, v)
}

func TestSplitByDayBoundaryDependsOnZone(t *testing.T) {
	// 23:00 UTC on June 9 is already June 10 in Berlin
	ts := time.Date(2025, 6, 9, 23, 0, 0, 0, time.UTC)
	s := mustSeries(t, []Point{{Time: ts, Value: 1}}, time.UTC, Schema{})

	utcDays := s.SplitByDay(time.UTC)
	require.Len(t, utcDays, 1)
	assert.Equal(t, time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC), utcDays[0].Date)

	berlinDays := s.SplitByDay(berlin)
	require.Len(t, berlinDays, 1)
	assert.Equal(t, time.Date(2025, 6, 10, 0, 0, 0, 0, berlin), berlinDays[0].Date)
}

func TestSplitByDayPartitionsConsecutiveDays(t *testing.T) {
	// two full UTC days at quarter-hour cadence
	var points []Point
	for i := 0; i < 2*96; i++ {
		points = append(points, Point{Time: base.Add(time.Duration(i) * Cadence), Value: float64(i)})
	}
	s := mustSeries(t, points, time.UTC, Schema{})

	days := s.SplitByDay(time.UTC)
	require.Len(t, days, 2)
	assert.Equal(t, 96, days[0].Series.Len())
	assert.Equal(t, 96, days[1].Series.Len())
	assert.Equal(t, base, days[0].Date)
	assert.Equal(t, base.AddDate(0, 0, 1), days[1].Date)
}

func TestEqual(t *testing.T) {
	a := mustSeries(t, quarterHours(base, 1, 2), time.UTC, Schema{})
	b := mustSeries(t, quarterHours(base, 1, 2), berlin, Schema{})
	c := mustSeries(t, quarterHours(base, 1, 3), time.UTC, Schema{})

	assert.True(t, a.Equal(b), "zone does not affect instant equality")
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
}

func TestMax(t *testing.T) {
	s := mustSeries(t, quarterHours(base, 3, 9, 1), time.UTC, Schema{})
	assert.Equal(t, 9.0, s.Max())

	gaps := mustSeries(t, []Point{{Time: base, Gap: true}}, time.UTC, Schema{AllowGaps: true})
	assert.Equal(t, 0.0, gaps.Max())
}
