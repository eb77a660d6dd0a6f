// Package timeseries provides the quarter-hourly, timezone-aware load series
// value object used throughout the forecasting pipeline.
package timeseries

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// DomainFloor is the earliest timestamp any series may carry. Data before this
// date predates the portfolio and always indicates a malformed source file.
var DomainFloor = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Cadence is the fixed resolution of all load series in this domain.
const Cadence = 15 * time.Minute

// SchemaViolation reports a malformed series at a construction boundary.
// It is checked eagerly when a series enters the system, never lazily
// during arithmetic.
type SchemaViolation struct {
	Reason string
}

func (e *SchemaViolation) Error() string {
	return "time series schema violation: " + e.Reason
}

// Point is a single (timestamp, value) observation. Gap points carry no value
// and survive arithmetic as gaps until trimmed.
type Point struct {
	Time  time.Time
	Value float64
	Gap   bool
}

// Schema controls the validation applied when a series is constructed.
type Schema struct {
	// AllowGaps permits gap points (missing metering intervals).
	AllowGaps bool
	// AllowSigned permits negative values. Residual computation
	// intermediates are signed; historic and delivered series are not.
	AllowSigned bool
}

// Series is an ordered index of strictly increasing, unique, timezone-bearing
// timestamps mapped to numeric values. The zone determines how calendar
// operations (day slicing, window clamps) interpret the instants; the
// instants themselves never change when the zone does.
type Series struct {
	zone   *time.Location
	points []Point
}

// New validates and constructs a series from unordered points. The input is
// sorted by timestamp; duplicates, pre-floor timestamps, NaN values and
// (depending on the schema) gaps or negative values are rejected with a
// *SchemaViolation.
func New(points []Point, zone *time.Location, schema Schema) (*Series, error) {
	if zone == nil {
		return nil, &SchemaViolation{Reason: "series requires a timezone"}
	}
	ps := make([]Point, len(points))
	copy(ps, points)
	sort.Slice(ps, func(i, j int) bool { return ps[i].Time.Before(ps[j].Time) })

	for i, p := range ps {
		if p.Time.Before(DomainFloor) {
			return nil, &SchemaViolation{Reason: fmt.Sprintf("timestamp %s before domain floor", p.Time)}
		}
		if i > 0 && !ps[i-1].Time.Before(p.Time) {
			return nil, &SchemaViolation{Reason: fmt.Sprintf("duplicate timestamp %s", p.Time)}
		}
		if p.Gap {
			if !schema.AllowGaps {
				return nil, &SchemaViolation{Reason: fmt.Sprintf("gap at %s not allowed", p.Time)}
			}
			continue
		}
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return nil, &SchemaViolation{Reason: fmt.Sprintf("non-finite value at %s", p.Time)}
		}
		if !schema.AllowSigned && p.Value < 0 {
			return nil, &SchemaViolation{Reason: fmt.Sprintf("negative value %v at %s", p.Value, p.Time)}
		}
	}
	for i := range ps {
		ps[i].Time = ps[i].Time.In(zone)
	}
	return &Series{zone: zone, points: ps}, nil
}

// newUnchecked builds a series from points that are already sorted, unique
// and in-zone. Used internally by arithmetic, which operates on series that
// were validated at the boundary.
func newUnchecked(points []Point, zone *time.Location) *Series {
	return &Series{zone: zone, points: points}
}

// Zone returns the series' timezone.
func (s *Series) Zone() *time.Location { return s.zone }

// Len returns the number of points, gaps included.
func (s *Series) Len() int { return len(s.points) }

// IsEmpty reports whether the series holds no points at all.
func (s *Series) IsEmpty() bool { return len(s.points) == 0 }

// Points returns a copy of the underlying points in ascending order.
func (s *Series) Points() []Point {
	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}

// Start returns the first timestamp. Valid only for non-empty series.
func (s *Series) Start() time.Time { return s.points[0].Time }

// End returns the last timestamp. Valid only for non-empty series.
func (s *Series) End() time.Time { return s.points[len(s.points)-1].Time }

// At returns the value at the given instant. The second return is false for
// missing timestamps and gap points.
func (s *Series) At(t time.Time) (float64, bool) {
	i := sort.Search(len(s.points), func(i int) bool { return !s.points[i].Time.Before(t) })
	if i < len(s.points) && s.points[i].Time.Equal(t) && !s.points[i].Gap {
		return s.points[i].Value, true
	}
	return 0, false
}

// InZone re-zones the series without altering absolute instants.
func (s *Series) InZone(zone *time.Location) *Series {
	ps := make([]Point, len(s.points))
	for i, p := range s.points {
		ps[i] = Point{Time: p.Time.In(zone), Value: p.Value, Gap: p.Gap}
	}
	return newUnchecked(ps, zone)
}

// Slice returns the half-open sub-series [start, end). A zero start or end
// leaves that side unbounded.
func (s *Series) Slice(start, end time.Time) *Series {
	var ps []Point
	for _, p := range s.points {
		if !start.IsZero() && p.Time.Before(start) {
			continue
		}
		if !end.IsZero() && !p.Time.Before(end) {
			continue
		}
		ps = append(ps, p)
	}
	return newUnchecked(ps, s.zone)
}

// combine merges two series over the union of their indices. Wherever either
// side is missing or a gap, the result is a gap; everywhere else f is applied.
func (s *Series) combine(other *Series, f func(a, b float64) float64) *Series {
	type cell struct {
		a, b       float64
		okA, okB   bool
		gapA, gapB bool
	}
	cells := map[int64]*cell{}
	var order []int64
	get := func(ts int64) *cell {
		c, ok := cells[ts]
		if !ok {
			c = &cell{}
			cells[ts] = c
			order = append(order, ts)
		}
		return c
	}
	for _, p := range s.points {
		c := get(p.Time.Unix())
		c.a, c.okA, c.gapA = p.Value, true, p.Gap
	}
	for _, p := range other.points {
		c := get(p.Time.Unix())
		c.b, c.okB, c.gapB = p.Value, true, p.Gap
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	ps := make([]Point, 0, len(order))
	for _, ts := range order {
		c := cells[ts]
		t := time.Unix(ts, 0).In(s.zone)
		if !c.okA || !c.okB || c.gapA || c.gapB {
			ps = append(ps, Point{Time: t, Gap: true})
			continue
		}
		ps = append(ps, Point{Time: t, Value: f(c.a, c.b)})
	}
	return newUnchecked(ps, s.zone)
}

// Add returns the elementwise sum over the union index.
func (s *Series) Add(other *Series) *Series {
	return s.combine(other, func(a, b float64) float64 { return a + b })
}

// Sub returns the elementwise difference over the union index. The result
// may be signed; callers clip it before it leaves the residual computation.
func (s *Series) Sub(other *Series) *Series {
	return s.combine(other, func(a, b float64) float64 { return a - b })
}

// ClipUpper bounds the series from above by another series, elementwise.
func (s *Series) ClipUpper(bound *Series) *Series {
	return s.combine(bound, math.Min)
}

// ClipLower bounds the series from below by another series, elementwise.
func (s *Series) ClipLower(bound *Series) *Series {
	return s.combine(bound, math.Max)
}

// ClipLowerZero replaces negative values with zero. Gaps are preserved.
func (s *Series) ClipLowerZero() *Series {
	ps := make([]Point, len(s.points))
	copy(ps, s.points)
	for i := range ps {
		if !ps[i].Gap && ps[i].Value < 0 {
			ps[i].Value = 0
		}
	}
	return newUnchecked(ps, s.zone)
}

// Scale multiplies every value by f.
func (s *Series) Scale(f float64) *Series {
	ps := make([]Point, len(s.points))
	copy(ps, s.points)
	for i := range ps {
		if !ps[i].Gap {
			ps[i].Value *= f
		}
	}
	return newUnchecked(ps, s.zone)
}

// Round rounds every value to the given number of decimals.
func (s *Series) Round(decimals int) *Series {
	pow := math.Pow10(decimals)
	ps := make([]Point, len(s.points))
	copy(ps, s.points)
	for i := range ps {
		if !ps[i].Gap {
			ps[i].Value = math.Round(ps[i].Value*pow) / pow
		}
	}
	return newUnchecked(ps, s.zone)
}

// Trim drops leading and trailing gap points, keeping interior gaps. Clamping
// a forecast to an activation window produces such edges; they must not
// appear in delivered files.
func (s *Series) Trim() *Series {
	lo, hi := 0, len(s.points)
	for lo < hi && s.points[lo].Gap {
		lo++
	}
	for hi > lo && s.points[hi-1].Gap {
		hi--
	}
	return newUnchecked(append([]Point(nil), s.points[lo:hi]...), s.zone)
}

// Max returns the largest non-gap value, or 0 for an all-gap series.
func (s *Series) Max() float64 {
	max := math.Inf(-1)
	seen := false
	for _, p := range s.points {
		if !p.Gap && p.Value > max {
			max, seen = p.Value, true
		}
	}
	if !seen {
		return 0
	}
	return max
}

// DaySlice is the portion of a series falling on one calendar day.
type DaySlice struct {
	Date   time.Time // midnight of the day, in the boundary timezone
	Series *Series
}

// SplitByDay partitions the series into per-calendar-day slices, with day
// boundaries taken in the given timezone. A day boundary in Berlin local time
// is not the same instant as a day boundary in UTC; partner contracts define
// which one applies.
func (s *Series) SplitByDay(boundary *time.Location) []DaySlice {
	var out []DaySlice
	var cur []Point
	var curDay time.Time
	flush := func() {
		if len(cur) > 0 {
			out = append(out, DaySlice{Date: curDay, Series: newUnchecked(cur, boundary)})
			cur = nil
		}
	}
	for _, p := range s.points {
		local := p.Time.In(boundary)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, boundary)
		if !day.Equal(curDay) {
			flush()
			curDay = day
		}
		cur = append(cur, Point{Time: local, Value: p.Value, Gap: p.Gap})
	}
	flush()
	return out
}

// Equal reports whether two series carry identical instants and values.
func (s *Series) Equal(other *Series) bool {
	if other == nil || len(s.points) != len(other.points) {
		return false
	}
	for i, p := range s.points {
		q := other.points[i]
		if !p.Time.Equal(q.Time) || p.Gap != q.Gap {
			return false
		}
		if !p.Gap && p.Value != q.Value {
			return false
		}
	}
	return true
}
