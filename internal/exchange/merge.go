package exchange

import (
	"sort"
	"time"

	"github.com/voltatlas/prognos/internal/timeseries"
)

// snapshot is one parsed forecast file. Created is the creation timestamp
// embedded in the file name; newer snapshots override older ones wherever
// their windows overlap.
type snapshot struct {
	created time.Time
	points  []timeseries.Point
}

// mergeSnapshots reconciles overlapping rolling-forecast snapshots into one
// authoritative series: newest file wins per timestamp, ties broken by
// listing order, result sorted ascending and sliced to [start, end) when a
// window is given (zero bounds are open).
func mergeSnapshots(snaps []snapshot, zone *time.Location, start, end time.Time) (*timeseries.Series, error) {
	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].created.After(snaps[j].created)
	})

	merged := map[int64]timeseries.Point{}
	for _, snap := range snaps {
		for _, p := range snap.points {
			key := p.Time.Unix()
			if _, seen := merged[key]; !seen {
				merged[key] = p
			}
		}
	}

	points := make([]timeseries.Point, 0, len(merged))
	for _, p := range merged {
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })

	series, err := timeseries.New(points, zone, timeseries.Schema{})
	if err != nil {
		return nil, err
	}
	return series.Slice(start, end), nil
}
