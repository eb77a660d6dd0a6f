package storage

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/voltatlas/prognos/internal/timeseries"
)

// seriesBlob is the msgpack on-disk layout for a load series. Timestamps are
// unix seconds; the zone name restores calendar semantics on load.
type seriesBlob struct {
	Zone   string    `msgpack:"zone"`
	Times  []int64   `msgpack:"times"`
	Values []float64 `msgpack:"values"`
	Gaps   []bool    `msgpack:"gaps"`
}

func encodeSeries(s *timeseries.Series) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	points := s.Points()
	blob := seriesBlob{
		Zone:   s.Zone().String(),
		Times:  make([]int64, len(points)),
		Values: make([]float64, len(points)),
		Gaps:   make([]bool, len(points)),
	}
	for i, p := range points {
		blob.Times[i] = p.Time.Unix()
		blob.Values[i] = p.Value
		blob.Gaps[i] = p.Gap
	}
	return msgpack.Marshal(&blob)
}

func decodeSeries(data []byte) (*timeseries.Series, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var blob seriesBlob
	if err := msgpack.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("failed to decode series blob: %w", err)
	}
	zone, err := time.LoadLocation(blob.Zone)
	if err != nil {
		return nil, fmt.Errorf("failed to load series zone %q: %w", blob.Zone, err)
	}
	points := make([]timeseries.Point, len(blob.Times))
	for i := range blob.Times {
		points[i] = timeseries.Point{
			Time:  time.Unix(blob.Times[i], 0).In(zone),
			Value: blob.Values[i],
			Gap:   blob.Gaps[i],
		}
	}
	// stored series were validated on the way in
	return timeseries.New(points, zone, timeseries.Schema{AllowGaps: true, AllowSigned: true})
}
