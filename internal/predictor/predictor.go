// Package predictor produces consumption forecasts from metered history. The
// predictor is a black box to the rest of the pipeline: historic series in,
// forecast series out.
package predictor

import (
	"errors"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/voltatlas/prognos/internal/domain"
	"github.com/voltatlas/prognos/internal/timeseries"
	"github.com/voltatlas/prognos/internal/utils"
)

// Window is the half-open forecast window [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Predictor creates a consumption forecast over the window.
type Predictor interface {
	Predict(historic *timeseries.Series, state domain.State, window Window) (*timeseries.Series, error)
}

// cadence is the fixed series resolution.
const cadence = 15 * time.Minute

// slotsPerDay is the number of quarter hours in a regular day.
const slotsPerDay = 96

// ProfilePredictor forecasts by weekday profile: the mean of all historic
// values observed in the same (weekday, quarter-hour) bucket, evaluated in
// Berlin wall-clock time. Buckets without history fall back to the overall
// mean.
type ProfilePredictor struct{}

// NewProfilePredictor creates the default predictor.
func NewProfilePredictor() *ProfilePredictor {
	return &ProfilePredictor{}
}

func (p *ProfilePredictor) Predict(historic *timeseries.Series, _ domain.State, window Window) (*timeseries.Series, error) {
	if historic == nil || historic.IsEmpty() {
		return nil, errors.New("no historic data to predict from")
	}

	buckets := map[int][]float64{}
	var all []float64
	for _, pt := range historic.Points() {
		if pt.Gap {
			continue
		}
		local := pt.Time.In(utils.ZoneBerlin)
		buckets[bucketKey(local)] = append(buckets[bucketKey(local)], pt.Value)
		all = append(all, pt.Value)
	}
	if len(all) == 0 {
		return nil, errors.New("historic data contains only gaps")
	}

	overall := stat.Mean(all, nil)
	means := make(map[int]float64, len(buckets))
	for key, values := range buckets {
		means[key] = stat.Mean(values, nil)
	}

	var points []timeseries.Point
	for t := window.Start; t.Before(window.End); t = t.Add(cadence) {
		value, ok := means[bucketKey(t.In(utils.ZoneBerlin))]
		if !ok {
			value = overall
		}
		points = append(points, timeseries.Point{Time: t, Value: value})
	}
	return timeseries.New(points, utils.ZoneBerlin, timeseries.Schema{})
}

// bucketKey folds a local timestamp onto its (weekday, quarter-hour) slot.
func bucketKey(t time.Time) int {
	slot := t.Hour()*4 + t.Minute()/15
	return int(t.Weekday())*slotsPerDay + slot
}
