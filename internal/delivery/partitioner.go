package delivery

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/voltatlas/prognos/internal/timeseries"
	"github.com/voltatlas/prognos/internal/utils"
)

// sanityBoundMW rejects tables that are obviously not in MW. No site in the
// portfolio has a maximum load above 10 MW.
const sanityBoundMW = 10

// DayTable is one partner delivery: all assets' values for one UTC calendar
// day.
type DayTable struct {
	Date  time.Time // UTC midnight
	Table *Table
}

// PartitionForPartner turns per-asset kW series into the partner's per-day
// payloads: rezoned to UTC, scaled to MW, rounded to 3 decimals, combined
// column-wise and split on UTC calendar days over the partner horizon. A
// horizon day without data is logged and skipped, it never aborts the batch.
// A sanity-bound violation does abort: wrong units poison every day.
func PartitionForPartner(cols []Column, now time.Time, log zerolog.Logger) ([]DayTable, error) {
	scaled := make([]Column, len(cols))
	for i, col := range cols {
		scaled[i] = Column{ID: col.ID}
		if col.Series != nil {
			scaled[i].Series = col.Series.InZone(utils.ZoneUTC).Scale(1.0 / 1000).Round(3)
		}
	}

	combined := NewTable(scaled, utils.ZoneUTC)
	if err := combined.Validate(sanityBoundMW); err != nil {
		return nil, fmt.Errorf("partner payload failed sanity check: %w", err)
	}

	var tables []DayTable
	for _, day := range HorizonDates(now, PartnerHorizonDays, utils.ZoneUTC) {
		table := combined.Slice(day, day.AddDate(0, 0, 1))
		if table.IsEmpty() {
			log.Error().Time("day", day).Msg("No data for forecast day, skipping table")
			continue
		}
		tables = append(tables, DayTable{Date: day, Table: table})
	}
	return tables, nil
}

// SplitSeriesByUTCDay exposes the partner day-boundary rule for a single
// series, used when one asset is delivered alone.
func SplitSeriesByUTCDay(s *timeseries.Series) []timeseries.DaySlice {
	return s.InZone(utils.ZoneUTC).SplitByDay(utils.ZoneUTC)
}
