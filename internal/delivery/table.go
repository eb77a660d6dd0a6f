// Package delivery renders final forecasts into receiver-specific payloads:
// per-day partner tables in UTC and single-series internal CSVs.
package delivery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/voltatlas/prognos/internal/timeseries"
)

// partnerTimestampLayout is the partner contract's timestamp format.
const partnerTimestampLayout = "02.01.2006 15:04:05"

// internalTimestampLayout is the schedule management attachment format.
const internalTimestampLayout = "2006-01-02 15:04"

// Column is one asset's series keyed by its identity in the header row.
type Column struct {
	ID     string
	Series *timeseries.Series
}

type tableRow struct {
	time   time.Time
	values []*float64 // aligned to ids, nil = no data for that asset
}

// Table is a column-wise combination of per-asset series over the union of
// their timestamps, rendered in a single timezone.
type Table struct {
	zone *time.Location
	ids  []string
	rows []tableRow
}

// NewTable combines the columns. Gap points do not contribute cells.
func NewTable(cols []Column, zone *time.Location) *Table {
	ids := make([]string, len(cols))
	cells := map[int64][]*float64{}
	for i, col := range cols {
		ids[i] = col.ID
		if col.Series == nil {
			continue
		}
		for _, p := range col.Series.Points() {
			if p.Gap {
				continue
			}
			key := p.Time.Unix()
			if cells[key] == nil {
				cells[key] = make([]*float64, len(cols))
			}
			v := p.Value
			cells[key][i] = &v
		}
	}

	keys := make([]int64, 0, len(cells))
	for key := range cells {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	rows := make([]tableRow, len(keys))
	for i, key := range keys {
		rows[i] = tableRow{time: time.Unix(key, 0).In(zone), values: cells[key]}
	}
	return &Table{zone: zone, ids: ids, rows: rows}
}

// IsEmpty reports whether the table has no rows.
func (t *Table) IsEmpty() bool { return len(t.rows) == 0 }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Slice returns the sub-table with rows in [start, end). Zero bounds are open.
func (t *Table) Slice(start, end time.Time) *Table {
	var rows []tableRow
	for _, row := range t.rows {
		if !start.IsZero() && row.time.Before(start) {
			continue
		}
		if !end.IsZero() && !row.time.Before(end) {
			continue
		}
		rows = append(rows, row)
	}
	return &Table{zone: t.zone, ids: t.ids, rows: rows}
}

// Validate enforces the partner contract's rudimentary sanity bound: all
// values non-negative and strictly below max.
func (t *Table) Validate(max float64) error {
	for _, row := range t.rows {
		for i, v := range row.values {
			if v == nil {
				continue
			}
			if *v < 0 || *v >= max {
				return fmt.Errorf("value %v for %s at %s outside [0, %v)", *v, t.ids[i], row.time, max)
			}
		}
	}
	return nil
}

// RenderPartnerCSV writes the partner wire format: semicolon separated,
// decimal comma, `#timestamp;<id>...` header, timestamps in the table's
// timezone.
func (t *Table) RenderPartnerCSV() []byte {
	var b strings.Builder
	b.WriteString("#timestamp")
	for _, id := range t.ids {
		b.WriteString(";")
		b.WriteString(id)
	}
	b.WriteString("\n")
	for _, row := range t.rows {
		b.WriteString(row.time.Format(partnerTimestampLayout))
		for _, v := range row.values {
			b.WriteString(";")
			if v != nil {
				b.WriteString(timeseries.FormatDecimal(*v, 3))
			}
		}
		b.WriteString("\n")
	}
	return []byte(b.String())
}

// RenderInternalCSV writes a single series the way the schedule management
// desk expects its attachments: `datetime;value` with decimal points.
func RenderInternalCSV(s *timeseries.Series) []byte {
	var b strings.Builder
	b.WriteString("datetime;value\n")
	for _, p := range s.Points() {
		if p.Gap {
			continue
		}
		b.WriteString(p.Time.In(s.Zone()).Format(internalTimestampLayout))
		b.WriteString(";")
		b.WriteString(strconv.FormatFloat(p.Value, 'f', -1, 64))
		b.WriteString("\n")
	}
	return []byte(b.String())
}
