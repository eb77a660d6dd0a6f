package exchange

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/voltatlas/prognos/internal/database"
	"github.com/voltatlas/prognos/internal/domain"
	"github.com/voltatlas/prognos/internal/timeseries"
	"github.com/voltatlas/prognos/internal/utils"
)

// MeteringSchema is the metering archive layout. The archive is written by
// the metering ingestion pipeline; this retriever only reads it.
const MeteringSchema = `
CREATE TABLE IF NOT EXISTS metering_data (
    site_id   TEXT NOT NULL,
    number    TEXT NOT NULL,
    measurand TEXT NOT NULL,
    ts        INTEGER NOT NULL, -- unix seconds
    value     REAL NOT NULL,
    PRIMARY KEY (site_id, number, measurand, ts)
);

CREATE INDEX IF NOT EXISTS idx_metering_number
    ON metering_data(number, measurand, ts);
`

// meteringHistoryDays is the default lookback for historic load data.
const meteringHistoryDays = 90

// MeteringRetriever reads metered history from the metering archive. A
// market location number registered for several sites must carry identical
// series everywhere; disagreement is a data-integrity failure, not a choice.
type MeteringRetriever struct {
	db  *database.DB
	log zerolog.Logger
}

// NewMeteringRetriever creates a retriever and applies the archive schema.
func NewMeteringRetriever(db *database.DB, log zerolog.Logger) (*MeteringRetriever, error) {
	if err := db.Migrate(MeteringSchema); err != nil {
		return nil, err
	}
	return &MeteringRetriever{db: db, log: log.With().Str("component", "metering_retriever").Logger()}, nil
}

// GetData loads the metered series for a market location number. A zero
// start defaults to ninety days before today's Berlin midnight; a zero end
// is open.
func (r *MeteringRetriever) GetData(ctx context.Context, assetIdentifier string, measurand domain.Measurand, start, end time.Time) (*timeseries.Series, error) {
	if start.IsZero() {
		start = utils.Midnight(time.Now(), utils.ZoneBerlin).AddDate(0, 0, -meteringHistoryDays)
	}

	siteIDs, err := r.siteIDs(ctx, assetIdentifier, measurand)
	if err != nil {
		return nil, err
	}
	if len(siteIDs) == 0 {
		return nil, &NoMatchingAsset{AssetID: assetIdentifier}
	}

	series := make([]*timeseries.Series, len(siteIDs))
	for i, siteID := range siteIDs {
		s, err := r.siteSeries(ctx, siteID, assetIdentifier, measurand, start, end)
		if err != nil {
			return nil, err
		}
		series[i] = s
	}
	for _, s := range series[1:] {
		if !series[0].Equal(s) {
			return nil, &ConflictingSourceData{AssetID: assetIdentifier}
		}
	}
	return series[0], nil
}

func (r *MeteringRetriever) siteIDs(ctx context.Context, number string, measurand domain.Measurand) ([]string, error) {
	rows, err := r.db.Conn().QueryContext(ctx,
		`SELECT DISTINCT site_id FROM metering_data
		 WHERE number = ? AND measurand = ? ORDER BY site_id`,
		number, string(measurand))
	if err != nil {
		return nil, &RetrievalFailure{Source: "metering", Err: err}
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &RetrievalFailure{Source: "metering", Err: err}
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *MeteringRetriever) siteSeries(ctx context.Context, siteID, number string, measurand domain.Measurand, start, end time.Time) (*timeseries.Series, error) {
	query := `SELECT ts, value FROM metering_data
		 WHERE site_id = ? AND number = ? AND measurand = ? AND ts >= ?`
	args := []any{siteID, number, string(measurand), start.Unix()}
	if !end.IsZero() {
		query += " AND ts < ?"
		args = append(args, end.Unix())
	}
	query += " ORDER BY ts"

	rows, err := r.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &RetrievalFailure{Source: "metering", Err: err}
	}
	defer rows.Close()

	var points []timeseries.Point
	for rows.Next() {
		var ts int64
		var value float64
		if err := rows.Scan(&ts, &value); err != nil {
			return nil, &RetrievalFailure{Source: "metering", Err: err}
		}
		points = append(points, timeseries.Point{Time: time.Unix(ts, 0).In(utils.ZoneBerlin), Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, &RetrievalFailure{Source: "metering", Err: err}
	}
	return timeseries.New(points, utils.ZoneBerlin, timeseries.Schema{})
}
