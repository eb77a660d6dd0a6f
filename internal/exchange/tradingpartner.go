package exchange

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voltatlas/prognos/internal/domain"
	"github.com/voltatlas/prognos/internal/timeseries"
	"github.com/voltatlas/prognos/internal/utils"
)

const (
	partnerGenerationDir     = "Erzeugungsprognose/"
	partnerEigenverbrauchDir = "Eigenverbrauch/"
	partnerResidualLongDir   = "Residuallast/"
	partnerCreatedFormat     = "20060102_1504"
	partnerTimestampFormat   = "02.01.2006 15:04"
)

// partnerFilePattern matches
// `<YYYYMMDD_HHMM>_erzeugungsprognose_<uuid>_<YYYYMMDD>.csv`. The asset
// identifier is the producer's UUID.
var partnerFilePattern = regexp.MustCompile(`^(20\d{6}_\d{4})_erzeugungsprognose_([0-9A-Fa-f-]*)_(20\d{6})\.csv$`)

// PartnerGenerationRetriever merges the trading partner's generation forecast
// files. Values arrive in MW with UTC timestamps and are scaled to kW and
// rezoned to Berlin for the rest of the pipeline.
type PartnerGenerationRetriever struct {
	store FileStore
	log   zerolog.Logger
}

// NewPartnerGenerationRetriever creates a retriever over the given file store.
func NewPartnerGenerationRetriever(store FileStore, log zerolog.Logger) *PartnerGenerationRetriever {
	return &PartnerGenerationRetriever{store: store, log: log.With().Str("component", "partner_retriever").Logger()}
}

func (r *PartnerGenerationRetriever) GetData(ctx context.Context, assetIdentifier string, _ domain.Measurand, start, end time.Time) (*timeseries.Series, error) {
	names, err := r.store.List(ctx, partnerGenerationDir)
	if err != nil {
		return nil, err
	}

	var snaps []snapshot
	for _, name := range names {
		m := partnerFilePattern.FindStringSubmatch(path.Base(name))
		if m == nil || !strings.EqualFold(m[2], assetIdentifier) {
			continue
		}
		created, err := time.ParseInLocation(partnerCreatedFormat, m[1], utils.ZoneBerlin)
		if err != nil {
			r.log.Warn().Str("file", name).Err(err).Msg("Skipping file with unparseable creation timestamp")
			continue
		}
		data, err := r.store.Download(ctx, name)
		if err != nil {
			return nil, err
		}
		points, err := parsePartnerCSV(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		snaps = append(snaps, snapshot{created: created, points: points})
	}

	if len(snaps) == 0 {
		return nil, &NoMatchingAsset{AssetID: assetIdentifier}
	}
	r.log.Debug().Str("asset", assetIdentifier).Int("files", len(snaps)).Msg("Merging forecast snapshots")
	return mergeSnapshots(snaps, utils.ZoneBerlin, start, end)
}

// parsePartnerCSV reads `utc_timestamp;power_mw` rows: decimal-comma MW
// values scaled ×1000 to kW, UTC timestamps rezoned to Berlin.
func parsePartnerCSV(data []byte) ([]timeseries.Point, error) {
	lines := splitLines(data)
	if len(lines) == 0 {
		return nil, fmt.Errorf("empty file")
	}
	if !strings.HasPrefix(lines[0], "utc_timestamp") {
		return nil, fmt.Errorf("unexpected header %q", lines[0])
	}
	var points []timeseries.Point
	for _, line := range lines[1:] {
		fields := strings.Split(line, ";")
		if len(fields) < 2 {
			return nil, fmt.Errorf("malformed row %q", line)
		}
		ts, err := time.ParseInLocation(partnerTimestampFormat, strings.TrimSpace(fields[0]), utils.ZoneUTC)
		if err != nil {
			return nil, fmt.Errorf("bad timestamp %q: %w", fields[0], err)
		}
		value, err := timeseries.ParseDecimal(fields[1])
		if err != nil {
			return nil, fmt.Errorf("bad value %q: %w", fields[1], err)
		}
		points = append(points, timeseries.Point{Time: ts.In(utils.ZoneBerlin), Value: value * 1000})
	}
	return points, nil
}

// PartnerUploader writes eigenverbrauch and residual-long files to the
// trading partner's exchange directories. One upload at a time; the partner
// endpoint does not tolerate concurrent sessions.
type PartnerUploader struct {
	store FileStore
	mu    sync.Mutex
	log   zerolog.Logger
}

// NewPartnerUploader creates an uploader over the given file store.
func NewPartnerUploader(store FileStore, log zerolog.Logger) *PartnerUploader {
	return &PartnerUploader{store: store, log: log.With().Str("component", "partner_uploader").Logger()}
}

// UploadEigenverbrauch delivers a combined own-consumption file for a date.
// A declined upload is reported as false, never as an error.
func (u *PartnerUploader) UploadEigenverbrauch(ctx context.Context, data []byte, date time.Time) bool {
	name := fmt.Sprintf("%s%s_eigenverbrauch_anlagen.csv", partnerEigenverbrauchDir, date.Format("20060102"))
	return u.upload(ctx, name, data)
}

// UploadResidualLong delivers a combined residual-long file for a date.
func (u *PartnerUploader) UploadResidualLong(ctx context.Context, data []byte, date time.Time) bool {
	name := fmt.Sprintf("%s%s_residuallast_lang.csv", partnerResidualLongDir, date.Format("20060102"))
	return u.upload(ctx, name, data)
}

func (u *PartnerUploader) upload(ctx context.Context, name string, data []byte) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.store.Upload(ctx, name, data); err != nil {
		u.log.Error().Str("file", name).Err(err).Msg("Upload declined")
		return false
	}
	return true
}
