package exchange

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/voltatlas/prognos/internal/domain"
	"github.com/voltatlas/prognos/internal/timeseries"
	"github.com/voltatlas/prognos/internal/utils"
)

const (
	enercastDir             = "forecasts/"
	enercastCreatedFormat   = "2006-01-02-15-04-05"
	enercastTimestampColumn = "Timestamp (Europe/Berlin)"
)

// enercastFilePattern matches `<asset>_<name>_<YYYY-MM-DD-HH-MM-SS>.csv`.
// The asset identifier is the market location number.
var enercastFilePattern = regexp.MustCompile(`^(\d+)_.*_(\d{4}-\d{2}-\d{2}-\d{2}-\d{2}-\d{2})\.csv$`)

// EnercastRetriever merges the rolling generation forecast snapshots the
// provider republishes several times a day. Values arrive in kW with Berlin
// wall-clock timestamps.
type EnercastRetriever struct {
	store FileStore
	log   zerolog.Logger
}

// NewEnercastRetriever creates a retriever over the given file store.
func NewEnercastRetriever(store FileStore, log zerolog.Logger) *EnercastRetriever {
	return &EnercastRetriever{store: store, log: log.With().Str("component", "enercast_retriever").Logger()}
}

// GetData lists the forecast directory, downloads the snapshots whose
// embedded asset identifier matches exactly, and merges them newest-first.
// Snapshots whose creation timestamp plus the seven-day coverage still ends
// before the window start are skipped without downloading.
func (r *EnercastRetriever) GetData(ctx context.Context, assetIdentifier string, _ domain.Measurand, start, end time.Time) (*timeseries.Series, error) {
	names, err := r.store.List(ctx, enercastDir)
	if err != nil {
		return nil, err
	}

	var snaps []snapshot
	for _, name := range names {
		m := enercastFilePattern.FindStringSubmatch(path.Base(name))
		if m == nil || m[1] != assetIdentifier {
			continue
		}
		created, err := time.ParseInLocation(enercastCreatedFormat, m[2], utils.ZoneBerlin)
		if err != nil {
			r.log.Warn().Str("file", name).Err(err).Msg("Skipping file with unparseable creation timestamp")
			continue
		}
		if !start.IsZero() && created.AddDate(0, 0, 7).Before(start) {
			continue
		}
		data, err := r.store.Download(ctx, name)
		if err != nil {
			return nil, err
		}
		points, err := parseEnercastCSV(data)
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

// parseEnercastCSV reads `Timestamp (Europe/Berlin);<asset>` rows with
// decimal-comma kW values.
func parseEnercastCSV(data []byte) ([]timeseries.Point, error) {
	lines := splitLines(data)
	if len(lines) == 0 {
		return nil, fmt.Errorf("empty file")
	}
	if !strings.HasPrefix(lines[0], enercastTimestampColumn) {
		return nil, fmt.Errorf("unexpected header %q", lines[0])
	}
	var points []timeseries.Point
	for _, line := range lines[1:] {
		fields := strings.Split(line, ";")
		if len(fields) < 2 {
			return nil, fmt.Errorf("malformed row %q", line)
		}
		ts, err := parseBerlinTimestamp(fields[0])
		if err != nil {
			return nil, err
		}
		value, err := timeseries.ParseDecimal(fields[1])
		if err != nil {
			return nil, fmt.Errorf("bad value %q: %w", fields[1], err)
		}
		points = append(points, timeseries.Point{Time: ts, Value: value})
	}
	return points, nil
}

func parseBerlinTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if ts, err := time.ParseInLocation(layout, s, utils.ZoneBerlin); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("bad timestamp %q", s)
}

func splitLines(data []byte) []string {
	raw := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// EnercastAPIRetriever is the placeholder for the provider's HTTP API, which
// is not yet available for production assets.
type EnercastAPIRetriever struct{}

func (r *EnercastAPIRetriever) GetData(context.Context, string, domain.Measurand, time.Time, time.Time) (*timeseries.Series, error) {
	return nil, fmt.Errorf("enercast API retrieval is not implemented")
}
