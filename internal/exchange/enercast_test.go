package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltatlas/prognos/internal/domain"
	"github.com/voltatlas/prognos/internal/utils"
)

func uploadFile(t *testing.T, store *MemoryFileStore, name, content string) {
	t.Helper()
	require.NoError(t, store.Upload(context.Background(), name, []byte(content)))
}

func TestEnercastGetDataMergesNewestFirst(t *testing.T) {
	store := NewMemoryFileStore()
	uploadFile(t, store, "forecasts/1234_solarpark_2025-06-09-06-00-00.csv",
		"Timestamp (Europe/Berlin);1234\n"+
			"2025-06-10 00:00:00;100,5\n"+
			"2025-06-10 00:15:00;110\n")
	uploadFile(t, store, "forecasts/1234_solarpark_2025-06-09-12-00-00.csv",
		"Timestamp (Europe/Berlin);1234\n"+
			"2025-06-10 00:15:00;220,25\n"+
			"2025-06-10 00:30:00;230\n")

	r := NewEnercastRetriever(store, zerolog.Nop())
	series, err := r.GetData(context.Background(), "1234", domain.MeasurandNegative, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 3, series.Len())

	start := time.Date(2025, 6, 10, 0, 0, 0, 0, utils.ZoneBerlin)
	v, _ := series.At(start)
	assert.Equal(t, 100.5, v, "slot only in the older file survives")
	v, _ = series.At(start.Add(15 * time.Minute))
	assert.Equal(t, 220.25, v, "overlapping slot comes from the newer file")
	v, _ = series.At(start.Add(30 * time.Minute))
	assert.Equal(t, 230.0, v)
}

func TestEnercastGetDataMatchesAssetExactly(t *testing.T) {
	store := NewMemoryFileStore()
	uploadFile(t, store, "forecasts/1234_solarpark_2025-06-09-06-00-00.csv",
		"Timestamp (Europe/Berlin);1234\n2025-06-10 00:00:00;1\n")

	r := NewEnercastRetriever(store, zerolog.Nop())
	_, err := r.GetData(context.Background(), "123", domain.MeasurandNegative, time.Time{}, time.Time{})
	var noMatch *NoMatchingAsset
	require.ErrorAs(t, err, &noMatch, "a prefix of the asset identifier must not match")
	assert.Equal(t, "123", noMatch.AssetID)
}

func TestEnercastGetDataSkipsStaleFilesWithoutDownloading(t *testing.T) {
	store := NewMemoryFileStore()
	// created five weeks before the window start; its seven days of coverage
	// cannot reach the window. The garbage body proves it is never parsed.
	uploadFile(t, store, "forecasts/1234_solarpark_2025-05-01-06-00-00.csv", "garbage")
	uploadFile(t, store, "forecasts/1234_solarpark_2025-06-09-06-00-00.csv",
		"Timestamp (Europe/Berlin);1234\n2025-06-10 00:00:00;50\n")

	r := NewEnercastRetriever(store, zerolog.Nop())
	start := time.Date(2025, 6, 10, 0, 0, 0, 0, utils.ZoneBerlin)
	series, err := r.GetData(context.Background(), "1234", domain.MeasurandNegative, start, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, series.Len())
}

func TestEnercastGetDataNoFiles(t *testing.T) {
	store := NewMemoryFileStore()
	r := NewEnercastRetriever(store, zerolog.Nop())

	_, err := r.GetData(context.Background(), "1234", domain.MeasurandNegative, time.Time{}, time.Time{})
	var noMatch *NoMatchingAsset
	assert.ErrorAs(t, err, &noMatch)
}

func TestParseEnercastCSVRejectsWrongHeader(t *testing.T) {
	_, err := parseEnercastCSV([]byte("datetime;value\n2025-06-10 00:00:00;1\n"))
	assert.Error(t, err)
}

func TestParseEnercastCSVAcceptsMinuteTimestamps(t *testing.T) {
	pts, err := parseEnercastCSV([]byte("Timestamp (Europe/Berlin);1234\r\n2025-06-10 00:15;12,5\r\n"))
	require.NoError(t, err)
	require.Len(t, pts, 1)
	assert.Equal(t, time.Date(2025, 6, 10, 0, 15, 0, 0, utils.ZoneBerlin), pts[0].Time)
	assert.Equal(t, 12.5, pts[0].Value)
}
