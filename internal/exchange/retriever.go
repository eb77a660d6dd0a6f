package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/voltatlas/prognos/internal/domain"
	"github.com/voltatlas/prognos/internal/timeseries"
)

// Retriever fetches a load series for an asset from an external source.
// Implementations distinguish NoMatchingAsset, ConflictingSourceData and
// RetrievalFailure so callers can decide what to skip.
type Retriever interface {
	GetData(ctx context.Context, assetIdentifier string, measurand domain.Measurand, start, end time.Time) (*timeseries.Series, error)
}

// RetrieverConfig pairs a retriever with the function extracting the asset
// identifier it expects from a producer. Enercast keys by market location
// number, the trading partner keys by producer UUID.
type RetrieverConfig struct {
	Retriever       Retriever
	AssetIdentifier func(p *domain.Producer) string
}

// Registry maps a producer's configured retriever kind to its retriever.
type Registry map[domain.RetrieverKind]RetrieverConfig

// NewRegistry wires the production retrievers over the forecast file store.
func NewRegistry(store FileStore, log zerolog.Logger) Registry {
	byNumber := func(p *domain.Producer) string { return p.MarketLocation.Number }
	byID := func(p *domain.Producer) string { return p.ID.String() }
	return Registry{
		domain.RetrieverEnercastSFTP:       {Retriever: NewEnercastRetriever(store, log), AssetIdentifier: byNumber},
		domain.RetrieverEnercastAPI:        {Retriever: &EnercastAPIRetriever{}, AssetIdentifier: byNumber},
		domain.RetrieverTradingPartnerSFTP: {Retriever: NewPartnerGenerationRetriever(store, log), AssetIdentifier: byID},
	}
}

// FetchProduction resolves the producer's configured retriever and fetches
// its production forecast for the window.
func (r Registry) FetchProduction(ctx context.Context, p *domain.Producer, start, end time.Time) (*timeseries.Series, error) {
	cfg, ok := r[p.PrognosisDataRetriever]
	if !ok {
		return nil, fmt.Errorf("no retriever registered for kind %q", p.PrognosisDataRetriever)
	}
	return cfg.Retriever.GetData(ctx, cfg.AssetIdentifier(p), p.MarketLocation.Measurand, start, end)
}
