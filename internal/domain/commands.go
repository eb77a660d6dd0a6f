package domain

import "time"

// Command is a request for exactly one handler. Unroutable commands are a
// programming error; the bus rejects them loudly.
type Command interface {
	CommandName() string
}

// ProducerSpec describes a producer at location creation time.
type ProducerSpec struct {
	MarketLocationNumber   string
	Name                   string
	PrognosisDataRetriever RetrieverKind
}

// CreateLocation creates a new location aggregate.
type CreateLocation struct {
	State             State
	Alias             string
	ResidualShortMalo string
	ResidualLongMalo  string // empty for consumption-only locations
	Producers         []ProducerSpec
	ActiveFrom        time.Time
	ActiveUntil       *time.Time
}

func (CreateLocation) CommandName() string { return "create_location" }

// UpdateLocationSettings replaces a location's settings value.
type UpdateLocationSettings struct {
	LocationID string
	Settings   LocationSettings
}

func (UpdateLocationSettings) CommandName() string { return "update_location_settings" }

// UpdateHistoricData refreshes the metered series of every market location
// of one location.
type UpdateHistoricData struct {
	LocationID string
}

func (UpdateHistoricData) CommandName() string { return "update_historic_data" }

// CalculatePredictions runs the consumption predictor, the production
// retrievers and the residual split for one location.
type CalculatePredictions struct {
	LocationID string
}

func (CalculatePredictions) CommandName() string { return "calculate_predictions" }

// SendPredictions delivers the newest residual-short prediction to the
// internal schedule management.
type SendPredictions struct {
	LocationID string
}

func (SendPredictions) CommandName() string { return "send_predictions" }

// UpdatePredictAll runs the full pipeline for every location: historic
// fetch, prediction, internal delivery.
type UpdatePredictAll struct{}

func (UpdatePredictAll) CommandName() string { return "update_predict_all" }

// ForwardToTradingPartner builds the combined eigenverbrauch and
// residual-long files for all eligible locations and uploads them to the
// trading partner. Override skips the internal-delivery eligibility gate.
type ForwardToTradingPartner struct {
	Override bool
}

func (ForwardToTradingPartner) CommandName() string { return "forward_to_trading_partner" }
