// Package domain holds the Location aggregate and its value objects.
package domain

// Measurand is the polarity of a market location.
type Measurand string

const (
	// MeasurandPositive marks grid withdrawal (consumption).
	MeasurandPositive Measurand = "positive"
	// MeasurandNegative marks grid feed-in (production).
	MeasurandNegative Measurand = "negative"
)

// PredictionType tags a forecast series with its role in the residual split.
type PredictionType string

const (
	PredictionConsumption   PredictionType = "consumption"
	PredictionProduction    PredictionType = "production"
	PredictionResidualShort PredictionType = "short"
	PredictionResidualLong  PredictionType = "long"
)

// Receiver identifies a downstream consumer of forecasts.
type Receiver string

const (
	// ReceiverInternalFahrplanmanagement is the internal schedule management
	// desk. It has an earlier daily deadline than the trading partner.
	ReceiverInternalFahrplanmanagement Receiver = "internal_fahrplanmanagement"
	// ReceiverEnergyTradingPartner is the external trading partner that
	// receives combined eigenverbrauch and residual-long files.
	ReceiverEnergyTradingPartner Receiver = "energy_trading_partner"
)

// RetrieverKind selects the external forecast source configured for a producer.
type RetrieverKind string

const (
	RetrieverEnercastSFTP       RetrieverKind = "enercast_sftp"
	RetrieverEnercastAPI        RetrieverKind = "enercast_api"
	RetrieverTradingPartnerSFTP RetrieverKind = "trading_partner_sftp"
)

// State is the German federal state a location sits in. Holiday calendars
// for the predictor are state specific.
type State string

const (
	StateBadenWurttemberg      State = "BW"
	StateBayern                State = "BY"
	StateBerlin                State = "BE"
	StateBrandenburg           State = "BB"
	StateBremen                State = "HB"
	StateHamburg               State = "HH"
	StateHessen                State = "HE"
	StateMecklenburgVorpommern State = "MV"
	StateNiedersachsen         State = "NI"
	StateNordrheinWestfalen    State = "NW"
	StateRheinlandPfalz        State = "RP"
	StateSaarland              State = "SL"
	StateSachsen               State = "SN"
	StateSachsenAnhalt         State = "ST"
	StateSchleswigHolstein     State = "SH"
	StateThuringen             State = "TH"
)
