package domain

import "github.com/google/uuid"

// Event is a domain event raised by an aggregate and collected by the unit
// of work on commit.
type Event interface {
	EventName() string
}

// LocationCreated is raised when a location aggregate comes into existence.
type LocationCreated struct {
	LocationID uuid.UUID
}

func (LocationCreated) EventName() string { return "location_created" }

// HistoricDataUpdated is raised after fresh metered series were attached to
// a location's market locations.
type HistoricDataUpdated struct {
	LocationID uuid.UUID
}

func (HistoricDataUpdated) EventName() string { return "historic_data_updated" }

// PredictionsCreated is raised after the residual split produced new
// predictions. Subscribers forward them to the internal receiver.
type PredictionsCreated struct {
	LocationID uuid.UUID
}

func (PredictionsCreated) EventName() string { return "predictions_created" }
