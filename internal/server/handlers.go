package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/voltatlas/prognos/internal/bus"
	"github.com/voltatlas/prognos/internal/domain"
	"github.com/voltatlas/prognos/internal/storage"
	"github.com/voltatlas/prognos/internal/timeseries"
)

const dateLayout = "2006-01-02"

// LocationHandlers maps the locations API onto bus commands and repository
// reads.
type LocationHandlers struct {
	bus *bus.Bus
	uow storage.Factory
	log zerolog.Logger
}

// NewLocationHandlers creates the handler set.
func NewLocationHandlers(b *bus.Bus, uow storage.Factory, log zerolog.Logger) *LocationHandlers {
	return &LocationHandlers{bus: b, uow: uow, log: log.With().Str("component", "locations_api").Logger()}
}

type marketLocationDTO struct {
	Number string `json:"number"`
}

type producerDTO struct {
	Name                   string            `json:"name"`
	MarketLocation         marketLocationDTO `json:"market_location"`
	PrognosisDataRetriever string            `json:"prognosis_data_retriever"`
}

type settingsDTO struct {
	ActiveFrom                  string  `json:"active_from"`
	ActiveUntil                 *string `json:"active_until,omitempty"`
	SendConsumptionToInternal   bool    `json:"send_consumption_to_internal"`
	SendEigenverbrauchToPartner bool    `json:"send_eigenverbrauch_to_partner"`
	SendResidualLongToPartner   bool    `json:"send_residual_long_to_partner"`
}

type locationDTO struct {
	ID            string             `json:"id,omitempty"`
	State         string             `json:"state"`
	Alias         string             `json:"alias,omitempty"`
	ResidualShort marketLocationDTO  `json:"residual_short"`
	ResidualLong  *marketLocationDTO `json:"residual_long,omitempty"`
	Producers     []producerDTO      `json:"producers,omitempty"`
	Settings      settingsDTO        `json:"settings"`
}

func locationToDTO(loc *domain.Location) locationDTO {
	dto := locationDTO{
		ID:            loc.ID.String(),
		State:         string(loc.State),
		Alias:         loc.Alias,
		ResidualShort: marketLocationDTO{Number: loc.ResidualShort.Number},
		Settings: settingsDTO{
			ActiveFrom:                  loc.Settings.ActiveFrom.Format(dateLayout),
			SendConsumptionToInternal:   loc.Settings.SendConsumptionToInternal,
			SendEigenverbrauchToPartner: loc.Settings.SendEigenverbrauchToPartner,
			SendResidualLongToPartner:   loc.Settings.SendResidualLongToPartner,
		},
	}
	if loc.Settings.ActiveUntil != nil {
		until := loc.Settings.ActiveUntil.Format(dateLayout)
		dto.Settings.ActiveUntil = &until
	}
	if loc.ResidualLong != nil {
		dto.ResidualLong = &marketLocationDTO{Number: loc.ResidualLong.Number}
	}
	for _, p := range loc.Producers {
		dto.Producers = append(dto.Producers, producerDTO{
			Name:                   p.Name,
			MarketLocation:         marketLocationDTO{Number: p.MarketLocation.Number},
			PrognosisDataRetriever: string(p.PrognosisDataRetriever),
		})
	}
	return dto
}

func (h *LocationHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	uow, err := h.uow()
	if err != nil {
		h.serverError(w, err)
		return
	}
	defer uow.Rollback()
	locs, err := uow.Locations().GetAll()
	if err != nil {
		h.serverError(w, err)
		return
	}
	items := make([]locationDTO, 0, len(locs))
	for _, loc := range locs {
		items = append(items, locationToDTO(loc))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (h *LocationHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.loadLocation(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, locationToDTO(loc))
}

func (h *LocationHandlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var body locationDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cmd := domain.CreateLocation{
		State:             domain.State(body.State),
		Alias:             body.Alias,
		ResidualShortMalo: body.ResidualShort.Number,
	}
	if body.ResidualLong != nil {
		cmd.ResidualLongMalo = body.ResidualLong.Number
	}
	for _, p := range body.Producers {
		cmd.Producers = append(cmd.Producers, domain.ProducerSpec{
			Name:                   p.Name,
			MarketLocationNumber:   p.MarketLocation.Number,
			PrognosisDataRetriever: domain.RetrieverKind(p.PrognosisDataRetriever),
		})
	}
	var err error
	if cmd.ActiveFrom, cmd.ActiveUntil, err = parseActivation(body.Settings); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.bus.Handle(cmd)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusCreated, locationToDTO(result.(*domain.Location)))
}

func (h *LocationHandlers) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.loadLocation(w, r)
	if !ok {
		return
	}
	var body settingsDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	activeFrom, activeUntil, err := parseActivation(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.bus.Handle(domain.UpdateLocationSettings{
		LocationID: loc.ID.String(),
		Settings: domain.LocationSettings{
			ActiveFrom:                  activeFrom,
			ActiveUntil:                 activeUntil,
			SendConsumptionToInternal:   body.SendConsumptionToInternal,
			SendEigenverbrauchToPartner: body.SendEigenverbrauchToPartner,
			SendResidualLongToPartner:   body.SendResidualLongToPartner,
		},
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, locationToDTO(result.(*domain.Location)))
}

func (h *LocationHandlers) HandleUpdateHistoricData(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, func(id string) domain.Command { return domain.UpdateHistoricData{LocationID: id} })
}

func (h *LocationHandlers) HandleCalculatePredictions(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, func(id string) domain.Command { return domain.CalculatePredictions{LocationID: id} })
}

func (h *LocationHandlers) HandleSendPredictions(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, func(id string) domain.Command { return domain.SendPredictions{LocationID: id} })
}

func (h *LocationHandlers) HandleUpdatePredictAll(w http.ResponseWriter, r *http.Request) {
	if _, err := h.bus.Handle(domain.UpdatePredictAll{}); err != nil {
		h.serverError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *LocationHandlers) HandleForwardToPartner(w http.ResponseWriter, r *http.Request) {
	override := r.URL.Query().Get("override") == "true"
	if _, err := h.bus.Handle(domain.ForwardToTradingPartner{Override: override}); err != nil {
		h.serverError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type predictionDTO struct {
	ID      string             `json:"id"`
	Type    string             `json:"type"`
	Created time.Time          `json:"created"`
	Series  map[string]float64 `json:"series"`
}

func (h *LocationHandlers) HandleListPredictions(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.loadLocation(w, r)
	if !ok {
		return
	}
	typeFilter := r.URL.Query().Get("type")

	items := make([]predictionDTO, 0, len(loc.Predictions))
	for _, p := range loc.Predictions {
		if typeFilter != "" && string(p.Type) != typeFilter {
			continue
		}
		items = append(items, predictionDTO{
			ID:      p.ID.String(),
			Type:    string(p.Type),
			Created: p.Created,
			Series:  seriesToMap(p.Series),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func seriesToMap(s *timeseries.Series) map[string]float64 {
	out := make(map[string]float64, s.Len())
	for _, p := range s.Points() {
		if p.Gap {
			continue
		}
		out[p.Time.Format(time.RFC3339)] = p.Value
	}
	return out
}

func (h *LocationHandlers) trigger(w http.ResponseWriter, r *http.Request, cmd func(id string) domain.Command) {
	loc, ok := h.loadLocation(w, r)
	if !ok {
		return
	}
	if _, err := h.bus.Handle(cmd(loc.ID.String())); err != nil {
		h.serverError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// loadLocation resolves {locationID} and answers 404/400 itself when absent.
func (h *LocationHandlers) loadLocation(w http.ResponseWriter, r *http.Request) (*domain.Location, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "locationID"))
	if err != nil {
		http.Error(w, "invalid location id", http.StatusBadRequest)
		return nil, false
	}
	uow, err := h.uow()
	if err != nil {
		h.serverError(w, err)
		return nil, false
	}
	defer uow.Rollback()
	loc, err := uow.Locations().Get(id)
	if err != nil {
		h.serverError(w, err)
		return nil, false
	}
	if loc == nil {
		http.Error(w, "location not found", http.StatusNotFound)
		return nil, false
	}
	return loc, true
}

func (h *LocationHandlers) serverError(w http.ResponseWriter, err error) {
	h.log.Error().Err(err).Msg("Request failed")
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func parseActivation(s settingsDTO) (time.Time, *time.Time, error) {
	var from time.Time
	var err error
	if s.ActiveFrom != "" {
		if from, err = time.Parse(dateLayout, s.ActiveFrom); err != nil {
			return time.Time{}, nil, err
		}
	}
	if s.ActiveUntil == nil || *s.ActiveUntil == "" {
		return from, nil, nil
	}
	until, err := time.Parse(dateLayout, *s.ActiveUntil)
	if err != nil {
		return time.Time{}, nil, err
	}
	return from, &until, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
