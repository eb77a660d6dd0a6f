package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/voltatlas/prognos/internal/bus"
	"github.com/voltatlas/prognos/internal/domain"
)

// UpdatePredictJob runs the full morning pipeline: refresh historic data,
// predict and deliver to the internal schedule management, for every
// location. Scheduled well before the 11:45 internal gate closure.
type UpdatePredictJob struct {
	bus *bus.Bus
	log zerolog.Logger
}

// NewUpdatePredictJob creates the job.
func NewUpdatePredictJob(b *bus.Bus, log zerolog.Logger) *UpdatePredictJob {
	return &UpdatePredictJob{bus: b, log: log.With().Str("job", "update_predict").Logger()}
}

func (j *UpdatePredictJob) Name() string { return "update_predict" }

func (j *UpdatePredictJob) Run() error {
	_, err := j.bus.Handle(domain.UpdatePredictAll{})
	return err
}

// PartnerForwardJob forwards eligible predictions to the trading partner.
// Scheduled after the internal gate closure so the eligibility check has a
// finalized internal delivery to look at.
type PartnerForwardJob struct {
	bus *bus.Bus
	log zerolog.Logger
}

// NewPartnerForwardJob creates the job.
func NewPartnerForwardJob(b *bus.Bus, log zerolog.Logger) *PartnerForwardJob {
	return &PartnerForwardJob{bus: b, log: log.With().Str("job", "partner_forward").Logger()}
}

func (j *PartnerForwardJob) Name() string { return "partner_forward" }

func (j *PartnerForwardJob) Run() error {
	_, err := j.bus.Handle(domain.ForwardToTradingPartner{})
	return err
}
