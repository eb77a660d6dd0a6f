package scheduler

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltatlas/prognos/internal/bus"
	"github.com/voltatlas/prognos/internal/domain"
)

func TestUpdatePredictJobTriggersPipeline(t *testing.T) {
	b := bus.New(zerolog.Nop())
	ran := false
	b.RegisterCommand(domain.UpdatePredictAll{}.CommandName(), func(cmd domain.Command) (any, []domain.Event, error) {
		ran = true
		return nil, nil, nil
	})

	job := NewUpdatePredictJob(b, zerolog.Nop())
	assert.Equal(t, "update_predict", job.Name())
	require.NoError(t, job.Run())
	assert.True(t, ran)
}

func TestPartnerForwardJobTriggersForward(t *testing.T) {
	b := bus.New(zerolog.Nop())
	var got domain.ForwardToTradingPartner
	b.RegisterCommand(domain.ForwardToTradingPartner{}.CommandName(), func(cmd domain.Command) (any, []domain.Event, error) {
		got = cmd.(domain.ForwardToTradingPartner)
		return nil, nil, nil
	})

	job := NewPartnerForwardJob(b, zerolog.Nop())
	require.NoError(t, job.Run())
	assert.False(t, got.Override, "the scheduled forward never overrides the gate")
}

func TestJobErrorsPropagate(t *testing.T) {
	b := bus.New(zerolog.Nop())
	// nothing registered: the bus rejects the command
	assert.Error(t, NewUpdatePredictJob(b, zerolog.Nop()).Run())
}

func TestAddJobRejectsBadSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	err := s.AddJob("not a schedule", NewUpdatePredictJob(bus.New(zerolog.Nop()), zerolog.Nop()))
	assert.Error(t, err)
}
