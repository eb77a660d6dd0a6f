package delivery

import (
	"time"

	"github.com/voltatlas/prognos/internal/domain"
	"github.com/voltatlas/prognos/internal/utils"
)

const (
	// InternalHorizonDays is the schedule management forecast depth.
	InternalHorizonDays = 7
	// PartnerHorizonDays is the trading partner contract's forecast depth.
	PartnerHorizonDays = 6
)

// Gate closure wall-clock times in Berlin. A forecast shipped before the
// closure counts for that day's obligation.
var (
	gateClosureInternal = clock{11, 45}
	gateClosurePartner  = clock{13, 0}
)

type clock struct {
	hour, minute int
}

// GateClosure returns the receiver's gate closure instant on the given day.
func GateClosure(receiver domain.Receiver, day time.Time) time.Time {
	c := gateClosureInternal
	if receiver == domain.ReceiverEnergyTradingPartner {
		c = gateClosurePartner
	}
	midnight := utils.Midnight(day, utils.ZoneBerlin)
	return midnight.Add(time.Duration(c.hour)*time.Hour + time.Duration(c.minute)*time.Minute)
}

// HorizonDates returns the midnights of the next `days` calendar days in the
// given zone, starting tomorrow.
func HorizonDates(now time.Time, days int, zone *time.Location) []time.Time {
	start := utils.Midnight(now, zone).AddDate(0, 0, 1)
	dates := make([]time.Time, days)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
	}
	return dates
}
