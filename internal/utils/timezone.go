// Package utils provides small helpers shared across the application.
package utils

import "time"

// ZoneBerlin is the market timezone. Activation windows, gate closures and
// the internal delivery format are defined in Berlin wall-clock time.
var ZoneBerlin = mustLoadLocation("Europe/Berlin")

// ZoneUTC is the partner delivery timezone.
var ZoneUTC = time.UTC

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// Midnight truncates t to the start of its calendar day in zone.
func Midnight(t time.Time, zone *time.Location) time.Time {
	local := t.In(zone)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, zone)
}
