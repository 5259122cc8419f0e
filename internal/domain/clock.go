package domain

import "github.com/jonboulle/clockwork"

// clock supplies ingestion time for rows whose timestamp cannot be parsed.
var clock = clockwork.NewRealClock()

// SetClock replaces the ingestion time source. Pass nil to restore real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}
