package domain

import "github.com/jonboulle/clockwork"

// clock is a package-level time source so tests can freeze the calendar
// date via SetClock. Production code uses the real clock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source used for date derivation. Pass nil to
// reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// DateLayout is the wire format for calendar dates throughout the pipeline.
const DateLayout = "2006-01-02"

// Today returns the current UTC calendar date in YYYY-MM-DD form.
func Today() string {
	return clock.Now().UTC().Format(DateLayout)
}
