package clock

import "time"

// Clock abstracts wall-clock reads so lifecycle timestamps are deterministic in tests.
// Params: none.
// Returns: current time.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
// Params: none.
// Returns: current UTC timestamp.
type RealClock struct{}

// Now returns the current UTC time.
// Params: none.
// Returns: current UTC timestamp.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}
