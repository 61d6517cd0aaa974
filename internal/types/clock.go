package types

import "time"

// Clock supplies the current time. Every reservation transition compares
// against Clock.Now rather than relying on a background sweep.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystemClock returns a Clock backed by time.Now in UTC
func NewSystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}
