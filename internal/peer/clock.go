package peer

import "time"

// Clock lets tests drive the duplicate-signal debounce deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
