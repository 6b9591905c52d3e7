package conversync

import "time"

// Clock abstracts wall time and timer scheduling so the heartbeat,
// backoff, and pending-message timers can run against a fake in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the stoppable handle returned by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// systemClock is the Clock used when none is injected.
var systemClock Clock = realClock{}
