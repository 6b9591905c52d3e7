package conversync

import "time"

// backoffState is the reconnection schedule: a fixed base delay that
// doubles on each consecutive failure up to a cap, with a hard attempt
// limit. Pure state machine — the caller owns the timers.
type backoffState struct {
	base        time.Duration
	cap         time.Duration
	maxAttempts int
	attempts    int
}

func newBackoff(base, cap time.Duration, maxAttempts int) backoffState {
	return backoffState{base: base, cap: cap, maxAttempts: maxAttempts}
}

// exhausted reports whether the attempt budget is spent. Once true, the
// owner must stop auto-retrying and go terminal until an explicit open.
func (b *backoffState) exhausted() bool {
	return b.attempts >= b.maxAttempts
}

// next consumes one attempt and returns the delay before it. The first
// attempt waits the base delay; each subsequent attempt doubles it,
// capped. Callers must check exhausted() first.
func (b *backoffState) next() time.Duration {
	d := b.base << uint(b.attempts)
	if d > b.cap || d <= 0 {
		d = b.cap
	}
	b.attempts++
	return d
}

// reset clears the attempt counter after a successful connection or an
// explicit caller-initiated open.
func (b *backoffState) reset() {
	b.attempts = 0
}
