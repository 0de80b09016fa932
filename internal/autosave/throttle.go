package autosave

import "time"

// throttle enforces a minimum spacing between persistence attempts. It
// records every attempt, successful or not.
type throttle struct {
	interval    time.Duration
	lastAttempt time.Time
}

// wait returns how long the next attempt must be deferred at now. Zero
// means an attempt may proceed.
func (th *throttle) wait(now time.Time) time.Duration {
	if th.lastAttempt.IsZero() || th.interval <= 0 {
		return 0
	}

	remaining := th.interval - now.Sub(th.lastAttempt)
	if remaining < 0 {
		return 0
	}

	return remaining
}

// record marks an attempt at now.
func (th *throttle) record(now time.Time) {
	th.lastAttempt = now
}
