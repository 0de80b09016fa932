package autosave

import "time"

// Clock abstracts time so the scheduling logic can be driven by tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the cancellable handle returned by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

// realClock is the wall-clock Clock backed by package time.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// timerSlot holds at most one pending timer. Arming the slot cancels the
// previous timer. Because a stopped time.AfterFunc callback may already be
// running, every arm bumps a generation and callbacks must call fire with
// the generation they were armed with; stale generations are ignored.
//
// timerSlot is not safe for concurrent use; the owner's mutex guards it.
type timerSlot struct {
	clock Clock
	timer Timer
	gen   uint64
}

// arm schedules f after d, replacing any pending timer. f receives the
// generation to pass to fire.
func (t *timerSlot) arm(d time.Duration, f func(gen uint64)) {
	t.cancel()

	gen := t.gen
	t.timer = t.clock.AfterFunc(d, func() { f(gen) })
}

// cancel stops the pending timer, if any, and invalidates its generation.
func (t *timerSlot) cancel() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}

	t.gen++
}

// fire reports whether gen is the live generation and, if so, marks the
// slot empty. Callers hold the owner's mutex.
func (t *timerSlot) fire(gen uint64) bool {
	if t.timer == nil || gen != t.gen {
		return false
	}

	t.timer = nil
	t.gen++

	return true
}

// pending reports whether a timer is armed.
func (t *timerSlot) pending() bool {
	return t.timer != nil
}
