package autosave

import (
	"log/slog"
	"sync"
	"time"
)

// StatusKind is the closed set of autosave states.
type StatusKind int

const (
	StatusIdle StatusKind = iota
	StatusSaving
	StatusSaved
	StatusError
	StatusOffline
)

func (k StatusKind) String() string {
	switch k {
	case StatusIdle:
		return "idle"
	case StatusSaving:
		return "saving"
	case StatusSaved:
		return "saved"
	case StatusError:
		return "error"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// DefaultStatusDisplay is how long saved and error stay visible before
// reverting to idle.
const DefaultStatusDisplay = 3 * time.Second

// Status messages shown by UI indicators.
const (
	msgSaving         = "Saving..."
	msgSaved          = "All changes saved"
	msgOffline        = "Offline. Changes are stored on this device"
	msgSaveFailed     = "Save failed. Changes are stored on this device"
	msgNotStored      = "Save failed. Changes could not be stored on this device"
	msgOfflineNoStore = "Offline. Changes could not be stored on this device"
)

// SaveStatus is the active autosave state. At is zero for idle.
type SaveStatus struct {
	Kind    StatusKind
	Message string
	At      time.Time
}

// allowedTransitions encodes the status state machine. saved is reachable
// only from saving; error is also reachable when a local fallback write
// fails on the offline path, which never passes through saving.
var allowedTransitions = map[StatusKind][]StatusKind{
	StatusIdle:    {StatusSaving, StatusOffline, StatusError},
	StatusSaving:  {StatusSaved, StatusError, StatusOffline},
	StatusSaved:   {StatusSaving, StatusOffline, StatusError, StatusIdle},
	StatusError:   {StatusSaving, StatusOffline, StatusError, StatusIdle},
	StatusOffline: {StatusSaving, StatusOffline, StatusError, StatusIdle},
}

func transitionAllowed(from, to StatusKind) bool {
	for _, k := range allowedTransitions[from] {
		if k == to {
			return true
		}
	}

	return false
}

// statusReporter owns the current SaveStatus and the single expiry timer
// that reverts saved/error to idle. Safe for concurrent use; the expiry
// callback only takes the reporter's own lock.
type statusReporter struct {
	mu      sync.Mutex
	current SaveStatus
	display time.Duration
	expiry  timerSlot
	subs    map[int]chan SaveStatus
	nextSub int
	closed  bool
	logger  *slog.Logger
}

func newStatusReporter(clock Clock, display time.Duration, logger *slog.Logger) *statusReporter {
	if display <= 0 {
		display = DefaultStatusDisplay
	}

	return &statusReporter{
		display: display,
		expiry:  timerSlot{clock: clock},
		subs:    make(map[int]chan SaveStatus),
		logger:  logger,
	}
}

// get returns the current status.
func (r *statusReporter) get() SaveStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.current
}

// set moves to kind if the state machine allows it. Any transition cancels
// a pending expiry; entering saved or error arms a new one. Returns false
// for rejected transitions.
func (r *statusReporter) set(kind StatusKind, message string, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}

	if !transitionAllowed(r.current.Kind, kind) {
		r.logger.Warn("autosave: rejected status transition",
			slog.String("from", r.current.Kind.String()),
			slog.String("to", kind.String()),
		)

		return false
	}

	r.expiry.cancel()
	r.apply(SaveStatus{Kind: kind, Message: message, At: at})

	if kind == StatusSaved || kind == StatusError {
		r.expiry.arm(r.display, r.expire)
	}

	return true
}

// reset returns to idle regardless of the state machine, canceling any
// pending expiry. Used when the form switches to another key.
func (r *statusReporter) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	r.expiry.cancel()

	if r.current.Kind != StatusIdle {
		r.apply(SaveStatus{Kind: StatusIdle})
	}
}

// expire is the expiry timer callback.
func (r *statusReporter) expire(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || !r.expiry.fire(gen) {
		return
	}

	r.apply(SaveStatus{Kind: StatusIdle})
}

// apply stores s and notifies subscribers. Callers hold r.mu.
func (r *statusReporter) apply(s SaveStatus) {
	prev := r.current.Kind
	r.current = s

	r.logger.Debug("autosave: status changed",
		slog.String("from", prev.String()),
		slog.String("to", s.Kind.String()),
	)

	for _, ch := range r.subs {
		// Latest-wins delivery: drop a stale unread status.
		select {
		case <-ch:
		default:
		}

		ch <- s
	}
}

// subscribe returns a channel receiving each new status. Slow readers only
// see the latest status.
func (r *statusReporter) subscribe() (<-chan SaveStatus, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextSub
	r.nextSub++

	ch := make(chan SaveStatus, 1)
	r.subs[id] = ch

	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		if c, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(c)
		}
	}
}

// close cancels the expiry timer, closes subscriber channels, and freezes
// the status.
func (r *statusReporter) close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.expiry.cancel()

	for id, ch := range r.subs {
		delete(r.subs, id)
		close(ch)
	}
}
