package autosave

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Default scheduling intervals.
const (
	DefaultDebounce = 900 * time.Millisecond
	DefaultThrottle = 2 * time.Second
)

// errInterrupted is the result recorded for a persistence call that never
// returned (it panicked). The in-flight flag is still cleared.
var errInterrupted = errors.New("autosave: persistence call did not complete")

// Persister is the remote persistence API. Upsert must be idempotent for a
// given key (create-or-update keyed by RecordID).
type Persister interface {
	Upsert(ctx context.Context, key PersistenceKey, snap FormSnapshot) error
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(ctx context.Context, key PersistenceKey, snap FormSnapshot) error

// Upsert calls f.
func (f PersisterFunc) Upsert(ctx context.Context, key PersistenceKey, snap FormSnapshot) error {
	return f(ctx, key, snap)
}

// Deps are the collaborators of a Synchronizer. Persister is required; the
// rest default to an always-online monitor, an in-memory fallback store, a
// detector without list fields, and the wall clock.
type Deps struct {
	Persister     Persister
	Fallback      FallbackStore
	Connectivity  *Connectivity
	Detector      *Detector
	Clock         Clock
	StatusDisplay time.Duration
}

// Options is what the form view passes on every render.
type Options struct {
	OwnerID  string
	RecordID string
	Snapshot FormSnapshot
	Debounce time.Duration // zero means DefaultDebounce
	Throttle time.Duration // zero means DefaultThrottle
	Disabled bool
}

// ReadModel is the continuously updated view of the synchronizer.
type ReadModel struct {
	Status   SaveStatus
	IsSaving bool
	IsOnline bool
}

// keyState is the per-PersistenceKey scheduling state.
type keyState struct {
	persisted *FormSnapshot // last saved, stored locally, or attempted
	throttle  throttle
	inFlight  bool
	recheck   bool          // a cycle completed or a change arrived mid-flight
	replay    *FormSnapshot // fallback snapshot to push after reconnecting
}

// Synchronizer autosaves one form view. Create one per view with New and
// dispose of it with Close; instances share nothing but the fallback store
// and connectivity monitor they are given.
//
// All scheduling decisions (debounce, throttle, in-flight check) run under
// one mutex. The remote call and the fallback write after a failed call run
// outside it.
type Synchronizer struct {
	mu        sync.Mutex
	persister Persister
	fallback  FallbackStore
	conn      *Connectivity
	detector  *Detector
	clock     Clock
	status    *statusReporter
	logger    *slog.Logger

	key           PersistenceKey
	latest        *FormSnapshot
	eligible      bool
	debounceDelay time.Duration
	throttleDelay time.Duration
	debounce      timerSlot
	deferred      timerSlot // attempt held back by the throttle
	keys          map[PersistenceKey]*keyState

	unsubscribe func()
	closed      bool
	inflight    sync.WaitGroup
}

// New creates a Synchronizer and subscribes it to connectivity changes.
func New(deps Deps, logger *slog.Logger) *Synchronizer {
	if deps.Clock == nil {
		deps.Clock = realClock{}
	}

	if deps.Detector == nil {
		deps.Detector = NewDetector()
	}

	if deps.Connectivity == nil {
		deps.Connectivity = NewConnectivity(true, logger)
	}

	if deps.Fallback == nil {
		deps.Fallback = NewMemoryFallback(0)
	}

	s := &Synchronizer{
		persister:     deps.Persister,
		fallback:      deps.Fallback,
		conn:          deps.Connectivity,
		detector:      deps.Detector,
		clock:         deps.Clock,
		status:        newStatusReporter(deps.Clock, deps.StatusDisplay, logger),
		logger:        logger,
		debounceDelay: DefaultDebounce,
		throttleDelay: DefaultThrottle,
		debounce:      timerSlot{clock: deps.Clock},
		deferred:      timerSlot{clock: deps.Clock},
		keys:          make(map[PersistenceKey]*keyState),
	}

	s.unsubscribe = deps.Connectivity.Subscribe(s.onConnectivity)

	return s
}

// Configure feeds the current form state. It never blocks on I/O other than
// the local fallback write on the offline path, and returns the read model.
func (s *Synchronizer) Configure(opts Options) ReadModel {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.readModelLocked()
	}

	s.debounceDelay = orDefault(opts.Debounce, DefaultDebounce)
	s.throttleDelay = orDefault(opts.Throttle, DefaultThrottle)

	key := PersistenceKey{OwnerID: opts.OwnerID, RecordID: opts.RecordID}
	if key != s.key {
		s.debounce.cancel()
		s.deferred.cancel()

		s.key = key
		s.latest = nil

		// The previous key's status does not describe this form.
		s.status.reset()

		if ks, ok := s.keys[key]; ok && ks.inFlight {
			s.status.set(StatusSaving, msgSaving, s.clock.Now())
		}

		s.logger.Debug("autosave: form key changed", slog.String("key", key.String()))
	}

	snap := opts.Snapshot
	edited := s.latest == nil || !s.detector.Equal(*s.latest, snap)
	s.latest = &snap

	wasEligible := s.eligible
	s.eligible = key.Valid() && !opts.Disabled

	if !s.eligible {
		s.debounce.cancel()
		s.deferred.cancel()

		return s.readModelLocked()
	}

	ks := s.stateLocked()
	ks.throttle.interval = s.throttleDelay

	if (edited || !wasEligible) && s.pendingLocked(ks) {
		if ks.inFlight {
			ks.recheck = true
		}

		// A fresh debounce supersedes an attempt waiting out the throttle.
		s.deferred.cancel()
		s.debounce.arm(s.debounceDelay, s.onDebounce)
	}

	return s.readModelLocked()
}

// SaveNow persists the latest snapshot immediately, skipping debounce and
// throttle. It is the manual save path and also retries after an error.
// The in-flight guard still applies: during a save it only requests a
// follow-up cycle.
func (s *Synchronizer) SaveNow() ReadModel {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.eligible || s.latest == nil {
		return s.readModelLocked()
	}

	s.debounce.cancel()
	s.deferred.cancel()

	ks := s.stateLocked()
	if ks.inFlight {
		ks.recheck = true
		return s.readModelLocked()
	}

	s.attemptLocked(ks, *s.latest)

	return s.readModelLocked()
}

// Status returns the current read model.
func (s *Synchronizer) Status() ReadModel {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readModelLocked()
}

// Subscribe returns a channel receiving every status change and a function
// to stop receiving. The channel is closed by the cancel function or Close.
func (s *Synchronizer) Subscribe() (<-chan SaveStatus, func()) {
	return s.status.subscribe()
}

// Close tears the synchronizer down: pending timers are canceled and later
// results of in-flight calls are discarded. In-flight calls are not
// interrupted; use Wait to block until they finish.
func (s *Synchronizer) Close() {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return
	}

	s.closed = true
	s.debounce.cancel()
	s.deferred.cancel()

	unsubscribe := s.unsubscribe
	s.mu.Unlock()

	unsubscribe()
	s.status.close()

	s.logger.Debug("autosave: closed", slog.String("key", s.key.String()))
}

// Wait blocks until every in-flight persistence call has completed.
func (s *Synchronizer) Wait() {
	s.inflight.Wait()
}

func (s *Synchronizer) onDebounce(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.debounce.fire(gen) {
		return
	}

	s.tryAttemptLocked()
}

func (s *Synchronizer) onDeferred(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.deferred.fire(gen) {
		return
	}

	s.tryAttemptLocked()
}

// tryAttemptLocked runs the guard chain: change detection, in-flight check,
// throttle. Only when all pass is an attempt issued.
func (s *Synchronizer) tryAttemptLocked() {
	if !s.eligible {
		return
	}

	ks := s.stateLocked()

	snap, ok := s.nextSnapshotLocked(ks)
	if !ok {
		s.logger.Debug("autosave: no changes to persist", slog.String("key", s.key.String()))
		return
	}

	if ks.inFlight {
		ks.recheck = true
		s.logger.Debug("autosave: save in flight, re-check queued", slog.String("key", s.key.String()))

		return
	}

	if wait := ks.throttle.wait(s.clock.Now()); wait > 0 {
		s.logger.Debug("autosave: throttled",
			slog.String("key", s.key.String()),
			slog.Duration("wait", wait),
		)
		s.deferred.arm(wait, s.onDeferred)

		return
	}

	s.attemptLocked(ks, snap)
}

// nextSnapshotLocked picks what the next attempt should persist: a pending
// fallback replay, unless newer edits supersede it, else the latest
// snapshot if it differs from the last persisted one.
func (s *Synchronizer) nextSnapshotLocked(ks *keyState) (FormSnapshot, bool) {
	if ks.replay != nil {
		if s.latest == nil || s.detector.Equal(*ks.replay, *s.latest) {
			return *ks.replay, true
		}

		ks.replay = nil
	}

	if !s.pendingLocked(ks) {
		return FormSnapshot{}, false
	}

	return *s.latest, true
}

// attemptLocked issues one persistence attempt for the current key.
func (s *Synchronizer) attemptLocked(ks *keyState, snap FormSnapshot) {
	now := s.clock.Now()
	key := s.key

	prev := ks.persisted

	ks.throttle.record(now)
	ks.persisted = &snap
	ks.replay = nil

	if !s.conn.Online() {
		if !s.storeOfflineLocked(key, snap, now) {
			// Stored nowhere: keep it pending so reconnecting pushes it.
			ks.persisted = prev
		}

		return
	}

	ks.inFlight = true
	s.status.set(StatusSaving, msgSaving, now)

	s.logger.Debug("autosave: saving", slog.String("key", key.String()), slog.Int("fields", snap.Len()))

	s.inflight.Add(1)

	go s.persist(key, ks, snap)
}

// storeOfflineLocked is the offline branch: no remote call, the snapshot
// goes to the local fallback store. Reports whether the write succeeded.
func (s *Synchronizer) storeOfflineLocked(key PersistenceKey, snap FormSnapshot, now time.Time) bool {
	if err := s.writeFallback(key, snap, now); err != nil {
		s.logger.Error("autosave: local fallback write failed",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
		s.status.set(StatusError, msgOfflineNoStore, now)

		return false
	}

	s.logger.Info("autosave: offline, draft stored locally", slog.String("key", key.String()))
	s.status.set(StatusOffline, msgOffline, now)

	return true
}

// persist runs on its own goroutine. The completion handler is deferred so
// the in-flight flag is cleared however the call ends.
func (s *Synchronizer) persist(key PersistenceKey, ks *keyState, snap FormSnapshot) {
	defer s.inflight.Done()

	err := errInterrupted

	defer func() { s.complete(key, ks, snap, err) }()

	err = s.persister.Upsert(context.Background(), key, snap)
}

// complete handles the end of a remote call: fallback bookkeeping outside
// the lock, then state and status updates under it.
func (s *Synchronizer) complete(key PersistenceKey, ks *keyState, snap FormSnapshot, err error) {
	var fbErr error

	if err != nil {
		fbErr = s.writeFallback(key, snap, s.clock.Now())
	} else if delErr := s.fallback.Delete(context.Background(), key.FallbackKey()); delErr != nil {
		s.logger.Warn("autosave: clearing local fallback failed",
			slog.String("key", key.String()),
			slog.String("error", delErr.Error()),
		)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ks.inFlight = false

	if fbErr != nil && ks.persisted != nil && s.detector.Equal(*ks.persisted, snap) {
		// Neither saved nor stored: the next trigger must send it again.
		ks.persisted = nil
	}

	if err != nil {
		s.logger.Warn("autosave: save failed",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
	} else {
		s.logger.Info("autosave: saved", slog.String("key", key.String()))
	}

	if fbErr != nil {
		s.logger.Error("autosave: local fallback write failed",
			slog.String("key", key.String()),
			slog.String("error", fbErr.Error()),
		)
	}

	if s.closed || key != s.key {
		s.logger.Debug("autosave: discarding result for inactive form", slog.String("key", key.String()))
		return
	}

	now := s.clock.Now()

	switch {
	case err == nil:
		s.status.set(StatusSaved, msgSaved, now)
	case fbErr != nil:
		s.status.set(StatusError, msgNotStored, now)
	case !s.conn.Online():
		s.status.set(StatusOffline, msgOffline, now)
	default:
		s.status.set(StatusError, msgSaveFailed, now)
	}

	if !ks.recheck {
		return
	}

	ks.recheck = false

	if s.eligible && (ks.replay != nil || s.pendingLocked(ks)) {
		s.debounce.arm(s.debounceDelay, s.onDebounce)
	}
}

// onConnectivity reacts to online/offline transitions.
func (s *Synchronizer) onConnectivity(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Drop notifications overtaken by a newer transition.
	if s.closed || !s.eligible || s.conn.Online() != online {
		return
	}

	ks := s.stateLocked()
	now := s.clock.Now()

	if !online {
		if !ks.inFlight && (s.debounce.pending() || s.deferred.pending() || s.pendingLocked(ks)) {
			s.status.set(StatusOffline, msgOffline, now)
		}

		return
	}

	rec, found, err := s.fallback.Get(context.Background(), s.key.FallbackKey())
	if err != nil {
		s.logger.Error("autosave: reading local fallback failed",
			slog.String("key", s.key.String()),
			slog.String("error", err.Error()),
		)
	}

	if found {
		snap := rec.Snapshot
		ks.replay = &snap

		s.logger.Info("autosave: back online, replaying stored draft",
			slog.String("key", s.key.String()),
			slog.Time("stored_at", time.UnixMilli(rec.Timestamp)),
		)

		if ks.inFlight {
			ks.recheck = true
			return
		}

		s.tryAttemptLocked()

		return
	}

	if s.status.get().Kind == StatusOffline {
		s.status.set(StatusIdle, "", time.Time{})
	}

	if s.pendingLocked(ks) && !s.debounce.pending() && !ks.inFlight {
		s.debounce.arm(s.debounceDelay, s.onDebounce)
	}
}

// writeFallback stores snap under key's fallback entry.
func (s *Synchronizer) writeFallback(key PersistenceKey, snap FormSnapshot, now time.Time) error {
	return s.fallback.Set(context.Background(), key.FallbackKey(), FallbackRecord{
		Snapshot:  snap,
		Timestamp: now.UnixMilli(),
	})
}

// pendingLocked reports whether the latest snapshot needs persisting.
func (s *Synchronizer) pendingLocked(ks *keyState) bool {
	return s.latest != nil && s.detector.Changed(ks.persisted, *s.latest)
}

// stateLocked returns the scheduling state of the current key.
func (s *Synchronizer) stateLocked() *keyState {
	ks, ok := s.keys[s.key]
	if !ok {
		ks = &keyState{throttle: throttle{interval: s.throttleDelay}}
		s.keys[s.key] = ks
	}

	return ks
}

func (s *Synchronizer) readModelLocked() ReadModel {
	saving := false
	if ks, ok := s.keys[s.key]; ok {
		saving = ks.inFlight
	}

	return ReadModel{
		Status:   s.status.get(),
		IsSaving: saving,
		IsOnline: s.conn.Online(),
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}

	return d
}
