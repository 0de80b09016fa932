package autosave

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// testLogger returns a debug-level logger that writes to t.Log.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testLogWriter adapts testing.T to io.Writer for slog.
type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

// fakeClock is a manually advanced Clock. Timer callbacks run on the
// goroutine calling Advance, in deadline order.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)

	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	active := !t.stopped && !t.fired
	t.stopped = true

	return active
}

// Advance moves time forward by d, firing every timer that falls due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()

		var next *fakeTimer

		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}

			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}

		if next == nil {
			c.now = target
			c.mu.Unlock()

			return
		}

		c.now = next.at
		next.fired = true
		c.mu.Unlock()

		next.f()
	}
}

// elapsed returns the time since the fake clock's origin.
func (c *fakeClock) elapsed() time.Duration {
	return c.Now().Sub(newFakeClock().now)
}

// persistCall records one Upsert.
type persistCall struct {
	key  PersistenceKey
	snap FormSnapshot
	at   time.Duration
}

// fakePersister records calls. When gate is non-nil, each call signals
// started and then blocks until gate is closed.
type fakePersister struct {
	mu      sync.Mutex
	clock   *fakeClock
	calls   []persistCall
	err     error
	gate    chan struct{}
	started chan struct{}
}

func newFakePersister(clock *fakeClock) *fakePersister {
	return &fakePersister{clock: clock, started: make(chan struct{}, 16)}
}

func (p *fakePersister) Upsert(_ context.Context, key PersistenceKey, snap FormSnapshot) error {
	p.mu.Lock()
	p.calls = append(p.calls, persistCall{key: key, snap: snap, at: p.clock.elapsed()})
	gate := p.gate
	err := p.err
	p.mu.Unlock()

	p.started <- struct{}{}

	if gate != nil {
		<-gate
	}

	return err
}

func (p *fakePersister) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.calls)
}

func (p *fakePersister) call(i int) persistCall {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.calls[i]
}

func (p *fakePersister) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.err = err
}

// harness bundles a Synchronizer with its fakes.
type harness struct {
	clock     *fakeClock
	persister *fakePersister
	fallback  *MemoryFallback
	conn      *Connectivity
	sync      *Synchronizer
}

func newHarness(t *testing.T, online bool) *harness {
	t.Helper()

	logger := testLogger(t)
	clock := newFakeClock()
	h := &harness{
		clock:     clock,
		persister: newFakePersister(clock),
		fallback:  NewMemoryFallback(0),
		conn:      NewConnectivity(online, logger),
	}

	h.sync = New(Deps{
		Persister:    h.persister,
		Fallback:     h.fallback,
		Connectivity: h.conn,
		Detector:     NewDetector("subjects_to_tutor", "languages_spoken"),
		Clock:        clock,
	}, logger)

	t.Cleanup(func() {
		h.sync.Close()
		h.sync.Wait()
	})

	return h
}

const (
	testOwner  = "student-7f3a"
	testRecord = "app-0192"
)

var testKey = PersistenceKey{OwnerID: testOwner, RecordID: testRecord}

// configure feeds snap for the test key with default timings.
func (h *harness) configure(snap FormSnapshot) ReadModel {
	return h.sync.Configure(Options{OwnerID: testOwner, RecordID: testRecord, Snapshot: snap})
}

func formWithName(name string) FormSnapshot {
	return NewSnapshot(
		Field{Name: "full_name", Value: Text(name)},
		Field{Name: "student_number", Value: Text("201912345")},
		Field{Name: "subjects_to_tutor", Value: Text("Mathematics, Physics")},
	)
}
