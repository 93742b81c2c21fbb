package recorder

import (
	"sync"
	"testing"
	"time"

	"github.com/mhaglund/fieldmeter/internal/session"
	"github.com/mhaglund/fieldmeter/internal/signal"
)

// fakeClock is a mutable clock for driving the manager deterministically.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestManager(clock *fakeClock, opts Options) *Manager {
	opts.Now = clock.Now
	return NewManager(session.NewRing(16), opts)
}

func TestStartStop_Lifecycle(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(clock, Options{})

	if m.State() != Idle {
		t.Fatalf("initial state = %v, want idle", m.State())
	}

	m.Start()
	if m.State() != Recording {
		t.Fatalf("state after Start = %v, want recording", m.State())
	}

	clock.Advance(time.Second)
	finalized := m.Stop()
	if finalized == nil {
		t.Fatal("Stop returned nil for an open recording")
	}
	if m.State() != Idle {
		t.Errorf("state after Stop = %v, want idle", m.State())
	}
	if finalized.ID == "" {
		t.Error("finalized session has no id")
	}
	if d := finalized.EndTime.Sub(finalized.StartTime); d != time.Second {
		t.Errorf("duration = %v, want 1s", d)
	}
}

func TestStart_NoopWhileRecording(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(clock, Options{})

	m.Start()
	m.AddReading(signal.RawSample{X: 1}, 0.1)
	m.Start() // must not restart or clear the open session

	finalized := m.Stop()
	if len(finalized.Readings) != 1 {
		t.Errorf("readings = %d, want 1 (second Start must be a no-op)", len(finalized.Readings))
	}
}

func TestStop_NilWhileIdle(t *testing.T) {
	m := newTestManager(newFakeClock(), Options{})
	if got := m.Stop(); got != nil {
		t.Errorf("Stop while idle = %v, want nil", got)
	}
}

func TestAddReading_SessionRelativeElapsed(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(clock, Options{})

	m.Start()
	clock.Advance(500 * time.Millisecond)
	m.AddReading(signal.RawSample{X: 3, Y: 4}, 99.5)
	clock.Advance(500 * time.Millisecond)
	m.AddReading(signal.RawSample{X: 30, Y: 40}, 100.0)

	finalized := m.Stop()
	if len(finalized.Readings) != 2 {
		t.Fatalf("readings = %d, want 2", len(finalized.Readings))
	}
	if finalized.Readings[0].Elapsed != 0.5 {
		t.Errorf("readings[0].Elapsed = %v, want session-relative 0.5", finalized.Readings[0].Elapsed)
	}
	if finalized.Readings[1].Elapsed != 1.0 {
		t.Errorf("readings[1].Elapsed = %v, want 1.0", finalized.Readings[1].Elapsed)
	}
	if finalized.Readings[0].Magnitude != 5 {
		t.Errorf("readings[0].Magnitude = %v, want 5", finalized.Readings[0].Magnitude)
	}

	// The live ring got the app-relative timestamps.
	live := m.Live().Samples()
	if len(live) != 2 || live[0].Elapsed != 99.5 {
		t.Errorf("live ring = %+v, want app-relative elapsed times", live)
	}
}

func TestAddReading_NoopWhileIdle(t *testing.T) {
	m := newTestManager(newFakeClock(), Options{})

	m.AddReading(signal.RawSample{X: 1}, 0) // must not panic or buffer anything

	m.Start()
	finalized := m.Stop()
	if len(finalized.Readings) != 0 {
		t.Errorf("readings = %d, want 0", len(finalized.Readings))
	}
}

func TestAddLiveReading_WhileIdle(t *testing.T) {
	m := newTestManager(newFakeClock(), Options{})

	m.AddLiveReading(signal.RawSample{X: 1}, 1.0)
	m.AddLiveReading(signal.RawSample{X: 2}, 2.0)

	if m.Live().Len() != 2 {
		t.Errorf("live ring len = %d, want 2 while idle", m.Live().Len())
	}
}

func TestStop_LeavesLiveRingUntouched(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(clock, Options{})

	m.Start()
	m.AddReading(signal.RawSample{X: 1}, 1.0)
	m.AddReading(signal.RawSample{X: 2}, 2.0)
	m.Stop()

	if m.Live().Len() != 2 {
		t.Errorf("live ring len after Stop = %d, want 2 (continuity across sessions)", m.Live().Len())
	}
}

func TestAutoStop_DurationCeiling(t *testing.T) {
	clock := newFakeClock()

	var mu sync.Mutex
	var autoStopped *session.Recording
	m := newTestManager(clock, Options{
		Ceiling: time.Hour,
		OnAutoStop: func(r *session.Recording) {
			mu.Lock()
			autoStopped = r
			mu.Unlock()
		},
	})

	m.Start()
	clock.Advance(2 * time.Hour)

	// The background check runs every 100ms of real time.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == Idle {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if m.State() != Idle {
		t.Fatal("recording was not auto-stopped at the ceiling")
	}
	mu.Lock()
	defer mu.Unlock()
	if autoStopped == nil {
		t.Fatal("OnAutoStop was not invoked with the finalized session")
	}
	if autoStopped.EndTime.IsZero() {
		t.Error("auto-stopped session has no end time")
	}
}

// grantedLease records acquire/release calls and hands back the expiry
// callback so the test can revoke the lease.
type grantedLease struct {
	mu       sync.Mutex
	expired  func()
	acquired int
	released int
}

func (l *grantedLease) Acquire(expired func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expired = expired
	l.acquired++
	return true
}

func (l *grantedLease) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released++
}

func TestLease_AcquiredAndReleased(t *testing.T) {
	lease := &grantedLease{}
	m := newTestManager(newFakeClock(), Options{Lease: lease})

	m.Start()
	m.Stop()

	lease.mu.Lock()
	defer lease.mu.Unlock()
	if lease.acquired != 1 || lease.released != 1 {
		t.Errorf("lease acquired/released = %d/%d, want 1/1", lease.acquired, lease.released)
	}
}

func TestLease_ExpiryStopsRecording(t *testing.T) {
	lease := &grantedLease{}

	var mu sync.Mutex
	var autoStopped *session.Recording
	m := newTestManager(newFakeClock(), Options{
		Lease: lease,
		OnAutoStop: func(r *session.Recording) {
			mu.Lock()
			autoStopped = r
			mu.Unlock()
		},
	})

	m.Start()

	lease.mu.Lock()
	expire := lease.expired
	lease.mu.Unlock()
	expire()

	if m.State() != Idle {
		t.Fatal("lease expiry should stop the recording")
	}
	mu.Lock()
	defer mu.Unlock()
	if autoStopped == nil {
		t.Error("lease expiry should hand the session to OnAutoStop")
	}
}

func TestConcurrentAddReadingAndStop(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(clock, Options{})

	m.Start()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				m.AddReading(signal.RawSample{X: 1}, 0)
			}
		}
	}()

	time.Sleep(20 * time.Millisecond)
	finalized := m.Stop()
	count := len(finalized.Readings)
	close(stop)
	wg.Wait()

	// Whatever landed before Stop is exactly what the session keeps.
	if count == 0 {
		t.Error("expected some readings before Stop")
	}
	if got := len(finalized.Readings); got != count {
		t.Errorf("readings grew after Stop: %d -> %d", count, got)
	}
}
