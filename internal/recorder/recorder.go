// Package recorder owns the record/stop lifecycle: the growing in-session
// readings log, the bounded live display ring, and enforcement of the
// maximum continuous-recording duration.
package recorder

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mhaglund/fieldmeter/internal/session"
	"github.com/mhaglund/fieldmeter/internal/signal"
)

// State is the manager's lifecycle state.
type State int

const (
	Idle State = iota
	Recording
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	}
	return "unknown"
}

// Lease is a best-effort "keep running while suspended" capability the
// manager requests from its host. expired is invoked if the host revokes
// the lease early; the manager treats that as a trigger to auto-stop.
// The manager works correctly whether or not the host grants a lease.
type Lease interface {
	Acquire(expired func()) bool
	Release()
}

// NopLease is a Lease for hosts without background-execution support.
type NopLease struct{}

func (NopLease) Acquire(func()) bool { return false }
func (NopLease) Release()            {}

// How often the background duration check runs while recording.
const durationCheckInterval = 100 * time.Millisecond

// Options configures a Manager. Zero values get sensible defaults.
type Options struct {
	// Ceiling bounds continuous recording time; recording auto-stops once
	// it is reached. Defaults to one hour.
	Ceiling time.Duration

	// Lease is the host's background-execution capability. Defaults to
	// NopLease.
	Lease Lease

	// Now is the clock, injectable for tests. Defaults to time.Now.
	Now func() time.Time

	// OnAutoStop is invoked with the finalized session when the duration
	// ceiling or a lease expiry stops the recording, so the caller can
	// persist it. Called outside the manager's lock.
	OnAutoStop func(*session.Recording)
}

// Manager transitions between Idle and Recording and appends readings.
// All state transitions are atomic with respect to concurrent AddReading
// calls: once Stop begins, no further reading lands in the finalized
// session.
type Manager struct {
	mu      sync.Mutex
	state   State
	current *session.Recording
	log     []session.TimestampedSample
	live    *session.Ring
	done    chan struct{}

	ceiling    time.Duration
	lease      Lease
	now        func() time.Time
	onAutoStop func(*session.Recording)
}

// NewManager creates an Idle manager whose live ring buffer feeds the
// display independently of any session.
func NewManager(live *session.Ring, opts Options) *Manager {
	if opts.Ceiling <= 0 {
		opts.Ceiling = time.Hour
	}
	if opts.Lease == nil {
		opts.Lease = NopLease{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		state:      Idle,
		live:       live,
		ceiling:    opts.Ceiling,
		lease:      opts.Lease,
		now:        opts.Now,
		onAutoStop: opts.OnAutoStop,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Live returns the live display ring buffer.
func (m *Manager) Live() *session.Ring {
	return m.live
}

// Duration returns the elapsed recording time, or zero while Idle.
func (m *Manager) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Recording {
		return 0
	}
	return m.now().Sub(m.current.StartTime)
}

// Start begins a new recording session. A no-op if already Recording.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.state == Recording {
		m.mu.Unlock()
		return
	}

	m.state = Recording
	m.log = m.log[:0]
	m.current = &session.Recording{
		ID:        newULID(),
		StartTime: m.now(),
		Readings:  []session.TimestampedSample{},
	}
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	m.lease.Acquire(m.autoStop)
	go m.watchDuration(done)
}

// AddReading appends a reading while Recording: once to the session log
// with session-relative elapsed time, and once to the live ring with the
// app-relative appElapsed so the display flows across stop/start
// boundaries. A no-op while Idle, to tolerate late samples around a stop.
func (m *Manager) AddReading(raw signal.RawSample, appElapsed float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Recording {
		return
	}

	elapsed := m.now().Sub(m.current.StartTime).Seconds()
	m.log = append(m.log, session.NewTimestampedSample(raw, elapsed))
	m.live.Push(session.NewTimestampedSample(raw, appElapsed))
}

// AddLiveReading appends to the live ring only, keeping the display
// updating while Idle.
func (m *Manager) AddLiveReading(raw signal.RawSample, appElapsed float64) {
	m.live.Push(session.NewTimestampedSample(raw, appElapsed))
}

// Stop finalizes and returns the open session, or nil if not recording.
// The live ring buffer is left untouched for display continuity.
func (m *Manager) Stop() *session.Recording {
	m.mu.Lock()
	finalized := m.stopLocked()
	m.mu.Unlock()

	if finalized != nil {
		m.lease.Release()
	}
	return finalized
}

// stopLocked finalizes the open session. Caller holds m.mu.
func (m *Manager) stopLocked() *session.Recording {
	if m.state != Recording {
		return nil
	}

	finalized := m.current
	finalized.EndTime = m.now()
	finalized.Readings = make([]session.TimestampedSample, len(m.log))
	copy(finalized.Readings, m.log)

	m.log = m.log[:0]
	m.current = nil
	m.state = Idle
	close(m.done)
	m.done = nil
	return finalized
}

// autoStop stops the recording on behalf of the duration watcher or a
// lease expiry and hands the finalized session to OnAutoStop.
func (m *Manager) autoStop() {
	finalized := m.Stop()
	if finalized != nil && m.onAutoStop != nil {
		m.onAutoStop(finalized)
	}
}

// watchDuration periodically recomputes the recording duration and
// auto-stops once it reaches the ceiling. Recording never silently
// exceeds the ceiling, with or without a lease.
func (m *Manager) watchDuration(done chan struct{}) {
	ticker := time.NewTicker(durationCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			m.mu.Lock()
			over := m.state == Recording && m.now().Sub(m.current.StartTime) >= m.ceiling
			m.mu.Unlock()
			if over {
				m.autoStop()
				return
			}
		}
	}
}

// newULID generates a ULID session id.
func newULID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0)).String()
}
