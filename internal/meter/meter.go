// Package meter drives the live pipeline: a sensor loop pulling raw
// samples at the sensor cadence, and an independent display loop
// evaluating the needle and audio cue at the refresh cadence. The two
// loops never block each other; the display loop holds the last processed
// value between samples since its cadence exceeds the sensor's.
package meter

import (
	"context"
	"sync"
	"time"

	"github.com/mhaglund/fieldmeter/internal/audio"
	"github.com/mhaglund/fieldmeter/internal/needle"
	"github.com/mhaglund/fieldmeter/internal/recorder"
	"github.com/mhaglund/fieldmeter/internal/sensor"
	"github.com/mhaglund/fieldmeter/internal/signal"
)

// Frame is one display-rate snapshot of the pipeline, the payload pushed
// to the web live view and the MQTT publisher.
type Frame struct {
	Elapsed    float64 `json:"elapsed"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Magnitude  float64 `json:"magnitude"`
	Normalized float64 `json:"normalized"`
	Needle     float64 `json:"needle"`
	ClickRate  float64 `json:"click_rate"`
	Recording  bool    `json:"recording"`
}

// Options configures a Meter.
type Options struct {
	Source         sensor.Source
	Processor      *signal.Processor
	Needle         *needle.Simulator
	Manager        *recorder.Manager
	SensorRateHz   int
	DisplayRateHz  int
	// OnClick is invoked from the display loop each time an audio cue
	// fires. Optional; playback plumbing lives outside the core.
	OnClick func()
}

// Meter owns the sensor and display loops and the cue throttle state.
type Meter struct {
	source  sensor.Source
	proc    *signal.Processor
	needle  *needle.Simulator
	manager *recorder.Manager
	onClick func()

	sensorInterval  time.Duration
	displayInterval time.Duration

	mu         sync.Mutex
	latest     signal.ProcessedSample
	haveSample bool
	needlePos  float64
	start      time.Time
	lastClick  time.Time
	calibrate  bool
}

// New creates a Meter. Rates at or below zero fall back to 30/60 Hz.
func New(opts Options) *Meter {
	if opts.SensorRateHz <= 0 {
		opts.SensorRateHz = 30
	}
	if opts.DisplayRateHz <= 0 {
		opts.DisplayRateHz = 60
	}
	return &Meter{
		source:          opts.Source,
		proc:            opts.Processor,
		needle:          opts.Needle,
		manager:         opts.Manager,
		onClick:         opts.OnClick,
		sensorInterval:  time.Second / time.Duration(opts.SensorRateHz),
		displayInterval: time.Second / time.Duration(opts.DisplayRateHz),
	}
}

// Manager returns the recording manager so callers can start and stop
// sessions while the loops run.
func (m *Meter) Manager() *recorder.Manager {
	return m.manager
}

// Calibrate zeroes the meter against the next sample that arrives.
func (m *Meter) Calibrate() {
	m.mu.Lock()
	m.calibrate = true
	m.mu.Unlock()
}

// Run drives both loops until ctx is cancelled. An open recording is
// stopped and discarded on exit; callers wanting it persisted stop the
// recording themselves first.
func (m *Meter) Run(ctx context.Context) {
	m.mu.Lock()
	m.start = time.Now()
	m.lastClick = m.start
	m.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.sensorLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		m.displayLoop(ctx)
	}()
	wg.Wait()
}

// sensorLoop pulls raw samples at the sensor cadence and feeds the
// processor and the recorder.
func (m *Meter) sensorLoop(ctx context.Context) {
	ticker := time.NewTicker(m.sensorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		raw, err := m.source.Next()
		if err != nil {
			continue
		}

		m.mu.Lock()
		if m.calibrate {
			m.proc.Calibrate(raw)
			m.calibrate = false
		}
		processed := m.proc.Process(raw)
		m.latest = processed
		m.haveSample = true
		appElapsed := time.Since(m.start).Seconds()
		m.mu.Unlock()

		if m.manager.State() == recorder.Recording {
			m.manager.AddReading(processed.Calibrated, appElapsed)
		} else {
			m.manager.AddLiveReading(processed.Calibrated, appElapsed)
		}
	}
}

// displayLoop integrates the needle and evaluates the audio cue at the
// display cadence, holding the last normalized value between samples.
func (m *Meter) displayLoop(ctx context.Context) {
	ticker := time.NewTicker(m.displayInterval)
	defer ticker.Stop()

	dt := m.displayInterval.Seconds()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := time.Now()

		m.mu.Lock()
		target := m.latest.NormalizedValue
		m.needlePos = m.needle.Update(target, dt)

		// The throttle state lives here, not in the audio package:
		// lastClick only advances when a cue actually fires.
		fire := audio.ShouldPlay(target, now.Sub(m.lastClick))
		if fire {
			m.lastClick = now
		}
		onClick := m.onClick
		m.mu.Unlock()

		if fire && onClick != nil {
			onClick()
		}
	}
}

// Snapshot returns the current frame for the live view.
func (m *Meter) Snapshot() Frame {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Frame{
		Elapsed:    time.Since(m.start).Seconds(),
		X:          m.latest.Calibrated.X,
		Y:          m.latest.Calibrated.Y,
		Z:          m.latest.Calibrated.Z,
		Magnitude:  m.latest.Magnitude,
		Normalized: m.latest.NormalizedValue,
		Needle:     m.needlePos,
		ClickRate:  audio.ClickRate(m.latest.NormalizedValue),
		Recording:  m.manager.State() == recorder.Recording,
	}
}
