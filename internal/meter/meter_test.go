package meter

import (
	"context"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mhaglund/fieldmeter/internal/needle"
	"github.com/mhaglund/fieldmeter/internal/recorder"
	"github.com/mhaglund/fieldmeter/internal/session"
	"github.com/mhaglund/fieldmeter/internal/signal"
)

// constantSource always returns the same field vector.
type constantSource struct {
	sample signal.RawSample
}

func (s *constantSource) Next() (signal.RawSample, error) {
	return s.sample, nil
}

func newTestMeter(src *constantSource, onClick func()) *Meter {
	sim := needle.NewSimulator(rand.New(rand.NewSource(1)))
	sim.SetJitter(false)
	return New(Options{
		Source:        src,
		Processor:     signal.NewProcessor(200),
		Needle:        sim,
		Manager:       recorder.NewManager(session.NewRing(64), recorder.Options{}),
		SensorRateHz:  200,
		DisplayRateHz: 200,
		OnClick:       onClick,
	})
}

func runFor(m *Meter, d time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	m.Run(ctx)
}

func TestRun_ProcessesSamples(t *testing.T) {
	// 100 µT against a 200 µT full scale: normalized 0.5.
	m := newTestMeter(&constantSource{sample: signal.RawSample{X: 100}}, nil)

	runFor(m, 300*time.Millisecond)

	frame := m.Snapshot()
	if frame.Magnitude != 100 {
		t.Errorf("magnitude = %v, want 100", frame.Magnitude)
	}
	if frame.Normalized != 0.5 {
		t.Errorf("normalized = %v, want 0.5", frame.Normalized)
	}
	if frame.Needle <= 0 {
		t.Errorf("needle = %v, want > 0 after driving toward 0.5", frame.Needle)
	}
	if frame.ClickRate != 25 {
		t.Errorf("click rate = %v, want 25", frame.ClickRate)
	}
}

func TestRun_FillsLiveRingWhileIdle(t *testing.T) {
	m := newTestMeter(&constantSource{sample: signal.RawSample{X: 10}}, nil)

	runFor(m, 300*time.Millisecond)

	if m.Manager().Live().Len() == 0 {
		t.Error("live ring should fill while idle")
	}
	if m.Snapshot().Recording {
		t.Error("snapshot should report idle")
	}
}

func TestRun_RecordingCapturesReadings(t *testing.T) {
	m := newTestMeter(&constantSource{sample: signal.RawSample{X: 3, Y: 4}}, nil)

	go func() {
		time.Sleep(50 * time.Millisecond)
		m.Manager().Start()
	}()
	runFor(m, 400*time.Millisecond)

	finalized := m.Manager().Stop()
	if finalized == nil {
		t.Fatal("expected an open recording to stop")
	}
	if len(finalized.Readings) == 0 {
		t.Fatal("recording captured no readings")
	}
	if finalized.Readings[0].Magnitude != 5 {
		t.Errorf("magnitude = %v, want 5", finalized.Readings[0].Magnitude)
	}
}

func TestRun_FiresAudioCues(t *testing.T) {
	var clicks atomic.Int64
	// Normalized 0.5 clicks 25 times per second.
	m := newTestMeter(&constantSource{sample: signal.RawSample{X: 100}}, func() {
		clicks.Add(1)
	})

	runFor(m, 500*time.Millisecond)

	if clicks.Load() == 0 {
		t.Error("expected at least one audio cue at normalized 0.5")
	}
	// The throttle must keep the count well under the display tick count.
	if clicks.Load() > 20 {
		t.Errorf("clicks = %d, want throttled to ~12 in 500ms", clicks.Load())
	}
}

func TestCalibrate_ZeroesNextSample(t *testing.T) {
	m := newTestMeter(&constantSource{sample: signal.RawSample{X: 50, Y: 50, Z: 50}}, nil)
	m.Calibrate()

	runFor(m, 200*time.Millisecond)

	frame := m.Snapshot()
	if frame.Magnitude != 0 {
		t.Errorf("magnitude after calibration = %v, want 0 for a constant field", frame.Magnitude)
	}
}
