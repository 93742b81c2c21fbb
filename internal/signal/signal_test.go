package signal

import (
	"math"
	"testing"
)

const tolerance = 1e-9

func TestMagnitude(t *testing.T) {
	tests := []struct {
		x, y, z float64
		want    float64
	}{
		{3, 4, 0, 5},
		{30, 40, 0, 50},
		{0, 0, 0, 0},
		{1, 1, 1, math.Sqrt(3)},
		{-3, -4, 0, 5},
	}

	for _, tt := range tests {
		s := RawSample{X: tt.x, Y: tt.y, Z: tt.z}
		if got := s.Magnitude(); math.Abs(got-tt.want) > tolerance {
			t.Errorf("Magnitude(%v,%v,%v) = %v, want %v", tt.x, tt.y, tt.z, got, tt.want)
		}
	}
}

func TestProcessor_Calibration(t *testing.T) {
	p := NewProcessor(200)

	if p.Offset().IsCalibrated() {
		t.Fatal("new processor should be uncalibrated")
	}

	p.Calibrate(RawSample{X: 10, Y: 20, Z: 30, Timestamp: 1})
	if !p.Offset().IsCalibrated() {
		t.Fatal("processor should be calibrated after Calibrate")
	}

	out := p.Process(RawSample{X: 15, Y: 25, Z: 35, Timestamp: 2})
	if out.Calibrated.X != 5 || out.Calibrated.Y != 5 || out.Calibrated.Z != 5 {
		t.Errorf("calibrated = %+v, want (5,5,5)", out.Calibrated)
	}
	if out.Calibrated.Timestamp != 2 {
		t.Errorf("calibrated timestamp = %v, want the sample's own timestamp 2", out.Calibrated.Timestamp)
	}
	if out.Raw.X != 15 {
		t.Errorf("raw sample should be preserved, got %+v", out.Raw)
	}
}

func TestProcessor_CalibrationIdempotent(t *testing.T) {
	p := NewProcessor(200)
	ref := RawSample{X: 12, Y: -7, Z: 44, Timestamp: 1}

	p.Calibrate(ref)
	p.Calibrate(ref)

	out := p.Process(ref)
	if out.Magnitude > tolerance {
		t.Errorf("recalibrating with the same sample should zero it, magnitude = %v", out.Magnitude)
	}
}

func TestProcessor_Normalization(t *testing.T) {
	p := NewProcessor(200)

	out := p.Process(RawSample{X: 200, Y: 0, Z: 0})
	if math.Abs(out.NormalizedValue-1.0) > tolerance {
		t.Errorf("normalized(200/200) = %v, want 1.0", out.NormalizedValue)
	}

	out = p.Process(RawSample{X: 300, Y: 0, Z: 0})
	if out.NormalizedValue != 1.0 {
		t.Errorf("normalized(300/200) = %v, want clamped 1.0", out.NormalizedValue)
	}

	out = p.Process(RawSample{X: 50, Y: 0, Z: 0})
	if math.Abs(out.NormalizedValue-0.25) > tolerance {
		t.Errorf("normalized(50/200) = %v, want 0.25", out.NormalizedValue)
	}
}

func TestProcessor_Reset(t *testing.T) {
	p := NewProcessor(200)
	p.Calibrate(RawSample{X: 1, Y: 2, Z: 3})
	p.Reset()

	if p.Offset().IsCalibrated() {
		t.Error("offset should be uncalibrated after Reset")
	}
	out := p.Process(RawSample{X: 1, Y: 2, Z: 3})
	if out.Calibrated != out.Raw {
		t.Errorf("after reset samples should pass through unchanged: %+v", out)
	}
}
