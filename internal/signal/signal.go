// Package signal turns raw tri-axial magnetometer samples into calibrated,
// display-normalized readings.
package signal

import (
	"math"
	"time"
)

// RawSample is a single tri-axial magnetometer reading in microtesla.
// Timestamp is seconds on a monotonic-comparable scale.
type RawSample struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	Timestamp float64 `json:"timestamp"`
}

// Magnitude returns the Euclidean field strength of the sample.
func (s RawSample) Magnitude() float64 {
	return math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
}

// CalibrationOffset is a per-axis baseline subtracted from raw samples to
// zero the meter at a reference location. A zero Timestamp means
// uncalibrated.
type CalibrationOffset struct {
	OffsetX   float64 `json:"offset_x"`
	OffsetY   float64 `json:"offset_y"`
	OffsetZ   float64 `json:"offset_z"`
	Timestamp float64 `json:"timestamp"`
}

// IsCalibrated reports whether the offset has been set.
func (o CalibrationOffset) IsCalibrated() bool {
	return o.Timestamp > 0
}

// Apply subtracts the offset component-wise. The sample's own timestamp is
// preserved, not the offset's.
func (o CalibrationOffset) Apply(s RawSample) RawSample {
	return RawSample{
		X:         s.X - o.OffsetX,
		Y:         s.Y - o.OffsetY,
		Z:         s.Z - o.OffsetZ,
		Timestamp: s.Timestamp,
	}
}

// ProcessedSample is the output of one pipeline step: the raw input, its
// calibrated form, and the derived magnitude and normalized gauge value.
type ProcessedSample struct {
	Raw             RawSample `json:"raw"`
	Calibrated      RawSample `json:"calibrated"`
	Magnitude       float64   `json:"magnitude"`
	NormalizedValue float64   `json:"normalized_value"`
}

// Processor applies the current calibration offset and normalizes the
// magnitude against a fixed full-scale value. All inputs are accepted;
// there are no illegal states.
type Processor struct {
	fullScale float64
	offset    CalibrationOffset
	now       func() time.Time
}

// NewProcessor creates a Processor with a zero (uncalibrated) offset.
// fullScale is the magnitude in µT mapping to a normalized value of 1.0.
func NewProcessor(fullScale float64) *Processor {
	return &Processor{
		fullScale: fullScale,
		now:       time.Now,
	}
}

// Process applies the calibration offset, computes the magnitude, and
// clamps the normalized value to [0, 1].
func (p *Processor) Process(raw RawSample) ProcessedSample {
	calibrated := p.offset.Apply(raw)
	magnitude := calibrated.Magnitude()

	normalized := 0.0
	if p.fullScale > 0 {
		normalized = magnitude / p.fullScale
	}
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}

	return ProcessedSample{
		Raw:             raw,
		Calibrated:      calibrated,
		Magnitude:       magnitude,
		NormalizedValue: normalized,
	}
}

// Calibrate sets the offset to the raw sample's components so subsequent
// samples are measured relative to it. Recalibrating with the same sample
// reproduces a zero calibrated reading.
func (p *Processor) Calibrate(raw RawSample) {
	p.offset = CalibrationOffset{
		OffsetX:   raw.X,
		OffsetY:   raw.Y,
		OffsetZ:   raw.Z,
		Timestamp: float64(p.now().UnixNano()) / float64(time.Second),
	}
}

// Reset clears the calibration offset.
func (p *Processor) Reset() {
	p.offset = CalibrationOffset{}
}

// Offset returns the current calibration offset.
func (p *Processor) Offset() CalibrationOffset {
	return p.offset
}
