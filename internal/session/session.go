// Package session defines the recording data model: a recording session
// with its ordered readings, the derived statistics and metadata
// projections, and the live display ring buffer.
package session

import (
	"time"

	"github.com/mhaglund/fieldmeter/internal/signal"
)

// TimestampedSample is one persisted reading: a tri-axial sample in µT
// plus an elapsed time in seconds relative to a specific origin. Readings
// inside a session are session-relative (starting at zero); readings in
// the live ring buffer are app-relative so the display keeps flowing
// across stop/start boundaries.
type TimestampedSample struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	Elapsed   float64 `json:"elapsed"`
	Magnitude float64 `json:"magnitude"`
}

// NewTimestampedSample derives a TimestampedSample from a raw sample and
// an elapsed time, precomputing the magnitude.
func NewTimestampedSample(raw signal.RawSample, elapsed float64) TimestampedSample {
	return TimestampedSample{
		X:         raw.X,
		Y:         raw.Y,
		Z:         raw.Z,
		Elapsed:   elapsed,
		Magnitude: raw.Magnitude(),
	}
}

// Recording is one continuous recording interval. It is mutated only by
// the recorder while open and becomes immutable once handed to the store.
type Recording struct {
	ID        string              `json:"id"`
	Name      string              `json:"name,omitempty"`
	Notes     string              `json:"notes,omitempty"`
	StartTime time.Time           `json:"start_time"`
	EndTime   time.Time           `json:"end_time,omitzero"`
	Readings  []TimestampedSample `json:"readings"`
}

// Duration is EndTime-StartTime for a finalized session; open sessions
// measure against now.
func (r *Recording) Duration(now time.Time) time.Duration {
	end := r.EndTime
	if end.IsZero() {
		end = now
	}
	return end.Sub(r.StartTime)
}

// Statistics holds min/max/avg magnitude over a session's readings.
// An empty session yields all zeros with count 0.
type Statistics struct {
	MinMagnitude float64 `json:"min_magnitude"`
	MaxMagnitude float64 `json:"max_magnitude"`
	AvgMagnitude float64 `json:"avg_magnitude"`
	ReadingCount int     `json:"reading_count"`
}

// Stats derives Statistics purely from the readings.
func (r *Recording) Stats() Statistics {
	if len(r.Readings) == 0 {
		return Statistics{}
	}

	stats := Statistics{
		MinMagnitude: r.Readings[0].Magnitude,
		MaxMagnitude: r.Readings[0].Magnitude,
		ReadingCount: len(r.Readings),
	}
	sum := 0.0
	for _, reading := range r.Readings {
		if reading.Magnitude < stats.MinMagnitude {
			stats.MinMagnitude = reading.Magnitude
		}
		if reading.Magnitude > stats.MaxMagnitude {
			stats.MaxMagnitude = reading.Magnitude
		}
		sum += reading.Magnitude
	}
	stats.AvgMagnitude = sum / float64(len(r.Readings))
	return stats
}

// Metadata is a lightweight projection of a Recording used for list views
// without loading full readings.
type Metadata struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time,omitzero"`
	DurationSec  float64   `json:"duration_sec"`
	ReadingCount int       `json:"reading_count"`
	MinMagnitude float64   `json:"min_magnitude"`
	MaxMagnitude float64   `json:"max_magnitude"`
	AvgMagnitude float64   `json:"avg_magnitude"`
}

// ToMetadata projects the session for the metadata index.
func (r *Recording) ToMetadata() Metadata {
	stats := r.Stats()
	return Metadata{
		ID:           r.ID,
		Name:         r.Name,
		StartTime:    r.StartTime,
		EndTime:      r.EndTime,
		DurationSec:  r.Duration(time.Now()).Seconds(),
		ReadingCount: stats.ReadingCount,
		MinMagnitude: stats.MinMagnitude,
		MaxMagnitude: stats.MaxMagnitude,
		AvgMagnitude: stats.AvgMagnitude,
	}
}
