// Package sensor abstracts the magnetometer. The core never registers
// with a platform sensor API directly; it pulls samples from a Source so
// cadence stays decoupled and tests can drive the pipeline synthetically.
// When no sensor is available the pipeline is simply never invoked.
package sensor

import (
	"math"
	"math/rand"
	"time"

	"github.com/mhaglund/fieldmeter/internal/signal"
)

// Source produces raw tri-axial samples.
type Source interface {
	Next() (signal.RawSample, error)
}

// simulatedSource generates a plausible magnetometer stream: the ambient
// geomagnetic field plus a slow wander and an occasional "hot spot" swell,
// so the gauge and audio cues have something to react to without hardware.
type simulatedSource struct {
	start time.Time
	rng   *rand.Rand
	wx    float64
	wy    float64
	wz    float64
}

// NewSimulatedSource creates a simulated magnetometer. A nil rng gets a
// time-seeded source.
func NewSimulatedSource(rng *rand.Rand) Source {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &simulatedSource{start: time.Now(), rng: rng}
}

func (s *simulatedSource) Next() (signal.RawSample, error) {
	elapsed := time.Since(s.start).Seconds()

	// Random walk per axis, pulled gently back toward zero.
	s.wx += s.rng.NormFloat64()*0.8 - s.wx*0.02
	s.wy += s.rng.NormFloat64()*0.8 - s.wy*0.02
	s.wz += s.rng.NormFloat64()*0.8 - s.wz*0.02

	// Periodic swell emulating walking past a field source.
	swell := 60 * math.Pow(math.Sin(elapsed*0.15), 8)

	return signal.RawSample{
		X:         22 + s.wx + swell*0.6,
		Y:         5 + s.wy + swell*0.3,
		Z:         -43 + s.wz + swell*0.7,
		Timestamp: elapsed,
	}, nil
}
