// Package needle integrates the normalized field value into a smoothed,
// inertial gauge position using a damped-spring model. A pure damped
// spring looks too clean for a vintage mechanical meter, so a small
// velocity-scaled flutter term is mixed in before clamping.
package needle

import (
	"math/rand"
	"time"
)

// Default spring constants. The spring is deliberately underdamped so the
// needle overshoots and rings briefly like a real moving-coil meter.
const (
	SpringConstant = 120.0
	DampingFactor  = 0.7
	Mass           = 1.0

	jitterScale     = 0.02
	jitterThreshold = 0.01
)

// Simulator holds the needle's position and velocity in normalized gauge
// space ([0, 1]).
type Simulator struct {
	position float64
	velocity float64
	rng      *rand.Rand
	jitter   bool
}

// NewSimulator creates a Simulator at rest with flutter enabled. A nil rng
// gets a time-seeded source; tests pass a fixed seed or disable flutter to
// assert convergence without asserting exact trajectories.
func NewSimulator(rng *rand.Rand) *Simulator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Simulator{rng: rng, jitter: true}
}

// SetJitter enables or disables the flutter term.
func (s *Simulator) SetJitter(enabled bool) {
	s.jitter = enabled
}

// Update integrates one step of the damped spring toward target and
// returns the new position. dt is the step in seconds and must be > 0;
// non-positive steps leave the state unchanged.
func (s *Simulator) Update(target, dt float64) float64 {
	if dt <= 0 {
		return s.position
	}

	acceleration := (SpringConstant*(target-s.position) - DampingFactor*s.velocity) / Mass
	s.velocity += acceleration * dt
	s.position += s.velocity * dt

	if s.jitter && abs(s.velocity) > jitterThreshold {
		s.position += (s.rng.Float64()*2 - 1) * jitterScale * abs(s.velocity)
	}

	if s.position < 0 {
		s.position = 0
	}
	if s.position > 1 {
		s.position = 1
	}
	return s.position
}

// Position returns the current needle position.
func (s *Simulator) Position() float64 {
	return s.position
}

// Reset returns the needle to rest at zero.
func (s *Simulator) Reset() {
	s.position = 0
	s.velocity = 0
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
