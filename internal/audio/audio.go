// Package audio maps normalized field intensity to a Geiger-style click
// cadence. The mapping and the throttle predicate are pure; the caller
// owns the last-click timestamp and advances it only when a cue actually
// plays, which keeps this package trivially testable.
package audio

import (
	"math"
	"time"
)

// Never is returned by ClickInterval when the rate is zero: the cue
// should not fire at all.
const Never = time.Duration(math.MaxInt64)

// ClickRate returns clicks per second for a normalized value in [0, 1].
// The table is piecewise linear and non-decreasing, rising steeply near
// full scale so strong fields feel urgent.
func ClickRate(normalized float64) float64 {
	v := normalized
	switch {
	case v < 0.05:
		return 0
	case v < 0.2:
		return 1 + 10*v
	case v < 0.5:
		return 3 + 20*v
	case v < 0.8:
		return 10 + 30*v
	default:
		return 30 + 50*v
	}
}

// ClickInterval returns the time between clicks for a normalized value,
// or Never when the rate is zero.
func ClickInterval(normalized float64) time.Duration {
	rate := ClickRate(normalized)
	if rate <= 0 {
		return Never
	}
	return time.Duration(float64(time.Second) / rate)
}

// ShouldPlay reports whether a cue is due, given the time since the last
// click actually fired.
func ShouldPlay(normalized float64, sinceLastClick time.Duration) bool {
	interval := ClickInterval(normalized)
	if interval == Never {
		return false
	}
	return sinceLastClick >= interval
}
