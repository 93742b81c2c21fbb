// Package units converts magnetic-field values between display units.
// Microtesla is the canonical storage unit; every other unit is defined
// by a fixed linear factor relative to it.
package units

import "fmt"

// Unit identifies a magnetic-field unit.
type Unit string

const (
	Microtesla Unit = "uT"
	Milligauss Unit = "mG"
	Gauss      Unit = "G"
)

// factors map each unit to its value in microtesla.
var factors = map[Unit]float64{
	Microtesla: 1,
	Milligauss: 0.1,
	Gauss:      100,
}

// symbols map each unit to its display symbol.
var symbols = map[Unit]string{
	Microtesla: "µT",
	Milligauss: "mG",
	Gauss:      "G",
}

// Parse returns the Unit for a user-supplied name, accepting both the
// ASCII identifier and the display symbol.
func Parse(s string) (Unit, bool) {
	switch s {
	case "uT", "µT", "ut":
		return Microtesla, true
	case "mG", "mg":
		return Milligauss, true
	case "G", "g":
		return Gauss, true
	}
	return "", false
}

// Symbol returns the display symbol for u.
func (u Unit) Symbol() string {
	if s, ok := symbols[u]; ok {
		return s
	}
	return string(u)
}

// Valid reports whether u is a known unit.
func (u Unit) Valid() bool {
	_, ok := factors[u]
	return ok
}

// Convert converts value from one unit to another through the microtesla
// base unit. Unknown units convert with factor 1.
func Convert(value float64, from, to Unit) float64 {
	ff, ok := factors[from]
	if !ok {
		ff = 1
	}
	tf, ok := factors[to]
	if !ok {
		tf = 1
	}
	return value * ff / tf
}

// Format renders value with a unit-appropriate fixed precision: one
// decimal for µT and mG, three for the much coarser gauss.
func Format(value float64, u Unit) string {
	switch u {
	case Gauss:
		return fmt.Sprintf("%.3f %s", value, u.Symbol())
	default:
		return fmt.Sprintf("%.1f %s", value, u.Symbol())
	}
}
