// Package curve evaluates timed brightness transitions.
// All functions are pure; the caller tracks when a transition started.
package curve

import (
	"fmt"
	"math"
	"time"
)

// Strength is a brightness value in [0, 1].
// The zero value is a valid Strength of 0.
type Strength struct {
	v float64
}

// New creates a Strength and panics if v is outside [0, 1].
// Use Clamped for untrusted input.
func New(v float64) Strength {
	if math.IsNaN(v) || v < 0 || v > 1 {
		panic(fmt.Sprintf("curve: strength %v out of range [0, 1]", v))
	}
	return Strength{v: v}
}

// Clamped creates a Strength, clamping v into [0, 1]. NaN maps to 0.
func Clamped(v float64) Strength {
	switch {
	case math.IsNaN(v), v < 0:
		return Strength{}
	case v > 1:
		return Strength{v: 1}
	}
	return Strength{v: v}
}

// Float returns the underlying value.
func (s Strength) Float() float64 { return s.v }

// Byte maps the strength onto 0..255.
func (s Strength) Byte() uint8 { return uint8(math.Round(s.v * 255)) }

func (s Strength) String() string { return fmt.Sprintf("%.4f", s.v) }

// Kind identifies an interpolation curve.
type Kind uint8

const (
	KindLinear Kind = iota
	KindSine
	KindLinearToAndBack
	KindSineToAndBack
)

// Interpolation selects a curve and, for the *ToAndBack kinds, the leg multiplier.
type Interpolation struct {
	Kind       Kind
	Multiplier float64
}

func Linear() Interpolation { return Interpolation{Kind: KindLinear} }
func Sine() Interpolation   { return Interpolation{Kind: KindSine} }

// LinearToAndBack ramps linearly to the target and back within one duration.
// The outbound leg takes m/(m+1) of the duration.
func LinearToAndBack(m float64) Interpolation {
	return Interpolation{Kind: KindLinearToAndBack, Multiplier: m}
}

// SineToAndBack is LinearToAndBack with sine easing on each leg.
func SineToAndBack(m float64) Interpolation {
	return Interpolation{Kind: KindSineToAndBack, Multiplier: m}
}

// Monotonic reports whether the curve never leaves the [from, to] span
// in the direction of travel.
func (i Interpolation) Monotonic() bool {
	return i.Kind == KindLinear || i.Kind == KindSine
}

// split returns the fraction of the duration spent on the outbound leg.
func (i Interpolation) split() float64 {
	m := i.Multiplier
	if m <= 0 || math.IsNaN(m) || math.IsInf(m, 0) {
		m = 1
	}
	return m / (m + 1)
}

func (i Interpolation) String() string {
	switch i.Kind {
	case KindLinear:
		return "linear"
	case KindSine:
		return "sine"
	case KindLinearToAndBack:
		return fmt.Sprintf("linear-extra(%g)", i.Multiplier)
	case KindSineToAndBack:
		return fmt.Sprintf("sine-extra(%g)", i.Multiplier)
	default:
		return "unknown"
	}
}

// Transition is a planned ramp from From to To over Duration.
type Transition struct {
	From     Strength
	To       Strength
	Duration time.Duration
	Curve    Interpolation
}

// Fraction converts elapsed time into a curve position in [0, 1].
// A non-positive duration is an instant jump and always yields 1.
func (t Transition) Fraction(elapsed time.Duration) float64 {
	if t.Duration <= 0 {
		return 1
	}
	return clampUnit(float64(elapsed) / float64(t.Duration))
}

// Value evaluates the curve at fraction f. f is clamped to [0, 1].
func (t Transition) Value(f float64) Strength {
	f = clampUnit(f)

	var g float64
	switch t.Curve.Kind {
	case KindLinear:
		g = f
	case KindSine:
		g = ease(f)
	case KindLinearToAndBack, KindSineToAndBack:
		g = toAndBack(f, t.Curve.split())
		if t.Curve.Kind == KindSineToAndBack {
			g = ease(g)
		}
	default:
		g = f
	}

	return Clamped(lerp(t.From.v, t.To.v, g))
}

func (t Transition) String() string {
	return fmt.Sprintf("%s->%s over %s (%s)", t.From, t.To, t.Duration, t.Curve)
}

// toAndBack maps f onto the local position of a two-leg curve: 0 -> 1 on
// [0, p] and 1 -> 0 on [p, 1].
func toAndBack(f, p float64) float64 {
	if f <= p {
		if p == 0 {
			return 1
		}
		return f / p
	}
	return 1 - (f-p)/(1-p)
}

// ease is a half-cosine with zero slope at both ends.
func ease(f float64) float64 {
	return (1 - math.Cos(math.Pi*f)) / 2
}

// lerp returns the endpoints exactly at g == 0 and g == 1 and never leaves
// the range spanned by from and to.
func lerp(from, to, g float64) float64 {
	switch {
	case from == to, g <= 0:
		return from
	case g >= 1:
		return to
	}
	v := from + (to-from)*g
	lo, hi := math.Min(from, to), math.Max(from, to)
	return math.Max(lo, math.Min(hi, v))
}

func clampUnit(f float64) float64 {
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
