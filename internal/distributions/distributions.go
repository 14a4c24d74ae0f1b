// Package distributions implements arrival and amount sampling
// primitives, all funneled through internal/rng so that the
// simulator's only source of randomness is the xorshift64* stream.
//
// This is the one place in the core where floating-point arithmetic is
// allowed to appear, confined to the sampling transforms themselves;
// every result here collapses to an integer cent count or tick count
// before being handed back to a caller.
package distributions

import (
	"fmt"
	"math"

	"github.com/simcash/simcash/internal/rng"
)

// Uniform draws an integer in [Min, Max] inclusive.
type Uniform struct {
	Min, Max int64
}

// Validate rejects non-finite or out-of-order bounds at config load
// time, ("all distribution parameters validated at
// config load").
func (u Uniform) Validate() error {
	if u.Max < u.Min {
		return fmt.Errorf("uniform: max %d < min %d", u.Max, u.Min)
	}
	return nil
}

// Sample returns range_i64(min, max+1).
func (u Uniform) Sample(s *rng.Stream) int64 {
	return s.RangeInt64(u.Min, u.Max+1)
}

// Normal draws from N(Mean, StdDev) via Box-Muller, clamped to >= 1
// cent before use.
type Normal struct {
	Mean   float64
	StdDev float64
}

func (n Normal) Validate() error {
	if !isFinite(n.Mean) || !isFinite(n.StdDev) || n.StdDev <= 0 {
		return fmt.Errorf("normal: invalid mean=%v stddev=%v", n.Mean, n.StdDev)
	}
	return nil
}

// Sample returns round(mean + z*stddev) clamped to >= 1.
func (n Normal) Sample(s *rng.Stream) int64 {
	z := boxMuller(s)
	v := n.Mean + z*n.StdDev
	return clampRound(v)
}

// LogNormal draws exp(Z*sigma + mu), clamped to >= 1.
type LogNormal struct {
	Mu, Sigma float64
}

func (l LogNormal) Validate() error {
	if !isFinite(l.Mu) || !isFinite(l.Sigma) || l.Sigma <= 0 {
		return fmt.Errorf("lognormal: invalid mu=%v sigma=%v", l.Mu, l.Sigma)
	}
	return nil
}

func (l LogNormal) Sample(s *rng.Stream) int64 {
	z := boxMuller(s)
	v := math.Exp(z*l.Sigma + l.Mu)
	return clampRound(v)
}

// Exponential draws -ln(U)/lambda, clamped to >= 1.
type Exponential struct {
	Lambda float64
}

func (e Exponential) Validate() error {
	if !isFinite(e.Lambda) || e.Lambda <= 0 {
		return fmt.Errorf("exponential: invalid lambda=%v", e.Lambda)
	}
	return nil
}

func (e Exponential) Sample(s *rng.Stream) int64 {
	u := s.UniformFloat64()
	// U is in [0,1); guard the degenerate u==0 draw (probability zero
	// but still a valid float64) so math.Log never sees -Inf.
	if u <= 0 {
		u = math.SmallestNonzeroFloat64
	}
	v := -math.Log(u) / e.Lambda
	return clampRound(v)
}

// Poisson draws a non-negative integer count with rate Lambda, per
// : Knuth's algorithm for lambda < 30, PTRS (Hormann 1993)
// for larger lambda. Lambda == 0 always returns 0 (boundary
// behavior).
type Poisson struct {
	Lambda float64
}

func (p Poisson) Validate() error {
	if !isFinite(p.Lambda) || p.Lambda < 0 {
		return fmt.Errorf("poisson: invalid lambda=%v", p.Lambda)
	}
	return nil
}

func (p Poisson) Sample(s *rng.Stream) int64 {
	if p.Lambda == 0 {
		return 0
	}
	if p.Lambda < 30 {
		return knuthPoisson(s, p.Lambda)
	}
	return ptrsPoisson(s, p.Lambda)
}

func knuthPoisson(s *rng.Stream, lambda float64) int64 {
	l := math.Exp(-lambda)
	k := int64(0)
	pr := 1.0
	for {
		k++
		pr *= s.UniformFloat64()
		if pr <= l {
			return k - 1
		}
	}
}

// ptrsPoisson implements Hormann's PTRS (transformed rejection with
// squeeze) algorithm, the standard large-lambda Poisson generator used
// when the direct-multiplication Knuth method would require too many
// uniform draws per sample.
func ptrsPoisson(s *rng.Stream, lambda float64) int64 {
	smu := math.Sqrt(lambda)
	b := 0.931 + 2.53*smu
	a := -0.059 + 0.02483*b
	invAlpha := 1.1239 + 1.1328/(b-3.4)
	vr := 0.9277 - 3.6224/(b-2)

	for {
		u := s.UniformFloat64() - 0.5
		v := s.UniformFloat64()
		us := 0.5 - math.Abs(u)
		k := math.Floor((2*a/us+b)*u + lambda + 0.43)
		if us >= 0.07 && v <= vr {
			return int64(k)
		}
		if k < 0 || (us < 0.013 && v > us) {
			continue
		}
		lhs := math.Log(v * invAlpha / (a/(us*us)+b))
		rhs := -lambda + k*math.Log(lambda) - lgamma(k+1)
		if lhs <= rhs {
			return int64(k)
		}
	}
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}

// boxMuller returns one standard-normal draw via the Box-Muller
// transform, consuming exactly two uniforms from the stream.
func boxMuller(s *rng.Stream) float64 {
	u1 := s.UniformFloat64()
	u2 := s.UniformFloat64()
	if u1 <= 0 {
		u1 = math.SmallestNonzeroFloat64
	}
	r := math.Sqrt(-2 * math.Log(u1))
	theta := 2 * math.Pi * u2
	return r * math.Cos(theta)
}

func clampRound(v float64) int64 {
	r := int64(math.Round(v))
	if r < 1 {
		return 1
	}
	return r
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
