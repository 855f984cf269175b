// Package asynchrony implements the clock-skew oracle applied to a
// process's own periodic/local timers. Unlike network jitter, which
// perturbs message delivery between processes, asynchrony perturbs when
// a process believes its own timer fired: it models an imprecise local
// clock, not network variability.
package asynchrony

import "math"

// Source is the RNG surface a skew distribution samples from.
type Source interface {
	Int63() int64
	Seed(int64)
}

// Oracle computes the clock-skew offset to add to a scheduled local
// timer's timestamp. The offset scales against opDuration, the
// configured typical operation duration, not against the growing
// simulation clock: op_duration stands in for "how long a process
// believes an operation takes," and skew perturbs that belief.
type Oracle interface {
	Skew(opDuration int32) int32
}

func round(x float64) int32 {
	return int32(math.Round(x))
}

func calculateAsync(opDuration int32, factor float64) int32 {
	return round(float64(opDuration) * factor)
}

// NoAsynchrony applies no clock skew: local timers fire exactly as
// scheduled.
type NoAsynchrony struct{}

func (NoAsynchrony) Skew(int32) int32 { return 0 }

// FactorSampler draws a skew factor to multiply against opDuration.
type FactorSampler interface {
	Sample() float64
}

// DistAsynchrony applies a sampled multiplicative factor to opDuration:
// skew = round(opDuration * factor).
type DistAsynchrony struct {
	Factor FactorSampler
}

func (a DistAsynchrony) Skew(opDuration int32) int32 {
	return calculateAsync(opDuration, a.Factor.Sample())
}

// Defaults matching the original's per-distribution fallbacks when a
// config omits parameters.
const (
	UniformDefaultLow  = -0.1
	UniformDefaultHigh = 0.1

	NormalDefaultMean   = 0.0
	NormalDefaultStdDev = 0.1

	WeibullDefaultScale = 1.0
	WeibullDefaultShape = 1.5
)
