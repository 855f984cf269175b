// Package distributions wraps gonum's stat/distuv samplers behind a
// single Sampler interface, and provides the YAML-configurable
// constructors the network and asynchrony oracles need for their jitter
// and clock-skew factors.
package distributions

import (
	"gonum.org/v1/gonum/stat/distuv"
)

// Source is the minimal RNG surface distuv distributions need. *rng.Source
// satisfies it without this package importing rng, keeping the dependency
// direction one-way (root imports leaves, leaves never import root or
// each other except through plain interfaces like this one).
type Source interface {
	Int63() int64
	Seed(int64)
}

// Sampler draws a single float64 from a configured distribution.
type Sampler interface {
	Sample() float64
}

// Uniform draws from [Low, High).
type Uniform struct {
	dist distuv.Uniform
}

// NewUniform returns a Sampler uniform on [low, high).
func NewUniform(low, high float64, src Source) *Uniform {
	return &Uniform{dist: distuv.Uniform{Min: low, Max: high, Src: src}}
}

func (u *Uniform) Sample() float64 { return u.dist.Rand() }

// Normal draws from N(Mean, StdDev).
type Normal struct {
	dist distuv.Normal
}

// NewNormal returns a Sampler normally distributed with the given mean
// and standard deviation.
func NewNormal(mean, stdDev float64, src Source) *Normal {
	return &Normal{dist: distuv.Normal{Mu: mean, Sigma: stdDev, Src: src}}
}

func (n *Normal) Sample() float64 { return n.dist.Rand() }

// Weibull draws from a Weibull(Scale, Shape) distribution.
type Weibull struct {
	dist distuv.Weibull
}

// NewWeibull returns a Sampler Weibull-distributed with the given scale
// (lambda) and shape (k).
func NewWeibull(scale, shape float64, src Source) *Weibull {
	return &Weibull{dist: distuv.Weibull{Lambda: scale, K: shape, Src: src}}
}

func (w *Weibull) Sample() float64 { return w.dist.Rand() }

// LogNormal draws from a log-normal distribution parameterized by the
// mean and standard deviation of the underlying normal.
type LogNormal struct {
	dist distuv.LogNormal
}

// NewLogNormal returns a Sampler log-normally distributed with underlying
// normal parameters mu and sigma.
func NewLogNormal(mu, sigma float64, src Source) *LogNormal {
	return &LogNormal{dist: distuv.LogNormal{Mu: mu, Sigma: sigma, Src: src}}
}

func (l *LogNormal) Sample() float64 { return l.dist.Rand() }
