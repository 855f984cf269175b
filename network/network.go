// Package network implements the simulation's network oracle: given a
// sender/target pair it decides whether a message is delivered and, if
// so, after what latency. Two oracles are provided, a constant-latency
// one and one backed by a measured pairwise latency matrix, both
// wrapping an optional jitter distribution and an independent packet
// loss probability.
package network

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// Source is the RNG surface the oracle needs: a uniform [0,1) draw for
// the loss coin flip, plus the distuv-compatible Int63/Seed pair so
// Jitter implementations can hand it straight to a gonum sampler.
type Source interface {
	Int63() int64
	Seed(int64)
	Float64() float64
}

// Oracle decides message delivery and latency between two process
// indices. sender and target are process indices, not stable process
// IDs: the matrix is reindexed, not keyed by identity, matching the
// original's "sender node, target node" file format.
type Oracle interface {
	Deliver(src Source, sender, target int) (latency int32, delivered bool)
}

// Jitter perturbs a base latency by a sampled factor.
type Jitter interface {
	Jitter(src Source, latency int32) int32
}

func round(x float64) int32 {
	return int32(math.Round(x))
}

// NoJitter applies no perturbation.
type NoJitter struct{}

func (NoJitter) Jitter(Source, int32) int32 { return 0 }

// FactorSampler draws a jitter factor to multiply against the base
// latency. *distributions.Uniform and *distributions.LogNormal both
// satisfy it.
type FactorSampler interface {
	Sample() float64
}

// DistJitter applies a sampled multiplicative factor to the base
// latency: jitter = round(latency * factor). Built from a
// distributions.Sampler so UniformJitter and LogNormalJitter share one
// implementation, matching how the original's calculate_jitter is a
// default trait method shared by every non-trivial Jitter impl.
type DistJitter struct {
	Factor FactorSampler
}

func (j DistJitter) Jitter(_ Source, latency int32) int32 {
	factor := j.Factor.Sample()
	return round(float64(latency) * factor)
}

// UniformJitterDefaults are the original's defaults when a config omits
// low/high: Uniform(-0.5, 0.5).
const (
	UniformJitterDefaultLow  = -0.5
	UniformJitterDefaultHigh = 0.5
)

// LogNormalJitterDefaults are the original's defaults when a config
// omits mean/std_dev: LogNormal(0.0, 0.5).
const (
	LogNormalJitterDefaultMean   = 0.0
	LogNormalJitterDefaultStdDev = 0.5
)

// ConstantNetwork applies the same base latency to every pair.
type ConstantNetwork struct {
	Latency int32
	Jitter  Jitter
	Loss    float64
}

// NewConstantNetwork returns a ConstantNetwork, defaulting jitter to
// NoJitter when nil.
func NewConstantNetwork(latency int32, jitter Jitter, loss float64) *ConstantNetwork {
	if jitter == nil {
		jitter = NoJitter{}
	}
	return &ConstantNetwork{Latency: latency, Jitter: jitter, Loss: loss}
}

func (c *ConstantNetwork) Deliver(src Source, sender, target int) (int32, bool) {
	if src.Float64() < c.Loss {
		return 0, false
	}
	latency := c.Latency + c.Jitter.Jitter(src, c.Latency)
	if latency < 0 {
		latency = 0
	}
	return latency, true
}

// MatrixNetwork looks latency up in a symmetric, lower-triangle-stored
// pairwise matrix.
type MatrixNetwork struct {
	matrix [][]int32 // matrix[i] has length i+1; entry [i][j], i>=j
	Jitter Jitter
	Loss   float64
}

func newTriangularMatrix(n int) [][]int32 {
	m := make([][]int32, n)
	for i := range m {
		m[i] = make([]int32, i+1)
	}
	return m
}

func setLatency(m [][]int32, sender, target int, latency int32) {
	if sender > target {
		m[sender][target] = latency
	} else {
		m[target][sender] = latency
	}
}

func getLatency(m [][]int32, sender, target int) int32 {
	if sender > target {
		return m[sender][target]
	}
	return m[target][sender]
}

// NewMatrixNetworkFromFile loads a tab-separated "sender\ttarget\tlatency"
// file and synthesizes a full n x n latency matrix. If the file contains
// fewer than n nodes, rows beyond the file's node count are synthesized
// by copying node (i % fileNodes)'s latencies and deriving a self-latency
// as the rounded average of the row, exactly as the original's
// MatrixNetwork::new does so that the network stays usable for process
// counts larger than the measured dataset.
func NewMatrixNetworkFromFile(filename string, n int, jitter Jitter, loss float64) (*MatrixNetwork, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("network: opening latency file: %w", err)
	}
	defer f.Close()

	matrix := newTriangularMatrix(n)
	fileNodes := 0

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 3 {
			return nil, fmt.Errorf("network: malformed latency line %q", line)
		}
		i, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("network: parsing sender node: %w", err)
		}
		j, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("network: parsing target node: %w", err)
		}
		latencyFloat, err := strconv.ParseFloat(parts[2], 32)
		if err != nil {
			return nil, fmt.Errorf("network: parsing latency: %w", err)
		}
		latency := round(latencyFloat)

		if i < n && j < n {
			setLatency(matrix, i, j, latency)
		}
		if i > fileNodes {
			fileNodes = i
		}
		if j > fileNodes {
			fileNodes = j
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("network: reading latency file: %w", err)
	}
	fileNodes++

	for i := fileNodes; i < n; i++ {
		for j := 0; j < i; j++ {
			latency := getLatency(matrix, i%fileNodes, j)
			setLatency(matrix, i, j, latency)
		}
		var latenciesSum int32
		for _, v := range matrix[i] {
			latenciesSum += v
		}
		average := float64(latenciesSum) / float64(i-1)
		setLatency(matrix, i, i%fileNodes, round(average))
	}

	return NewMatrixNetworkFromMatrix(matrix, jitter, loss), nil
}

// NewMatrixNetworkFromMatrix builds a MatrixNetwork directly from an
// already-synthesized triangular matrix, e.g. one restored from a
// snapshot.
func NewMatrixNetworkFromMatrix(matrix [][]int32, jitter Jitter, loss float64) *MatrixNetwork {
	if jitter == nil {
		jitter = NoJitter{}
	}
	return &MatrixNetwork{matrix: matrix, Jitter: jitter, Loss: loss}
}

// Matrix exposes the underlying triangular latency matrix, e.g. for
// snapshotting.
func (m *MatrixNetwork) Matrix() [][]int32 { return m.matrix }

func (m *MatrixNetwork) Deliver(src Source, sender, target int) (int32, bool) {
	if src.Float64() < m.Loss {
		return 0, false
	}
	base := getLatency(m.matrix, sender, target)
	latency := base + m.Jitter.Jitter(src, base)
	if latency < 0 {
		latency = 0
	}
	return latency, true
}
