// Package rng provides the single deterministic random source shared by
// every stochastic component of the simulation: the network oracle, the
// asynchrony oracle, and the kernel's churn selection.
//
// A Source is not safe for concurrent use. The kernel's single-threaded,
// cooperative event loop guarantees there is only ever one logical
// consumer at a time.
package rng

// Source is a xorshift128+ generator. The algorithm is hand-rolled rather
// than taken from math/rand so that its entire state is a pair of plain
// uint64s: trivially portable across a snapshot/restore boundary (see
// package snapshot) without relying on any generator's internal,
// unexported state layout.
type Source struct {
	s0, s1 uint64
}

// New returns a Source seeded deterministically from seed. The same seed
// always produces the same sequence of draws.
func New(seed uint64) *Source {
	src := &Source{}
	src.Reseed(seed)
	return src
}

// Reseed replaces the generator's state, starting a fresh deterministic
// sequence from seed. Used both at construction and to implement the
// `new_seed` override on snapshot load.
func (s *Source) Reseed(seed uint64) {
	// splitmix64 to spread a possibly-small or zero seed into two
	// well-mixed 64-bit words; xorshift128+ degenerates if seeded with
	// an all-zero state.
	sm := seed
	next := func() uint64 {
		sm += 0x9E3779B97F4A7C15
		z := sm
		z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
		z = (z ^ (z >> 27)) * 0x94D049BB133111EB
		return z ^ (z >> 31)
	}
	s.s0 = next()
	s.s1 = next()
	if s.s0 == 0 && s.s1 == 0 {
		s.s1 = 1
	}
}

// uint64 draws the next raw 64-bit value and advances the state.
func (s *Source) uint64() uint64 {
	x := s.s0
	y := s.s1
	s.s0 = y
	x ^= x << 23
	x ^= x >> 17
	x ^= y ^ (y >> 26)
	s.s1 = x
	return x + y
}

// Int63 implements math/rand.Source and gonum's rand.Source, so a Source
// can be handed directly to gonum/stat/distuv distributions.
func (s *Source) Int63() int64 {
	return int64(s.uint64() >> 1)
}

// Seed implements math/rand.Source.
func (s *Source) Seed(seed int64) {
	s.Reseed(uint64(seed))
}

// Float64 returns a uniform draw in [0, 1).
func (s *Source) Float64() float64 {
	// 53 bits of mantissa, matching math/rand's Float64 technique.
	return float64(s.uint64()>>11) / (1 << 53)
}

// ChooseK returns k distinct indices drawn uniformly at random, without
// replacement, from [0, n). It implements the "choose k without
// replacement" primitive the churn controller uses to pick join/leave/
// fail/recover targets. If k >= n, all indices are returned in a
// randomly shuffled order.
func (s *Source) ChooseK(n, k int) []int {
	if k > n {
		k = n
	}
	if k <= 0 || n <= 0 {
		return nil
	}
	pool := make([]int, n)
	for i := range pool {
		pool[i] = i
	}
	// partial Fisher-Yates shuffle: only the first k positions need to
	// be finalized.
	for i := 0; i < k; i++ {
		j := i + int(s.uint64()%uint64(n-i))
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k]
}

// State returns a copy of the generator's internal state for snapshotting.
func (s *Source) State() (uint64, uint64) {
	return s.s0, s.s1
}

// SetState restores a previously captured state.
func (s *Source) SetState(s0, s1 uint64) {
	s.s0, s.s1 = s0, s1
}
