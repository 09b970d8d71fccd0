// Package prng is the string-seeded pseudorandom stream behind every
// procedural decision in the world. Two clients that agree on a seed string
// draw identical sequences.
package prng

import "unicode/utf16"

// Hash folds a seed string into 32 bits: h = h*31 + c over UTF-16 code units,
// wrapping as a signed 32-bit integer.
func Hash(seed string) int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(seed)) {
		h = (h << 5) - h + int32(c)
	}
	return h
}

// Rand is one independent stream. It is not safe for concurrent use.
type Rand struct {
	state uint32
}

func New(seed string) *Rand {
	h := Hash(seed)
	if h == 0 {
		h = 1
	}
	return &Rand{state: uint32(h)}
}

// Float64 returns the next value in [0, 1).
func (r *Rand) Float64() float64 {
	r.state += 0x6D2B79F5
	s := r.state
	t := (s ^ (s >> 15)) * (1 | s)
	t = (t + (t^(t>>7))*(61|t)) ^ t
	return float64(t^(t>>14)) / 4294967296
}

// Func adapts a fresh stream to the zero-argument generator form expected by
// table builders.
func Func(seed string) func() float64 {
	return New(seed).Float64
}
