package connection

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes reconnect waits from a retry index.
//
//	idx == 0  random whole seconds in [1, 30]
//	idx <  0  random whole minutes in [1, 5] (transport-error severity)
//	idx >= 1  fib(idx) seconds, fib(0) = fib(1) = 1
type Backoff struct {
	// Int64N returns a value in [0, n). Nil uses math/rand/v2.
	Int64N func(n int64) int64
}

// DefaultBackoff returns a Backoff using the global random source.
func DefaultBackoff() Backoff {
	return Backoff{Int64N: rand.Int64N}
}

// Wait returns how long to wait before retry idx.
func (b Backoff) Wait(idx int) time.Duration {
	switch {
	case idx == 0:
		return time.Duration(1+b.int64n(30)) * time.Second
	case idx < 0:
		return time.Duration(1+b.int64n(5)) * time.Minute
	default:
		return fibSeconds(idx)
	}
}

func (b Backoff) int64n(n int64) int64 {
	if b.Int64N == nil {
		return rand.Int64N(n)
	}
	return b.Int64N(n)
}

// fib returns the n-th Fibonacci number with fib(0) = fib(1) = 1,
// saturating at math.MaxInt64.
func fib(n int) int64 {
	var a, b int64 = 1, 1
	for i := 1; i < n; i++ {
		if b > math.MaxInt64-a {
			return math.MaxInt64
		}
		a, b = b, a+b
	}
	return b
}

func fibSeconds(n int) time.Duration {
	f := fib(n)
	if f > int64(math.MaxInt64/time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(f) * time.Second
}

// Sequence tracks the retry index across attempts.
type Sequence struct {
	policy Backoff
	idx    int
}

// NewSequence returns a Sequence at index 0.
func NewSequence(policy Backoff) *Sequence {
	return &Sequence{policy: policy}
}

// NextBackOff returns the wait for the current index and advances it.
func (s *Sequence) NextBackOff() time.Duration {
	d := s.policy.Wait(s.idx)
	s.idx++
	return d
}

// Severe returns a transport-error wait and advances the index.
func (s *Sequence) Severe() time.Duration {
	d := s.policy.Wait(-1)
	s.idx++
	return d
}

// Reset rewinds to index 0.
func (s *Sequence) Reset() { s.idx = 0 }

// Index returns the index the next NextBackOff will use.
func (s *Sequence) Index() int { return s.idx }
