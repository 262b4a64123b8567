package distribution

import (
	"errors"
	"math/rand"
)

// ErrEmptyKeySpace is returned when a sampler is built over zero keys
var ErrEmptyKeySpace = errors.New("distribution: key space must contain at least one key")

// Sampler produces key identifiers in [0, N)
type Sampler interface {
	Next() uint64
	// KeySpace returns N
	KeySpace() uint64
}

// Uniform draws identifiers uniformly from [0, N) with its own generator
type Uniform struct {
	n   uint64
	rng *rand.Rand
}

// NewUniform creates a uniform sampler over [0, n) driven by rng.
// The rng must not be shared with another goroutine.
func NewUniform(n uint64, rng *rand.Rand) (*Uniform, error) {
	if n == 0 {
		return nil, ErrEmptyKeySpace
	}
	return &Uniform{n: n, rng: rng}, nil
}

// Next returns the next identifier
func (u *Uniform) Next() uint64 {
	if u.n <= 1<<63-1 {
		return uint64(u.rng.Int63n(int64(u.n)))
	}
	return u.rng.Uint64() % u.n
}

// KeySpace returns the number of identifiers the sampler draws from
func (u *Uniform) KeySpace() uint64 {
	return u.n
}
