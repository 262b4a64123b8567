package distribution

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// DefaultTheta is the YCSB skew constant
const DefaultTheta = 0.99

// ErrInvalidTheta is returned for skew exponents outside (0, 1)
var ErrInvalidTheta = errors.New("distribution: zipfian theta must be in (0, 1)")

// ZipfTable holds the constants of a zipfian distribution over [0, N).
// It is computed once per key space and is read-only afterwards, so any
// number of Zipfian samplers may draw from it concurrently.
type ZipfTable struct {
	n            uint64
	theta        float64
	alpha        float64
	zetaN        float64
	eta          float64
	halfPowTheta float64
}

// NewZipfTable precomputes the zeta constants for n keys (Gray et al.,
// "Quickly Generating Billion-Record Synthetic Databases"). Cost is O(n).
func NewZipfTable(n uint64, theta float64) (*ZipfTable, error) {
	if n == 0 {
		return nil, ErrEmptyKeySpace
	}
	if theta <= 0 || theta >= 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidTheta, theta)
	}

	zeta2 := zeta(2, theta)
	zetaN := zeta(n, theta)

	return &ZipfTable{
		n:            n,
		theta:        theta,
		alpha:        1.0 / (1.0 - theta),
		zetaN:        zetaN,
		eta:          (1 - math.Pow(2.0/float64(n), 1.0-theta)) / (1.0 - zeta2/zetaN),
		halfPowTheta: 1.0 + math.Pow(0.5, theta),
	}, nil
}

// zeta calculates sum(1/i^theta) for i = 1..n
func zeta(n uint64, theta float64) float64 {
	sum := 0.0
	for i := uint64(1); i <= n; i++ {
		sum += 1.0 / math.Pow(float64(i), theta)
	}
	return sum
}

// KeySpace returns N
func (t *ZipfTable) KeySpace() uint64 {
	return t.n
}

// Theta returns the skew exponent
func (t *ZipfTable) Theta() float64 {
	return t.theta
}

// Sampler binds the table to a per-thread generator
func (t *ZipfTable) Sampler(rng *rand.Rand) *Zipfian {
	return &Zipfian{table: t, rng: rng}
}

// Zipfian draws identifiers skewed towards 0. Each worker owns one.
type Zipfian struct {
	table *ZipfTable
	rng   *rand.Rand
}

// Next returns the next identifier
func (z *Zipfian) Next() uint64 {
	t := z.table
	u := z.rng.Float64()
	uz := u * t.zetaN

	switch {
	case uz < 1.0:
		return 0
	case uz < t.halfPowTheta:
		if t.n < 2 {
			return 0
		}
		return 1
	}

	id := uint64(float64(t.n) * math.Pow(t.eta*u-t.eta+1.0, t.alpha))
	if id >= t.n {
		id = t.n - 1
	}
	return id
}

// KeySpace returns the number of identifiers the sampler draws from
func (z *Zipfian) KeySpace() uint64 {
	return z.table.n
}
