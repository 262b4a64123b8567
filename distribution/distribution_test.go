package distribution

import (
	"errors"
	"math/rand"
	"testing"
)

func TestEmptyKeySpace(t *testing.T) {
	if _, err := NewUniform(0, rand.New(rand.NewSource(1))); !errors.Is(err, ErrEmptyKeySpace) {
		t.Errorf("NewUniform(0) error = %v, want ErrEmptyKeySpace", err)
	}
	if _, err := NewZipfTable(0, DefaultTheta); !errors.Is(err, ErrEmptyKeySpace) {
		t.Errorf("NewZipfTable(0) error = %v, want ErrEmptyKeySpace", err)
	}
}

func TestZipfTableRejectsTheta(t *testing.T) {
	for _, theta := range []float64{0, 1, 1.5, -0.2} {
		if _, err := NewZipfTable(100, theta); !errors.Is(err, ErrInvalidTheta) {
			t.Errorf("theta %v: error = %v, want ErrInvalidTheta", theta, err)
		}
	}
}

func TestUniformRangeAndDeterminism(t *testing.T) {
	const n = 1000
	a, _ := NewUniform(n, rand.New(rand.NewSource(42)))
	b, _ := NewUniform(n, rand.New(rand.NewSource(42)))

	seen := make(map[uint64]bool)
	for i := 0; i < 20000; i++ {
		x, y := a.Next(), b.Next()
		if x != y {
			t.Fatalf("draw %d: %d != %d with the same seed", i, x, y)
		}
		if x >= n {
			t.Fatalf("draw %d out of range: %d", i, x)
		}
		seen[x] = true
	}
	if len(seen) < n*9/10 {
		t.Errorf("uniform sampler covered only %d of %d ids", len(seen), n)
	}
}

func TestZipfianSkew(t *testing.T) {
	const n = 1000
	table, err := NewZipfTable(n, DefaultTheta)
	if err != nil {
		t.Fatal(err)
	}
	z := table.Sampler(rand.New(rand.NewSource(7)))

	counts := make([]int, n)
	for i := 0; i < 100000; i++ {
		id := z.Next()
		if id >= n {
			t.Fatalf("id %d out of range", id)
		}
		counts[id]++
	}

	if counts[0] <= counts[n-1] {
		t.Errorf("count[0] = %d, count[%d] = %d; want id 0 to dominate", counts[0], n-1, counts[n-1])
	}
	if counts[0] <= counts[1] || counts[1] <= counts[100] {
		t.Errorf("frequencies not decreasing: c0=%d c1=%d c100=%d", counts[0], counts[1], counts[100])
	}
}

func TestZipfianSharedTableIndependentSamplers(t *testing.T) {
	table, err := NewZipfTable(500, DefaultTheta)
	if err != nil {
		t.Fatal(err)
	}
	a := table.Sampler(rand.New(rand.NewSource(3)))
	b := table.Sampler(rand.New(rand.NewSource(3)))
	c := table.Sampler(rand.New(rand.NewSource(4)))

	same, differ := true, false
	for i := 0; i < 1000; i++ {
		x, y, w := a.Next(), b.Next(), c.Next()
		if x != y {
			same = false
		}
		if x != w {
			differ = true
		}
	}
	if !same {
		t.Error("samplers with equal seeds diverged")
	}
	if !differ {
		t.Error("samplers with different seeds produced identical streams")
	}
}

func TestZipfianTinyKeySpaces(t *testing.T) {
	for _, n := range []uint64{1, 2} {
		table, err := NewZipfTable(n, DefaultTheta)
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		z := table.Sampler(rand.New(rand.NewSource(1)))
		for i := 0; i < 1000; i++ {
			if id := z.Next(); id >= n {
				t.Fatalf("n=%d: id %d out of range", n, id)
			}
		}
	}
}
