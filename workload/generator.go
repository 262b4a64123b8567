package workload

import (
	"bytes"
	"fmt"
	"math/rand"

	"kvbench/distribution"
)

// Operation is the next request a driver should issue. Key and Value alias
// buffers owned by the ThreadContext and stay valid until the next call to Next.
type Operation struct {
	Type      OpType
	KeyID     uint64
	Key       []byte
	Value     []byte
	ValueSize int
	SizeClass int
}

// ThreadContext is the mutable state of one worker. It is never shared.
type ThreadContext struct {
	ID     int
	Seed   int64
	Budget uint64
	Issued uint64
	// Cursor counts sequential ids already emitted
	Cursor uint64

	OpCounts   [NumOpTypes]uint64
	SizeCounts []uint64

	base     uint64
	keyRange uint64
	rng      *rand.Rand
	sampler  distribution.Sampler
	key      []byte
	value    []byte
	filler   []byte
}

// Generator turns a Spec into per-thread operation streams. The zipfian
// table is built here, before any ThreadContext exists.
type Generator struct {
	spec   *Spec
	policy Policy
	zipf   *distribution.ZipfTable
}

// NewGenerator validates spec and precomputes shared sampling state
func NewGenerator(spec *Spec) (*Generator, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	policy, err := NewPolicy(spec.Type)
	if err != nil {
		return nil, err
	}
	g := &Generator{spec: spec, policy: policy}
	if spec.Distribution == DistZipfian && !policy.Sequential() {
		g.zipf, err = distribution.NewZipfTable(spec.KeySpace, spec.theta())
		if err != nil {
			return nil, fmt.Errorf("zipfian table: %w", err)
		}
	}
	return g, nil
}

// Spec returns the workload the generator was built from
func (g *Generator) Spec() *Spec {
	return g.spec
}

// NewThread creates the context of worker id with its derived seed
func (g *Generator) NewThread(id int) (*ThreadContext, error) {
	if id < 0 || id >= g.spec.Threads {
		return nil, fmt.Errorf("thread %d outside [0, %d)", id, g.spec.Threads)
	}
	seed := g.spec.ThreadSeed(id)
	rng := rand.New(rand.NewSource(seed))

	var sampler distribution.Sampler
	if g.zipf != nil {
		sampler = g.zipf.Sampler(rng)
	} else {
		u, err := distribution.NewUniform(g.spec.KeySpace, rng)
		if err != nil {
			return nil, err
		}
		sampler = u
	}

	keyRange := g.spec.ThreadKeyRange()
	maxSize := g.spec.Sizes.MaxSize()
	return &ThreadContext{
		ID:         id,
		Seed:       seed,
		Budget:     g.spec.ThreadBudget(),
		SizeCounts: make([]uint64, g.spec.Sizes.Len()),
		base:       uint64(id) * keyRange,
		keyRange:   keyRange,
		rng:        rng,
		sampler:    sampler,
		key:        make([]byte, 0, g.spec.KeyFormat.Width()),
		value:      make([]byte, 0, maxSize),
		filler:     newFiller(seed, maxSize),
	}, nil
}

// newFiller builds the printable payload that follows the key in every value
func newFiller(seed int64, n int) []byte {
	rng := rand.New(rand.NewSource(seed ^ 0x5bd1e995))
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + rng.Intn(26))
	}
	return b
}

// Exhausted reports whether the thread has issued its whole budget
func (tc *ThreadContext) Exhausted() bool {
	return tc.Issued >= tc.Budget
}

// Next returns the thread's next operation, or false once its budget is spent.
// Counters are committed here, so callers gate on Exhausted before any wait.
func (g *Generator) Next(tc *ThreadContext) (Operation, bool) {
	if tc.Exhausted() {
		return Operation{}, false
	}

	var (
		op OpType
		id uint64
	)
	if g.policy.Sequential() {
		op = g.policy.Choose(0)
		id = tc.base + tc.Cursor%tc.keyRange
		tc.Cursor++
	} else {
		op = g.policy.Choose(tc.rng.Intn(100))
		id = tc.sampler.Next()
	}

	size, class := g.spec.Sizes.Lookup(id)
	tc.key = g.spec.KeyFormat.AppendKey(tc.key[:0], id)

	var value []byte
	if op.IsWrite() {
		tc.value = fillValue(tc.value[:0], tc.key, tc.filler, size)
		value = tc.value
	}

	tc.Issued++
	tc.OpCounts[op]++
	tc.SizeCounts[class]++

	return Operation{
		Type:      op,
		KeyID:     id,
		Key:       tc.key,
		Value:     value,
		ValueSize: size,
		SizeClass: class,
	}, true
}

// fillValue writes a size-byte value that starts with key
func fillValue(dst, key, filler []byte, size int) []byte {
	if size <= len(key) {
		return append(dst, key[:size]...)
	}
	dst = append(dst, key...)
	return append(dst, filler[:size-len(key)]...)
}

// ValueMatchesKey reports whether a value read back for key carries the key
// prefix written by the generator
func ValueMatchesKey(key, value []byte) bool {
	if len(value) == 0 {
		return false
	}
	if len(value) < len(key) {
		return bytes.HasPrefix(key, value)
	}
	return bytes.HasPrefix(value, key)
}
