package workload

import "fmt"

// Policy decides the type of each operation from a uniform draw r in [0, 100)
type Policy interface {
	Choose(r int) OpType
	// Sequential reports whether ids come from the thread cursor instead of the sampler
	Sequential() bool
}

// mix issues above when r >= threshold and below otherwise
type mix struct {
	threshold int
	above     OpType
	below     OpType
}

func (m mix) Choose(r int) OpType {
	if r >= m.threshold {
		return m.above
	}
	return m.below
}

func (m mix) Sequential() bool { return false }

// sequential walks the thread's id range issuing one operation type
type sequential struct {
	op OpType
}

func (s sequential) Choose(int) OpType { return s.op }

func (sequential) Sequential() bool { return true }

// NewPolicy returns the operation mix for a workload
func NewPolicy(t Type) (Policy, error) {
	switch t {
	case TypeSeqLoad:
		return sequential{op: OpPut}, nil
	case TypeDelete:
		return sequential{op: OpDelete}, nil
	case TypeLoad:
		return mix{threshold: 0, above: OpPut}, nil
	case TypeOnlyWrite:
		return mix{threshold: 0, above: OpUpdate}, nil
	case TypeA:
		return mix{threshold: 50, above: OpUpdate, below: OpGet}, nil
	case TypeB, TypeD:
		// D reads without tracking the most recently inserted key
		return mix{threshold: 95, above: OpUpdate, below: OpGet}, nil
	case TypeC:
		return mix{threshold: 100, above: OpUpdate, below: OpGet}, nil
	case TypeE:
		return mix{threshold: 95, above: OpScan, below: OpGet}, nil
	case TypeF:
		return mix{threshold: 50, above: OpRMW, below: OpGet}, nil
	}
	return nil, fmt.Errorf("no operation mix for workload %q", t)
}
