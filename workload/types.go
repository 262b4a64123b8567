package workload

import (
	"fmt"
	"strings"
)

// OpType is the kind of backend operation issued by a driver
type OpType int

const (
	OpPut OpType = iota
	OpUpdate
	OpGet
	OpDelete
	OpScan
	OpRMW

	NumOpTypes = int(OpRMW) + 1
)

var opNames = [NumOpTypes]string{"PUT", "UPDATE", "GET", "DELETE", "SCAN", "RMW"}

func (o OpType) String() string {
	if o < 0 || int(o) >= NumOpTypes {
		return "UNKNOWN"
	}
	return opNames[o]
}

// IsWrite reports whether the operation writes a value
func (o OpType) IsWrite() bool {
	return o == OpPut || o == OpUpdate || o == OpRMW
}

// ParseOpType is the inverse of OpType.String
func ParseOpType(s string) (OpType, error) {
	for i, name := range opNames {
		if strings.EqualFold(s, name) {
			return OpType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown operation type %q", s)
}

// Type identifies a workload mix
type Type string

const (
	TypeSeqLoad   Type = "SEQ_LOAD"   // sequential inserts, disjoint per thread
	TypeLoad      Type = "LOAD"       // inserts at sampled ids
	TypeOnlyWrite Type = "ONLY_WRITE" // updates at sampled ids
	TypeA         Type = "A"          // 50% update, 50% read
	TypeB         Type = "B"          // 5% update, 95% read
	TypeC         Type = "C"          // 100% read
	TypeD         Type = "D"          // 5% update, 95% read (no latest-key tracking)
	TypeE         Type = "E"          // 5% scan, 95% read
	TypeF         Type = "F"          // 50% read-modify-write, 50% read
	TypeDelete    Type = "DELETE"     // sequential deletes over the SEQ_LOAD ranges
)

// AllTypes lists every supported workload in the order a full suite runs them
var AllTypes = []Type{TypeSeqLoad, TypeLoad, TypeOnlyWrite, TypeA, TypeB, TypeC, TypeD, TypeE, TypeF, TypeDelete}

// ParseType accepts workload identifiers case-insensitively ("a", "seq_load", "ycsb-a")
func ParseType(s string) (Type, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	name = strings.TrimPrefix(name, "YCSB-")
	name = strings.TrimPrefix(name, "YCSB_")
	name = strings.ReplaceAll(name, "-", "_")
	for _, t := range AllTypes {
		if string(t) == name {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown workload %q", s)
}

// IsLoad reports whether the workload only inserts records
func (t Type) IsLoad() bool {
	return t == TypeSeqLoad || t == TypeLoad
}

// IsSequential reports whether ids come from per-thread disjoint ranges
func (t Type) IsSequential() bool {
	return t == TypeSeqLoad || t == TypeDelete
}

// KeyDistribution selects how non-sequential workloads pick ids
type KeyDistribution string

const (
	DistUniform KeyDistribution = "uniform"
	DistZipfian KeyDistribution = "zipfian"
)

// ParseKeyDistribution validates a distribution name
func ParseKeyDistribution(s string) (KeyDistribution, error) {
	switch KeyDistribution(strings.ToLower(s)) {
	case DistUniform, "":
		return DistUniform, nil
	case DistZipfian, "zipf":
		return DistZipfian, nil
	}
	return "", fmt.Errorf("unknown key distribution %q", s)
}
