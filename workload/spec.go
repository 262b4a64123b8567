package workload

import (
	"fmt"

	"kvbench/distribution"
)

// MaxThreads bounds the number of workers per run; results are pre-allocated for it
const MaxThreads = 32

// seedStride separates per-thread seeds (Knuth's multiplicative hash constant)
const seedStride = 2654435761

// ConfigError reports an invalid run configuration. It is fatal and always
// surfaces before any worker starts.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Message)
}

// Spec describes one workload phase. It is built once and read-only while workers run.
type Spec struct {
	Type         Type
	Distribution KeyDistribution
	Theta        float64
	KeySpace     uint64
	Operations   uint64
	Threads      int
	Sizes        *SizeTable
	ScanRange    int
	Seed         int64
	KeyFormat    KeyFormat
}

// Validate checks the spec for configuration errors
func (s *Spec) Validate() error {
	if _, err := ParseType(string(s.Type)); err != nil {
		return &ConfigError{Field: "Type", Message: err.Error()}
	}
	if s.Threads <= 0 {
		return &ConfigError{Field: "Threads", Message: "must be at least 1"}
	}
	if s.Threads > MaxThreads {
		return &ConfigError{Field: "Threads", Message: fmt.Sprintf("%d exceeds the maximum of %d", s.Threads, MaxThreads)}
	}
	if s.KeySpace == 0 {
		return &ConfigError{Field: "KeySpace", Message: "key space must not be empty"}
	}
	if s.Sizes == nil {
		return &ConfigError{Field: "SizeClasses", Message: "size table is required"}
	}
	if s.Sizes.KeySpace() != s.KeySpace {
		return &ConfigError{Field: "SizeClasses", Message: fmt.Sprintf("final boundary %d does not match key space %d", s.Sizes.KeySpace(), s.KeySpace)}
	}
	if s.Type.IsSequential() && s.ThreadKeyRange() == 0 {
		return &ConfigError{Field: "KeySpace", Message: fmt.Sprintf("%d keys cannot be split across %d threads", s.KeySpace, s.Threads)}
	}
	if s.Type == TypeE && s.ScanRange <= 0 {
		return &ConfigError{Field: "ScanRange", Message: "must be positive for workload E"}
	}
	if th := s.theta(); s.Distribution == DistZipfian && (th <= 0 || th >= 1) {
		return &ConfigError{Field: "Theta", Message: fmt.Sprintf("%v is outside (0, 1)", th)}
	}
	if _, err := ParseKeyFormat(string(s.KeyFormat)); err != nil {
		return &ConfigError{Field: "KeyFormat", Message: err.Error()}
	}
	return nil
}

// ThreadBudget is the number of operations each thread issues. Remainder
// operations are dropped, so 1001 ops over 4 threads still gives 250 each.
func (s *Spec) ThreadBudget() uint64 {
	return s.Operations / uint64(s.Threads)
}

// ThreadKeyRange is the width of each thread's sequential id range
func (s *Spec) ThreadKeyRange() uint64 {
	return s.KeySpace / uint64(s.Threads)
}

// ThreadSeed derives the generator seed of thread i from the base seed
func (s *Spec) ThreadSeed(i int) int64 {
	return s.Seed + seedStride*int64(i+1)
}

// theta returns the skew exponent, falling back to the YCSB default
func (s *Spec) theta() float64 {
	if s.Theta == 0 {
		return distribution.DefaultTheta
	}
	return s.Theta
}
