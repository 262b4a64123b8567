package workload

import (
	"fmt"
	"math"
	"sort"
)

// SizeClass is a value length and the share of the key space that uses it
type SizeClass struct {
	Size       int
	Proportion float64
}

// SizeTable maps key ids to value lengths. Class i covers ids in
// [bound(i-1), bound(i)); the last bound equals the key space.
type SizeTable struct {
	sizes  []int
	bounds []uint64
}

func checkClasses(classes []SizeClass) error {
	if len(classes) == 0 {
		return &ConfigError{Field: "SizeClasses", Message: "at least one size class is required"}
	}
	var sum float64
	for i, c := range classes {
		if c.Size <= 0 {
			return &ConfigError{Field: "SizeClasses", Message: fmt.Sprintf("class %d: size must be positive", i)}
		}
		if c.Proportion < 0 {
			return &ConfigError{Field: "SizeClasses", Message: fmt.Sprintf("class %d: proportion must not be negative", i)}
		}
		sum += c.Proportion
	}
	if sum == 0 {
		return &ConfigError{Field: "SizeClasses", Message: "proportions sum to zero"}
	}
	if math.Abs(sum-1.0) > 1e-6 {
		return &ConfigError{Field: "SizeClasses", Message: fmt.Sprintf("proportions must sum to 1, got %.4f", sum)}
	}
	return nil
}

// NewSizeTable splits keySpace ids across classes by proportion
func NewSizeTable(keySpace uint64, classes []SizeClass) (*SizeTable, error) {
	if err := checkClasses(classes); err != nil {
		return nil, err
	}
	if keySpace == 0 {
		return nil, &ConfigError{Field: "KeySpace", Message: "key space must not be empty"}
	}

	t := &SizeTable{
		sizes:  make([]int, len(classes)),
		bounds: make([]uint64, len(classes)),
	}
	var cum float64
	for i, c := range classes {
		cum += c.Proportion
		bound := uint64(math.Floor(float64(keySpace) * cum))
		if bound > keySpace {
			bound = keySpace
		}
		if i > 0 && bound < t.bounds[i-1] {
			bound = t.bounds[i-1]
		}
		t.sizes[i] = c.Size
		t.bounds[i] = bound
	}
	t.bounds[len(t.bounds)-1] = keySpace
	return t, nil
}

// SizeTableFromBytes derives the key space from a database size: class i
// holds floor(dbSize * proportion / size) keys.
func SizeTableFromBytes(dbSize uint64, classes []SizeClass) (*SizeTable, error) {
	if err := checkClasses(classes); err != nil {
		return nil, err
	}

	t := &SizeTable{
		sizes:  make([]int, len(classes)),
		bounds: make([]uint64, len(classes)),
	}
	var total uint64
	for i, c := range classes {
		total += uint64(float64(dbSize) * c.Proportion / float64(c.Size))
		t.sizes[i] = c.Size
		t.bounds[i] = total
	}
	if total == 0 {
		return nil, &ConfigError{Field: "DBSize", Message: fmt.Sprintf("%d bytes is too small for any key", dbSize)}
	}
	return t, nil
}

// Lookup returns the value length and class index for id
func (t *SizeTable) Lookup(id uint64) (size int, class int) {
	class = sort.Search(len(t.bounds), func(i int) bool { return t.bounds[i] > id })
	if class == len(t.bounds) {
		class = len(t.bounds) - 1
	}
	return t.sizes[class], class
}

// KeySpace returns the final boundary
func (t *SizeTable) KeySpace() uint64 {
	return t.bounds[len(t.bounds)-1]
}

// Len returns the number of classes
func (t *SizeTable) Len() int {
	return len(t.sizes)
}

// Size returns the value length of class i
func (t *SizeTable) Size(i int) int {
	return t.sizes[i]
}

// Bound returns the exclusive upper id of class i
func (t *SizeTable) Bound(i int) uint64 {
	return t.bounds[i]
}

// MaxSize returns the largest value length in the table
func (t *SizeTable) MaxSize() int {
	max := 0
	for _, s := range t.sizes {
		if s > max {
			max = s
		}
	}
	return max
}

func (t *SizeTable) String() string {
	s := ""
	var lo uint64
	for i := range t.sizes {
		s += fmt.Sprintf("|%dB-[%d,%d)", t.sizes[i], lo, t.bounds[i])
		lo = t.bounds[i]
	}
	return s + "|"
}
