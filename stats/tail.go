package stats

import (
	"math"
	"slices"
	"sort"
	"strconv"

	"kvbench/workload"
)

// DefaultPercentiles are reported for every (thread, operation) series
var DefaultPercentiles = []float64{0.5, 0.75, 0.90, 0.99, 0.999, 0.9999}

// WindowPercentiles are tracked over time by the sliding-window analysis
var WindowPercentiles = []float64{0.99, 0.999, 0.9999}

// PercentileLabel renders 0.999 as "p99.9"
func PercentileLabel(p float64) string {
	return "p" + strconv.FormatFloat(p*100, 'g', 6, 64)
}

// Percentile is one cut point of a latency population
type Percentile struct {
	P     float64
	Value int64
}

// Summary describes a sorted latency population in nanoseconds
type Summary struct {
	Count       int
	Avg         float64
	Min         int64
	Max         int64
	Percentiles []Percentile
}

// percentileIndex returns floor(n*p) clamped to the last element
func percentileIndex(n int, p float64) int {
	idx := int(math.Floor(float64(n) * p))
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// PercentileOf reads p from an ascending slice
func PercentileOf(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[percentileIndex(len(sorted), p)]
}

// Analyze sorts a copy of samples and reports its average and percentiles
func Analyze(samples []int64, ps []float64) Summary {
	s := Summary{Count: len(samples)}
	if len(samples) == 0 {
		return s
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	var sum float64
	for _, v := range sorted {
		sum += float64(v)
	}
	s.Avg = sum / float64(len(sorted))
	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	for _, p := range ps {
		s.Percentiles = append(s.Percentiles, Percentile{P: p, Value: PercentileOf(sorted, p)})
	}
	return s
}

// SlidingWindow splits samples, in issue order, into consecutive windows of
// interval samples and returns percentile p of each. A trailing window with
// fewer than interval samples is dropped.
func SlidingWindow(samples []int64, p float64, interval int) []int64 {
	if interval <= 0 {
		return nil
	}
	out := make([]int64, 0, len(samples)/interval)
	window := make([]int64, interval)
	for start := 0; start+interval <= len(samples); start += interval {
		copy(window, samples[start:start+interval])
		slices.Sort(window)
		out = append(out, PercentileOf(window, p))
	}
	return out
}

// SeriesKey identifies the raw latencies of one operation type in one thread
type SeriesKey struct {
	Thread int
	Op     workload.OpType
}

// SampleSet groups raw latencies by (thread, operation)
type SampleSet map[SeriesKey][]int64

// Add appends one latency to its series
func (s SampleSet) Add(thread int, op workload.OpType, latencyNs int64) {
	k := SeriesKey{Thread: thread, Op: op}
	s[k] = append(s[k], latencyNs)
}

// FromResults collects the recorded samples of every thread
func FromResults(results []ThreadResult) SampleSet {
	s := make(SampleSet)
	for i := range results {
		for op, samples := range results[i].Samples {
			if len(samples) > 0 {
				s[SeriesKey{Thread: results[i].ThreadID, Op: workload.OpType(op)}] = samples
			}
		}
	}
	return s
}

// Keys returns the series ordered by thread, then operation
func (s SampleSet) Keys() []SeriesKey {
	keys := make([]SeriesKey, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Thread != keys[j].Thread {
			return keys[i].Thread < keys[j].Thread
		}
		return keys[i].Op < keys[j].Op
	})
	return keys
}

// Len is the total number of samples across all series
func (s SampleSet) Len() int {
	n := 0
	for _, v := range s {
		n += len(v)
	}
	return n
}
