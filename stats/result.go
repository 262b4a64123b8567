package stats

import (
	"time"

	"kvbench/workload"
)

// OpStats accumulates one operation type within a thread
type OpStats struct {
	Count     uint64 `json:"count"`
	Success   uint64 `json:"success"`
	LatencyNs uint64 `json:"latency_ns"`
}

// Record adds one timed operation
func (o *OpStats) Record(latency time.Duration, ok bool) {
	o.Count++
	o.LatencyNs += uint64(latency)
	if ok {
		o.Success++
	}
}

// AvgLatencyNs is the mean latency, 0 without operations
func (o OpStats) AvgLatencyNs() float64 {
	if o.Count == 0 {
		return 0
	}
	return float64(o.LatencyNs) / float64(o.Count)
}

// ThreadResult is the terminal state of one worker, handed to the
// orchestrator after join
type ThreadResult struct {
	ThreadID int
	Elapsed  time.Duration
	Ops      [workload.NumOpTypes]OpStats

	Bytes    uint64
	Found    uint64
	Correct  uint64
	ScanRows uint64

	SizeCounts []uint64
	// Samples holds raw latencies in issue order, nil unless recording is on
	Samples [workload.NumOpTypes][]int64
	// LastErr is the most recent backend failure, kept for the thread summary
	LastErr error
}

// Operations is the number of operations the thread issued
func (r *ThreadResult) Operations() uint64 {
	var n uint64
	for _, o := range r.Ops {
		n += o.Count
	}
	return n
}

// Successful is the number of operations that did not fail
func (r *ThreadResult) Successful() uint64 {
	var n uint64
	for _, o := range r.Ops {
		n += o.Success
	}
	return n
}

// LatencyNs is the summed latency of all operations
func (r *ThreadResult) LatencyNs() uint64 {
	var n uint64
	for _, o := range r.Ops {
		n += o.LatencyNs
	}
	return n
}

// AvgLatencyNs is total latency divided by total operations
func (r *ThreadResult) AvgLatencyNs() float64 {
	ops := r.Operations()
	if ops == 0 {
		return 0
	}
	return float64(r.LatencyNs()) / float64(ops)
}

// IOPS is the inverse of the thread's average latency
func (r *ThreadResult) IOPS() float64 {
	avg := r.AvgLatencyNs()
	if avg == 0 {
		return 0
	}
	return 1e9 / avg
}

// Bandwidth is bytes transferred per second of wall-clock time
func (r *ThreadResult) Bandwidth() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Bytes) / r.Elapsed.Seconds()
}

// AggregateResult merges every ThreadResult of a phase
type AggregateResult struct {
	Threads      int
	Operations   uint64
	Successful   uint64
	IOPS         float64
	AvgLatencyNs float64
	Bandwidth    float64
	Elapsed      time.Duration

	Ops        [workload.NumOpTypes]OpStats
	Bytes      uint64
	Found      uint64
	Correct    uint64
	ScanRows   uint64
	SizeCounts []uint64
}

// Aggregate sums per-thread IOPS and bandwidth; average latency is weighted
// by operation count. Elapsed is the slowest thread's wall-clock time.
func Aggregate(results []ThreadResult) AggregateResult {
	agg := AggregateResult{Threads: len(results)}
	var latency uint64
	for i := range results {
		r := &results[i]
		agg.Operations += r.Operations()
		agg.Successful += r.Successful()
		agg.IOPS += r.IOPS()
		agg.Bandwidth += r.Bandwidth()
		latency += r.LatencyNs()
		if r.Elapsed > agg.Elapsed {
			agg.Elapsed = r.Elapsed
		}

		for op := range r.Ops {
			agg.Ops[op].Count += r.Ops[op].Count
			agg.Ops[op].Success += r.Ops[op].Success
			agg.Ops[op].LatencyNs += r.Ops[op].LatencyNs
		}
		agg.Bytes += r.Bytes
		agg.Found += r.Found
		agg.Correct += r.Correct
		agg.ScanRows += r.ScanRows

		if len(agg.SizeCounts) < len(r.SizeCounts) {
			grown := make([]uint64, len(r.SizeCounts))
			copy(grown, agg.SizeCounts)
			agg.SizeCounts = grown
		}
		for c, n := range r.SizeCounts {
			agg.SizeCounts[c] += n
		}
	}
	if agg.Operations > 0 {
		agg.AvgLatencyNs = float64(latency) / float64(agg.Operations)
	}
	return agg
}

// Failed is the number of unsuccessful operations
func (a *AggregateResult) Failed() uint64 {
	return a.Operations - a.Successful
}
