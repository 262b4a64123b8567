package stats

import (
	"math"
	"testing"
	"time"

	"kvbench/workload"
)

func TestPercentileOfHundred(t *testing.T) {
	samples := make([]int64, 100)
	for i := range samples {
		samples[i] = int64(100 - i) // unsorted on purpose
	}
	s := Analyze(samples, DefaultPercentiles)

	want := map[float64]int64{0.5: 51, 0.75: 76, 0.90: 91, 0.99: 100, 0.999: 100, 0.9999: 100}
	for _, p := range s.Percentiles {
		if p.Value != want[p.P] {
			t.Errorf("p%v = %d, want %d", p.P, p.Value, want[p.P])
		}
	}
	if s.Avg != 50.5 || s.Min != 1 || s.Max != 100 {
		t.Errorf("avg/min/max = %v/%d/%d", s.Avg, s.Min, s.Max)
	}
	if samples[0] != 100 {
		t.Error("Analyze reordered the caller's slice")
	}
}

func TestPercentileIndexIsExactFloor(t *testing.T) {
	sorted := make([]int64, 100)
	for i := range sorted {
		sorted[i] = int64(i + 1)
	}
	// 100*0.29 and 100*0.57 land just below an integer in float64
	tests := []struct {
		p    float64
		want int64
	}{
		{0.29, 29},
		{0.57, 57},
		{0.5, 51},
		{0.99, 100},
	}
	for _, tt := range tests {
		if got := PercentileOf(sorted, tt.p); got != tt.want {
			t.Errorf("PercentileOf(1..100, %v) = %d, want %d", tt.p, got, tt.want)
		}
	}
}

func TestPercentileLabel(t *testing.T) {
	for p, want := range map[float64]string{0.5: "p50", 0.9: "p90", 0.999: "p99.9", 0.9999: "p99.99"} {
		if got := PercentileLabel(p); got != want {
			t.Errorf("PercentileLabel(%v) = %q, want %q", p, got, want)
		}
	}
}

func TestAnalyzeEmpty(t *testing.T) {
	s := Analyze(nil, DefaultPercentiles)
	if s.Count != 0 || len(s.Percentiles) != 0 {
		t.Errorf("empty summary = %+v", s)
	}
	if PercentileOf(nil, 0.99) != 0 {
		t.Error("percentile of empty population must be 0")
	}
}

func TestSlidingWindow(t *testing.T) {
	// two full windows of 10 and a partial one of 5
	samples := make([]int64, 25)
	for i := range samples {
		samples[i] = int64(i)
	}
	samples[3] = 1000

	got := SlidingWindow(samples, 0.99, 10)
	if len(got) != 2 {
		t.Fatalf("windows = %v, want 2 values", got)
	}
	if got[0] != 1000 || got[1] != 19 {
		t.Errorf("windowed p99 = %v, want [1000 19]", got)
	}
	if SlidingWindow(samples, 0.99, 0) != nil {
		t.Error("zero interval must produce no windows")
	}
}

func TestThreadIOPS(t *testing.T) {
	r := ThreadResult{Elapsed: time.Second}
	for i := 0; i < 10; i++ {
		r.Ops[workload.OpGet].Record(time.Millisecond, true)
	}
	if got := r.IOPS(); math.Abs(got-1000) > 1e-9 {
		t.Errorf("IOPS = %v, want 1000", got)
	}
}

func TestAggregate(t *testing.T) {
	a := ThreadResult{ThreadID: 0, Elapsed: 2 * time.Second, Bytes: 2000, SizeCounts: []uint64{3, 1}}
	a.Ops[workload.OpPut].Record(time.Millisecond, true)
	a.Ops[workload.OpPut].Record(time.Millisecond, false)
	b := ThreadResult{ThreadID: 1, Elapsed: time.Second, Bytes: 500, SizeCounts: []uint64{1, 1}}
	b.Ops[workload.OpGet].Record(2*time.Millisecond, true)

	agg := Aggregate([]ThreadResult{a, b})
	if agg.Operations != 3 || agg.Successful != 2 || agg.Failed() != 1 {
		t.Errorf("ops/success/failed = %d/%d/%d", agg.Operations, agg.Successful, agg.Failed())
	}
	if math.Abs(agg.IOPS-1500) > 1e-6 {
		t.Errorf("IOPS = %v, want 1000 + 500", agg.IOPS)
	}
	if math.Abs(agg.Bandwidth-1500) > 1e-6 {
		t.Errorf("bandwidth = %v, want 1000 + 500 bytes/s", agg.Bandwidth)
	}
	wantAvg := float64(4*time.Millisecond) / 3
	if math.Abs(agg.AvgLatencyNs-wantAvg) > 1e-6 {
		t.Errorf("avg latency = %v, want %v", agg.AvgLatencyNs, wantAvg)
	}
	if agg.Elapsed != 2*time.Second {
		t.Errorf("elapsed = %v", agg.Elapsed)
	}
	if agg.SizeCounts[0] != 4 || agg.SizeCounts[1] != 2 {
		t.Errorf("size counts = %v", agg.SizeCounts)
	}
	if agg.Ops[workload.OpPut].Success != 1 || agg.Ops[workload.OpGet].Count != 1 {
		t.Errorf("per-op stats = %+v", agg.Ops)
	}
}

func TestSampleSetKeysOrdered(t *testing.T) {
	s := make(SampleSet)
	s.Add(1, workload.OpGet, 5)
	s.Add(0, workload.OpScan, 7)
	s.Add(0, workload.OpPut, 1)
	s.Add(0, workload.OpPut, 2)

	keys := s.Keys()
	want := []SeriesKey{{0, workload.OpPut}, {0, workload.OpScan}, {1, workload.OpGet}}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}
	if s.Len() != 4 {
		t.Errorf("Len = %d", s.Len())
	}
}
