package storage

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"kvbench/stats"
	"kvbench/workload"
)

func sampleSet() stats.SampleSet {
	s := make(stats.SampleSet)
	for i := int64(1); i <= 50; i++ {
		s.Add(0, workload.OpGet, i*100)
		s.Add(1, workload.OpUpdate, i*1000)
	}
	s.Add(1, workload.OpScan, 42)
	return s
}

func sameSet(t *testing.T, got, want stats.SampleSet) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d series, want %d", len(got), len(want))
	}
	for k, w := range want {
		g := got[k]
		if len(g) != len(w) {
			t.Fatalf("series %v: %d samples, want %d", k, len(g), len(w))
		}
		for i := range w {
			if g[i] != w[i] {
				t.Fatalf("series %v sample %d = %d, want %d", k, i, g[i], w[i])
			}
		}
	}
}

func TestParquetSamplesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	pw, err := NewParquetWriter(dir, "run-1", 16)
	if err != nil {
		t.Fatal(err)
	}
	if err := pw.WriteSet("run-1", "SEQ_LOAD", sampleSet()); err != nil {
		t.Fatal(err)
	}
	loadOnly := make(stats.SampleSet)
	loadOnly.Add(3, workload.OpPut, 7)
	if err := pw.WriteSet("run-1", "A", loadOnly); err != nil {
		t.Fatal(err)
	}
	if err := pw.Close(); err != nil {
		t.Fatal(err)
	}
	if filepath.Base(pw.Path()) != "kvbench-run-1.parquet" {
		t.Errorf("path = %s", pw.Path())
	}

	phases, err := ReadParquet(pw.Path())
	if err != nil {
		t.Fatal(err)
	}
	sameSet(t, phases["SEQ_LOAD"], sampleSet())
	sameSet(t, phases["A"], loadOnly)
}

func TestTextSamplesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	if err := WriteText(dir, sampleSet()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "1_UPDATE")); err != nil {
		t.Fatalf("series file missing: %v", err)
	}
	// window outputs living next to the series are not series themselves
	if err := WriteValues(filepath.Join(dir, "0_GET_0.99th"), []int64{1}); err != nil {
		t.Fatal(err)
	}

	got, err := ReadText(dir)
	if err != nil {
		t.Fatal(err)
	}
	sameSet(t, got, sampleSet())
}

func TestPhaseReport(t *testing.T) {
	sizes, _ := workload.NewSizeTable(100, []workload.SizeClass{{Size: 256, Proportion: 0.5}, {Size: 4096, Proportion: 0.5}})
	spec := &workload.Spec{Type: workload.TypeA, Distribution: workload.DistZipfian, KeySpace: 100, Sizes: sizes}

	tr := stats.ThreadResult{ThreadID: 0, Elapsed: time.Second, SizeCounts: []uint64{1, 1}, LastErr: errors.New("timeout")}
	tr.Ops[workload.OpGet].Record(time.Millisecond, true)
	tr.Ops[workload.OpUpdate].Record(time.Millisecond, false)
	tr.Samples[workload.OpGet] = []int64{int64(time.Millisecond)}
	threads := []stats.ThreadResult{tr}

	p := NewPhaseReport(spec, threads, stats.Aggregate(threads))
	if p.Operations != 2 || p.Failed != 1 || p.Workload != "A" {
		t.Errorf("report = %+v", p)
	}
	if p.PerOp["UPDATE"].Success != 0 || p.PerOp["GET"].Count != 1 {
		t.Errorf("per op = %+v", p.PerOp)
	}
	if len(p.SizeClasses) != 2 || p.SizeClasses[1].Size != 4096 {
		t.Errorf("size classes = %+v", p.SizeClasses)
	}
	if p.PerThread[0].LastError != "timeout" {
		t.Errorf("thread error = %q", p.PerThread[0].LastError)
	}
	if tail := p.Tail["GET"]; len(tail) != len(stats.DefaultPercentiles) || tail["p50"] != 1000 || tail["p99.9"] != 1000 {
		t.Errorf("tail = %v", p.Tail)
	}

	dir := t.TempDir()
	path, err := WriteReport(dir, &Report{RunID: "r", Backend: "memory", Phases: []PhaseReport{p}})
	if err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	var back Report
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.Phases[0].IOPS != p.IOPS {
		t.Errorf("iops after reload = %v, want %v", back.Phases[0].IOPS, p.IOPS)
	}
	if back.Phases[0].Tail["GET"]["p99.99"] != 1000 {
		t.Errorf("tail after reload = %v", back.Phases[0].Tail)
	}
}

func TestPrometheusExporter(t *testing.T) {
	pe := NewPrometheusExporter()
	pe.Observe(0, workload.OpGet, time.Millisecond, true) // before any phase

	pe.StartPhase(workload.TypeB, 4)
	pe.Observe(0, workload.OpGet, time.Millisecond, true)
	pe.Observe(1, workload.OpGet, 2*time.Millisecond, true)
	pe.Observe(1, workload.OpUpdate, time.Millisecond, false)

	if got := testutil.ToFloat64(pe.opsCounter.WithLabelValues("B", "GET", "ok")); got != 2 {
		t.Errorf("GET ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(pe.errorCounter.WithLabelValues("B", "UPDATE")); got != 1 {
		t.Errorf("UPDATE errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(pe.threadsGauge.WithLabelValues("B")); got != 4 {
		t.Errorf("threads = %v", got)
	}

	pe.FinishPhase(workload.TypeB, 1234)
	if got := testutil.ToFloat64(pe.iopsGauge.WithLabelValues("B")); got != 1234 {
		t.Errorf("iops = %v", got)
	}
	pe.UpdateHostStats(12.5, 40, 1e6, 2e6)
	if got := testutil.ToFloat64(pe.networkGauge.WithLabelValues("tx")); got != 2e6 {
		t.Errorf("tx = %v", got)
	}
	if n := testutil.CollectAndCount(pe.latencyHistogram); n != workload.NumOpTypes {
		t.Errorf("latency series = %d, want one per op type", n)
	}
}

func TestPrometheusServerShutdown(t *testing.T) {
	pe := NewPrometheusExporter()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- pe.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pe.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("serve returned %v, want ErrServerClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server still running after shutdown")
	}
	if _, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second); err == nil {
		t.Error("listener still accepting after shutdown")
	}
}
