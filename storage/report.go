package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"kvbench/stats"
	"kvbench/workload"
)

// Report is the JSON summary written at the end of a run
type Report struct {
	RunID    string        `json:"run_id"`
	Started  time.Time     `json:"started"`
	Finished time.Time     `json:"finished"`
	Backend  string        `json:"backend"`
	HostType string        `json:"host_type,omitempty"`
	Phases   []PhaseReport `json:"phases"`
}

// PhaseReport summarises one workload phase
type PhaseReport struct {
	Workload      string                        `json:"workload"`
	Distribution  string                        `json:"distribution"`
	Threads       int                           `json:"threads"`
	KeySpace      uint64                        `json:"key_space"`
	Operations    uint64                        `json:"operations"`
	Successful    uint64                        `json:"successful"`
	Failed        uint64                        `json:"failed"`
	IOPS          float64                       `json:"iops"`
	AvgLatencyUs  float64                       `json:"avg_latency_us"`
	BandwidthMBps float64                       `json:"bandwidth_mbps"`
	ElapsedSec    float64                       `json:"elapsed_sec"`
	Found         uint64                        `json:"found"`
	Correct       uint64                        `json:"correct"`
	ScanRows      uint64                        `json:"scan_rows"`
	PerOp         map[string]OpReport           `json:"per_op"`
	SizeClasses   []SizeClassReport             `json:"size_classes"`
	PerThread     []ThreadReport                `json:"per_thread"`
	Interrupted   bool                          `json:"interrupted,omitempty"`
	Host          *HostSnapshot                 `json:"host,omitempty"`
	Tail          map[string]map[string]float64 `json:"tail_us,omitempty"`
}

// OpReport is the aggregate of one operation type
type OpReport struct {
	Count        uint64  `json:"count"`
	Success      uint64  `json:"success"`
	AvgLatencyUs float64 `json:"avg_latency_us"`
}

// SizeClassReport counts operations per value size
type SizeClassReport struct {
	Size  int    `json:"size"`
	Count uint64 `json:"count"`
}

// ThreadReport is one worker's share of a phase
type ThreadReport struct {
	ID            int      `json:"id"`
	Operations    uint64   `json:"operations"`
	Successful    uint64   `json:"successful"`
	IOPS          float64  `json:"iops"`
	AvgLatencyUs  float64  `json:"avg_latency_us"`
	BandwidthMBps float64  `json:"bandwidth_mbps"`
	SizeCounts    []uint64 `json:"size_counts"`
	LastError     string   `json:"last_error,omitempty"`
}

// HostSnapshot is host resource usage sampled at the end of a phase
type HostSnapshot struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	NetRxBytes    uint64  `json:"net_rx_bytes"`
	NetTxBytes    uint64  `json:"net_tx_bytes"`
}

const mb = 1024 * 1024

// NewPhaseReport flattens a phase result. Tail percentiles over all threads
// are included when samples were recorded.
func NewPhaseReport(spec *workload.Spec, threads []stats.ThreadResult, agg stats.AggregateResult) PhaseReport {
	p := PhaseReport{
		Workload:      string(spec.Type),
		Distribution:  string(spec.Distribution),
		Threads:       agg.Threads,
		KeySpace:      spec.KeySpace,
		Operations:    agg.Operations,
		Successful:    agg.Successful,
		Failed:        agg.Failed(),
		IOPS:          agg.IOPS,
		AvgLatencyUs:  agg.AvgLatencyNs / 1e3,
		BandwidthMBps: agg.Bandwidth / mb,
		ElapsedSec:    agg.Elapsed.Seconds(),
		Found:         agg.Found,
		Correct:       agg.Correct,
		ScanRows:      agg.ScanRows,
		PerOp:         make(map[string]OpReport),
	}
	for op, o := range agg.Ops {
		if o.Count == 0 {
			continue
		}
		p.PerOp[workload.OpType(op).String()] = OpReport{
			Count:        o.Count,
			Success:      o.Success,
			AvgLatencyUs: o.AvgLatencyNs() / 1e3,
		}
	}
	for i, n := range agg.SizeCounts {
		if spec.Sizes != nil && i < spec.Sizes.Len() {
			p.SizeClasses = append(p.SizeClasses, SizeClassReport{Size: spec.Sizes.Size(i), Count: n})
		}
	}
	for i := range threads {
		t := &threads[i]
		tr := ThreadReport{
			ID:            t.ThreadID,
			Operations:    t.Operations(),
			Successful:    t.Successful(),
			IOPS:          t.IOPS(),
			AvgLatencyUs:  t.AvgLatencyNs() / 1e3,
			BandwidthMBps: t.Bandwidth() / mb,
			SizeCounts:    t.SizeCounts,
		}
		if t.LastErr != nil {
			tr.LastError = t.LastErr.Error()
		}
		p.PerThread = append(p.PerThread, tr)
	}

	// merge every thread's series per op for the run-wide tail
	merged := make(map[workload.OpType][]int64)
	for i := range threads {
		for op, s := range threads[i].Samples {
			merged[workload.OpType(op)] = append(merged[workload.OpType(op)], s...)
		}
	}
	for op, samples := range merged {
		if len(samples) == 0 {
			continue
		}
		if p.Tail == nil {
			p.Tail = make(map[string]map[string]float64)
		}
		sum := stats.Analyze(samples, stats.DefaultPercentiles)
		values := make(map[string]float64, len(sum.Percentiles))
		for _, pc := range sum.Percentiles {
			values[stats.PercentileLabel(pc.P)] = float64(pc.Value) / 1e3
		}
		p.Tail[op.String()] = values
	}
	return p
}

// WriteReport writes report as indented JSON to <dir>/report.json
func WriteReport(dir string, report *Report) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	path := filepath.Join(dir, "report.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}
