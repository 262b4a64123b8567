package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"kvbench/backend"
	"kvbench/stats"
	"kvbench/workload"
)

// Options tune a run without changing the operation stream
type Options struct {
	// RecordSamples keeps every raw latency for offline tail analysis
	RecordSamples bool
	// TargetOpsPerSec caps total throughput; it is split evenly across
	// threads and 0 means unthrottled
	TargetOpsPerSec float64
	Observer        Observer
}

// Result is everything a phase produced
type Result struct {
	Spec      workload.Spec
	Threads   []stats.ThreadResult
	Aggregate stats.AggregateResult
	Started   time.Time
}

// Samples groups the recorded latencies by (thread, operation)
func (r *Result) Samples() stats.SampleSet {
	return stats.FromResults(r.Threads)
}

// Runner fans one workload phase out over a fixed set of workers
type Runner struct {
	spec    *workload.Spec
	backend backend.Backend
	gen     *workload.Generator
	opts    Options
}

// New validates spec and builds all shared sampling state. Configuration
// errors surface here, before any worker exists.
func New(spec *workload.Spec, b backend.Backend, opts Options) (*Runner, error) {
	gen, err := workload.NewGenerator(spec)
	if err != nil {
		return nil, err
	}
	if opts.TargetOpsPerSec < 0 {
		return nil, &workload.ConfigError{Field: "TargetOpsPerSec", Message: "must not be negative"}
	}
	return &Runner{spec: spec, backend: b, gen: gen, opts: opts}, nil
}

// Run starts one goroutine per thread, waits for all of them and merges
// their results. Cancelling ctx stops workers after their in-flight call.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	n := r.spec.Threads
	var (
		results  [workload.MaxThreads]stats.ThreadResult
		contexts [workload.MaxThreads]*workload.ThreadContext
	)
	for i := 0; i < n; i++ {
		tc, err := r.gen.NewThread(i)
		if err != nil {
			return nil, fmt.Errorf("thread %d: %w", i, err)
		}
		contexts[i] = tc
		results[i].ThreadID = i
	}

	log.Info().
		Str("workload", string(r.spec.Type)).
		Int("threads", n).
		Uint64("ops_per_thread", r.spec.ThreadBudget()).
		Uint64("keys", r.spec.KeySpace).
		Str("distribution", string(r.spec.Distribution)).
		Msg("starting phase")

	started := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		d := &driver{
			gen:       r.gen,
			backend:   r.backend,
			tc:        contexts[i],
			observer:  r.opts.Observer,
			record:    r.opts.RecordSamples,
			scanRange: r.spec.ScanRange,
			res:       &results[i],
		}
		if r.opts.TargetOpsPerSec > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(r.opts.TargetOpsPerSec/float64(n)), 1)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.run(ctx)
		}()
	}
	wg.Wait()

	threads := make([]stats.ThreadResult, n)
	copy(threads, results[:n])
	for i := range threads {
		t := &threads[i]
		ev := log.Debug().
			Int("thread", t.ThreadID).
			Uint64("ops", t.Operations()).
			Uint64("failed", t.Operations()-t.Successful()).
			Float64("iops", t.IOPS()).
			Dur("elapsed", t.Elapsed)
		if t.LastErr != nil {
			ev = ev.AnErr("last_error", t.LastErr)
		}
		ev.Msg("thread finished")
	}

	res := &Result{
		Spec:      *r.spec,
		Threads:   threads,
		Aggregate: stats.Aggregate(threads),
		Started:   started,
	}
	log.Info().
		Str("workload", string(r.spec.Type)).
		Uint64("ops", res.Aggregate.Operations).
		Uint64("failed", res.Aggregate.Failed()).
		Float64("iops", res.Aggregate.IOPS).
		Float64("avg_latency_us", res.Aggregate.AvgLatencyNs/1e3).
		Dur("elapsed", res.Aggregate.Elapsed).
		Msg("phase finished")

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("phase %s interrupted: %w", r.spec.Type, err)
	}
	return res, nil
}
