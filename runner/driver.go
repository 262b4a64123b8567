package runner

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"kvbench/backend"
	"kvbench/stats"
	"kvbench/workload"
)

// Observer sees every completed operation. It is called from worker
// goroutines and must be safe for concurrent use.
type Observer interface {
	Observe(thread int, op workload.OpType, latency time.Duration, ok bool)
}

// driver is one worker loop. Everything it touches except the backend and
// the observer is owned by its goroutine.
type driver struct {
	gen       *workload.Generator
	backend   backend.Backend
	tc        *workload.ThreadContext
	limiter   *rate.Limiter
	observer  Observer
	record    bool
	scanRange int
	res       *stats.ThreadResult
}

func (d *driver) run(ctx context.Context) {
	started := time.Now()
	for ctx.Err() == nil && !d.tc.Exhausted() {
		// wait for a token before drawing so a cancelled wait leaves no
		// operation counted that was never issued
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				break
			}
		}
		op, ok := d.gen.Next(d.tc)
		if !ok {
			break
		}

		began := time.Now()
		success := d.execute(ctx, op)
		latency := time.Since(began)

		d.res.Ops[op.Type].Record(latency, success)
		if d.record {
			d.res.Samples[op.Type] = append(d.res.Samples[op.Type], int64(latency))
		}
		if d.observer != nil {
			d.observer.Observe(d.tc.ID, op.Type, latency, success)
		}
	}
	d.res.Elapsed = time.Since(started)
	d.res.SizeCounts = d.tc.SizeCounts
}

// execute issues exactly one backend request, or GET then PUT for RMW.
// Failures are recorded on the result and never stop the loop.
func (d *driver) execute(ctx context.Context, op workload.Operation) bool {
	switch op.Type {
	case workload.OpPut, workload.OpUpdate:
		return d.put(ctx, op)
	case workload.OpGet:
		return d.get(ctx, op)
	case workload.OpDelete:
		if err := d.backend.Delete(ctx, op.Key); err != nil {
			d.res.LastErr = err
			return false
		}
		return true
	case workload.OpScan:
		return d.scan(ctx, op)
	case workload.OpRMW:
		if !d.get(ctx, op) {
			return false
		}
		return d.put(ctx, op)
	}
	return false
}

func (d *driver) put(ctx context.Context, op workload.Operation) bool {
	if err := d.backend.Put(ctx, op.Key, op.Value); err != nil {
		d.res.LastErr = err
		return false
	}
	d.res.Bytes += uint64(len(op.Key) + len(op.Value))
	return true
}

func (d *driver) get(ctx context.Context, op workload.Operation) bool {
	value, found, err := d.backend.Get(ctx, op.Key)
	if err != nil {
		d.res.LastErr = err
		return false
	}
	if found {
		d.res.Found++
		d.res.Bytes += uint64(len(value))
		if workload.ValueMatchesKey(op.Key, value) {
			d.res.Correct++
		}
	}
	return true
}

func (d *driver) scan(ctx context.Context, op workload.Operation) bool {
	it := d.backend.Scan(ctx, op.Key, d.scanRange)
	rows := 0
	for rows < d.scanRange && it.Next() {
		rows++
		d.res.Bytes += uint64(len(it.Key()) + len(it.Value()))
	}
	err := it.Err()
	if cerr := it.Close(); err == nil {
		err = cerr
	}
	d.res.ScanRows += uint64(rows)
	if err != nil {
		d.res.LastErr = err
		return false
	}
	return true
}
