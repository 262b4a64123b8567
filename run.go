package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"kvbench/backend"
	"kvbench/config"
	"kvbench/runner"
	"kvbench/storage"
	"kvbench/sysstats"
	"kvbench/workload"
)

type runFlags struct {
	configPath  string
	workload    string
	backendKind string
	threads     int
	operations  uint64
	records     uint64
	outputDir   string
	format      string
	metricsAddr string
	targetRate  float64
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured workload phases against a backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &f)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			bench, err := initializeBenchmark(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize benchmark: %w", err)
			}
			defer bench.cleanup()
			return bench.run(ctx, os.Stdout)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&f.configPath, "config", "c", "", "YAML configuration file")
	flags.StringVarP(&f.workload, "workload", "w", "", "Single workload to run (overrides phases)")
	flags.StringVar(&f.backendKind, "backend", "", "Backend kind (memory, bolt, pebble, redis, etcd, s3)")
	flags.IntVarP(&f.threads, "threads", "t", 0, "Worker threads")
	flags.Uint64VarP(&f.operations, "operations", "n", 0, "Total operations per phase")
	flags.Uint64Var(&f.records, "records", 0, "Key space size")
	flags.StringVarP(&f.outputDir, "output", "o", "", "Output directory for results")
	flags.StringVar(&f.format, "format", "", "Latency sample format (parquet, text, both, none)")
	flags.StringVar(&f.metricsAddr, "metrics-addr", "", "Prometheus metrics server address, \"off\" to disable")
	flags.Float64Var(&f.targetRate, "target-rate", 0, "Target operations per second across all threads")
	return cmd
}

// loadConfig reads the config file and applies the flags that were set
func loadConfig(cmd *cobra.Command, f *runFlags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("workload") {
		cfg.Workload = f.workload
		cfg.Phases = nil
	}
	if flags.Changed("backend") {
		cfg.Backend.Kind = f.backendKind
	}
	if flags.Changed("threads") {
		cfg.Threads = f.threads
		for i := range cfg.Phases {
			cfg.Phases[i].Threads = 0
		}
	}
	if flags.Changed("operations") {
		cfg.OperationCount = f.operations
	}
	if flags.Changed("records") {
		cfg.RecordCount = f.records
		cfg.DBSize = 0
	}
	if flags.Changed("output") {
		cfg.Output.Dir = f.outputDir
	}
	if flags.Changed("format") {
		cfg.Output.Format = f.format
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = f.metricsAddr
		if f.metricsAddr == "off" {
			cfg.Metrics.Addr = ""
		}
	}
	if flags.Changed("target-rate") {
		cfg.TargetOpsPerSec = f.targetRate
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// benchmark owns everything that lives for a whole run
type benchmark struct {
	cfg    *config.Config
	specs  []*workload.Spec
	runID  string
	outDir string

	backend       backend.Backend
	parquetWriter *storage.ParquetWriter
	promExporter  *storage.PrometheusExporter
	monitor       *sysstats.Monitor

	hostMu   sync.Mutex
	lastHost *sysstats.Stats
}

func initializeBenchmark(ctx context.Context, cfg *config.Config) (*benchmark, error) {
	specs, err := cfg.PhaseSpecs()
	if err != nil {
		return nil, err
	}
	b := &benchmark{
		cfg:          cfg,
		specs:        specs,
		runID:        uuid.NewString(),
		promExporter: storage.NewPrometheusExporter(),
	}
	b.outDir = filepath.Join(cfg.Output.Dir, b.runID)

	b.backend, err = backend.Open(ctx, cfg.Backend)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", cfg.Backend.Kind, err)
	}

	if cfg.Output.WritesSamples(config.FormatParquet) {
		b.parquetWriter, err = storage.NewParquetWriter(b.outDir, b.runID, 1000)
		if err != nil {
			b.backend.Close()
			return nil, fmt.Errorf("failed to create Parquet writer: %w", err)
		}
	}

	b.monitor, err = sysstats.NewMonitor(cfg.Metrics.ProcPath)
	if err != nil {
		log.Warn().Err(err).Msg("host monitor unavailable")
	}
	return b, nil
}

func (b *benchmark) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.promExporter.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("failed to stop Prometheus server")
	}
	if b.parquetWriter != nil {
		if err := b.parquetWriter.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close Parquet writer")
		} else {
			log.Info().Str("path", b.parquetWriter.Path()).Msg("latency samples written")
		}
	}
	if err := b.backend.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close backend")
	}
}

func (b *benchmark) run(ctx context.Context, out io.Writer) error {
	log.Info().
		Str("run_id", b.runID).
		Str("backend", b.cfg.Backend.Kind).
		Int("phases", len(b.specs)).
		Str("output", b.outDir).
		Msg("starting benchmark")

	if addr := b.cfg.Metrics.Addr; addr != "" {
		go func() {
			log.Info().Str("addr", addr).Msg("starting Prometheus server")
			if err := b.promExporter.StartServer(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Prometheus server error")
			}
		}()
	}

	monCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	if b.monitor != nil && b.cfg.Metrics.HostInterval > 0 {
		go b.monitorHost(monCtx)
	}

	report := &storage.Report{
		RunID:   b.runID,
		Started: time.Now(),
		Backend: b.cfg.Backend.Kind,
	}
	if b.monitor != nil {
		report.HostType = b.monitor.HostType()
		log.Info().Str("host", report.HostType).Msg("host monitor ready")
	}
	var runErr error
	for i, spec := range b.specs {
		phase, err := b.runPhase(ctx, i, spec)
		if phase != nil {
			report.Phases = append(report.Phases, *phase)
		}
		if err != nil {
			runErr = err
			break
		}
	}
	report.Finished = time.Now()

	path, err := storage.WriteReport(b.outDir, report)
	if err != nil {
		return errors.Join(runErr, err)
	}
	log.Info().Str("path", path).Msg("report written")
	printSummary(out, report)
	return runErr
}

// runPhase returns a partial report together with the error when the phase was interrupted
func (b *benchmark) runPhase(ctx context.Context, index int, spec *workload.Spec) (*storage.PhaseReport, error) {
	opts := runner.Options{
		RecordSamples:   b.cfg.RecordLatencies,
		TargetOpsPerSec: b.cfg.TargetOpsPerSec,
	}
	if b.cfg.Metrics.Addr != "" {
		opts.Observer = b.promExporter
	}
	r, err := runner.New(spec, b.backend, opts)
	if err != nil {
		return nil, err
	}

	b.promExporter.StartPhase(spec.Type, spec.Threads)
	res, runErr := r.Run(ctx)
	if res == nil {
		return nil, runErr
	}
	b.promExporter.FinishPhase(spec.Type, res.Aggregate.IOPS)

	phase := storage.NewPhaseReport(spec, res.Threads, res.Aggregate)
	phase.Interrupted = runErr != nil
	phase.Host = b.hostSnapshot()

	if b.cfg.RecordLatencies {
		if err := b.writeSamples(phaseName(index, spec.Type), res); err != nil {
			return &phase, errors.Join(runErr, err)
		}
	}
	return &phase, runErr
}

func phaseName(index int, t workload.Type) string {
	return fmt.Sprintf("%d_%s", index+1, t)
}

func (b *benchmark) writeSamples(name string, res *runner.Result) error {
	samples := res.Samples()
	if b.parquetWriter != nil {
		if err := b.parquetWriter.WriteSet(b.runID, name, samples); err != nil {
			return fmt.Errorf("failed to write samples of %s: %w", name, err)
		}
	}
	if b.cfg.Output.WritesSamples(config.FormatText) {
		dir := filepath.Join(b.outDir, name, "detail_latency")
		if err := storage.WriteText(dir, samples); err != nil {
			return err
		}
		log.Info().Str("dir", dir).Int("series", len(samples)).Msg("latency files written")
	}
	return nil
}

func (b *benchmark) monitorHost(ctx context.Context) {
	err := b.monitor.Run(ctx, b.cfg.Metrics.HostInterval, func(s sysstats.Stats) {
		b.promExporter.UpdateHostStats(s.CPUPercent, s.MemoryPercent, s.RxBytesPerSec, s.TxBytesPerSec)
		b.hostMu.Lock()
		b.lastHost = &s
		b.hostMu.Unlock()
	})
	if err != nil {
		log.Warn().Err(err).Msg("host monitor stopped")
	}
}

func (b *benchmark) hostSnapshot() *storage.HostSnapshot {
	b.hostMu.Lock()
	defer b.hostMu.Unlock()
	if b.lastHost == nil {
		return nil
	}
	return &storage.HostSnapshot{
		CPUPercent:    b.lastHost.CPUPercent,
		MemoryPercent: b.lastHost.MemoryPercent,
		NetRxBytes:    b.lastHost.NetRxBytes,
		NetTxBytes:    b.lastHost.NetTxBytes,
	}
}

func printSummary(out io.Writer, report *storage.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PHASE\tTHREADS\tOPS\tFAILED\tIOPS\tAVG(us)\tMB/s\tFOUND\tCORRECT\tELAPSED(s)")
	for _, p := range report.Phases {
		name := p.Workload
		if p.Interrupted {
			name += "*"
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.0f\t%.2f\t%.2f\t%d\t%d\t%.2f\n",
			name, p.Threads, p.Operations, p.Failed, p.IOPS, p.AvgLatencyUs, p.BandwidthMBps, p.Found, p.Correct, p.ElapsedSec)
	}
	w.Flush()
}
