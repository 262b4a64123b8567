package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"kvbench/stats"
	"kvbench/storage"
)

func newAnalyzeCmd() *cobra.Command {
	var (
		window int
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "analyze <samples.parquet | detail_latency dir>",
		Short: "Print tail latency per (thread, op) and write sliding-window series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			phases, defaultOut, err := loadSamples(args[0])
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = defaultOut
			}
			for _, name := range sortedPhases(phases) {
				dir := outDir
				if name != "" {
					dir = filepath.Join(outDir, name)
					fmt.Fprintf(cmd.OutOrStdout(), "== %s\n", name)
				}
				if err := analyzeSet(cmd.OutOrStdout(), phases[name], dir, window); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&window, "window", 1000, "Samples per sliding window, 0 disables window output")
	cmd.Flags().StringVarP(&outDir, "output", "o", "", "Directory for window series (default: next to the input)")
	return cmd
}

// loadSamples reads a parquet file (one set per phase) or a text
// directory (a single unnamed set)
func loadSamples(path string) (map[string]stats.SampleSet, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", err
	}
	if info.IsDir() {
		set, err := storage.ReadText(path)
		if err != nil {
			return nil, "", err
		}
		return map[string]stats.SampleSet{"": set}, path, nil
	}
	phases, err := storage.ReadParquet(path)
	if err != nil {
		return nil, "", err
	}
	out := filepath.Join(filepath.Dir(path), strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+"-analysis")
	return phases, out, nil
}

func sortedPhases(phases map[string]stats.SampleSet) []string {
	names := make([]string, 0, len(phases))
	for name := range phases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// analyzeSet prints a summary row per series and, when window > 0, writes
// <dir>/<thread>_<OP>_<p>th for every window percentile
func analyzeSet(out io.Writer, set stats.SampleSet, dir string, window int) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := []string{"SERIES", "COUNT", "AVG(us)"}
	for _, p := range stats.DefaultPercentiles {
		header = append(header, strings.ToUpper(stats.PercentileLabel(p)))
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))

	for _, k := range set.Keys() {
		sum := stats.Analyze(set[k], stats.DefaultPercentiles)
		row := []string{storage.SeriesName(k), strconv.Itoa(sum.Count), fmt.Sprintf("%.2f", sum.Avg/1e3)}
		for _, pc := range sum.Percentiles {
			row = append(row, fmt.Sprintf("%.2f", float64(pc.Value)/1e3))
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if window <= 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create window directory: %w", err)
	}
	written := 0
	for _, k := range set.Keys() {
		for _, p := range stats.WindowPercentiles {
			series := stats.SlidingWindow(set[k], p, window)
			if len(series) == 0 {
				continue
			}
			path := filepath.Join(dir, windowFileName(k, p))
			if err := storage.WriteValues(path, series); err != nil {
				return err
			}
			written++
		}
	}
	log.Info().Str("dir", dir).Int("files", written).Int("window", window).Msg("sliding window series written")
	return nil
}

func windowFileName(k stats.SeriesKey, p float64) string {
	return fmt.Sprintf("%s_%sth", storage.SeriesName(k), strconv.FormatFloat(p, 'f', -1, 64))
}
