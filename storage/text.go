package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"kvbench/stats"
	"kvbench/workload"
)

// WriteText stores each series of set as <dir>/<thread>_<OP>, one latency
// in nanoseconds per line, in issue order
func WriteText(dir string, set stats.SampleSet) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create latency directory: %w", err)
	}
	for _, k := range set.Keys() {
		path := filepath.Join(dir, SeriesName(k))
		if err := WriteValues(path, set[k]); err != nil {
			return err
		}
	}
	return nil
}

// SeriesName is the file name of a (thread, op) series
func SeriesName(k stats.SeriesKey) string {
	return fmt.Sprintf("%d_%s", k.Thread, k.Op)
}

// WriteValues writes one integer per line
func WriteValues(path string, values []int64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	buf := make([]byte, 0, 24)
	for _, v := range values {
		buf = strconv.AppendInt(buf[:0], v, 10)
		buf = append(buf, '\n')
		if _, err := w.Write(buf); err != nil {
			f.Close()
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// ReadValues reads a file written by WriteValues
func ReadValues(path string) ([]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var values []int64
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		values = append(values, v)
	}
	return values, scanner.Err()
}

// ReadText loads every <thread>_<OP> file in dir. Other files are ignored.
func ReadText(dir string) (stats.SampleSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	set := make(stats.SampleSet)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		k, ok := parseSeriesName(e.Name())
		if !ok {
			continue
		}
		values, err := ReadValues(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		set[k] = values
	}
	return set, nil
}

func parseSeriesName(name string) (stats.SeriesKey, bool) {
	thread, op, ok := strings.Cut(name, "_")
	if !ok {
		return stats.SeriesKey{}, false
	}
	t, err := strconv.Atoi(thread)
	if err != nil {
		return stats.SeriesKey{}, false
	}
	o, err := workload.ParseOpType(op)
	if err != nil {
		return stats.SeriesKey{}, false
	}
	return stats.SeriesKey{Thread: t, Op: o}, true
}
