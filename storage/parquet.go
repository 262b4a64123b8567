package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"kvbench/stats"
	"kvbench/workload"
)

// LatencySample is one persisted operation latency. Seq is the position of
// the sample within its (phase, thread, op) series.
type LatencySample struct {
	RunID     string `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Phase     string `parquet:"name=phase, type=BYTE_ARRAY, convertedtype=UTF8"`
	ThreadID  int32  `parquet:"name=thread_id, type=INT32"`
	Op        string `parquet:"name=op, type=BYTE_ARRAY, convertedtype=UTF8"`
	Seq       int64  `parquet:"name=seq, type=INT64"`
	LatencyNs int64  `parquet:"name=latency_ns, type=INT64"`
}

// ParquetWriter streams latency samples into a single Parquet file
type ParquetWriter struct {
	writer    *writer.ParquetWriter
	file      source.ParquetFile
	mutex     sync.Mutex
	filePath  string
	batchSize int
	samples   []LatencySample
}

// NewParquetWriter creates <outputDir>/kvbench-<runID>.parquet
func NewParquetWriter(outputDir, runID string, batchSize int) (*ParquetWriter, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if batchSize <= 0 {
		batchSize = 1000
	}

	filePath := filepath.Join(outputDir, fmt.Sprintf("kvbench-%s.parquet", runID))
	file, err := local.NewLocalFileWriter(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet file: %w", err)
	}

	pw, err := writer.NewParquetWriter(file, new(LatencySample), 4)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	return &ParquetWriter{
		writer:    pw,
		file:      file,
		filePath:  filePath,
		batchSize: batchSize,
		samples:   make([]LatencySample, 0, batchSize),
	}, nil
}

// WriteSample adds a sample to the batch and flushes if the batch is full
func (pw *ParquetWriter) WriteSample(sample LatencySample) error {
	pw.mutex.Lock()
	defer pw.mutex.Unlock()

	pw.samples = append(pw.samples, sample)
	if len(pw.samples) >= pw.batchSize {
		return pw.flush()
	}
	return nil
}

// WriteSet persists every series of a phase in (thread, op) order
func (pw *ParquetWriter) WriteSet(runID, phase string, set stats.SampleSet) error {
	for _, k := range set.Keys() {
		for seq, ns := range set[k] {
			err := pw.WriteSample(LatencySample{
				RunID:     runID,
				Phase:     phase,
				ThreadID:  int32(k.Thread),
				Op:        k.Op.String(),
				Seq:       int64(seq),
				LatencyNs: ns,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// flush writes the current batch to the Parquet file
func (pw *ParquetWriter) flush() error {
	for _, sample := range pw.samples {
		if err := pw.writer.Write(sample); err != nil {
			return fmt.Errorf("failed to write sample: %w", err)
		}
	}
	pw.samples = pw.samples[:0]
	return nil
}

// Close flushes any remaining samples and closes the writer
func (pw *ParquetWriter) Close() error {
	pw.mutex.Lock()
	defer pw.mutex.Unlock()

	if err := pw.flush(); err != nil {
		return err
	}
	if err := pw.writer.WriteStop(); err != nil {
		return fmt.Errorf("failed to stop parquet writer: %w", err)
	}
	if err := pw.file.Close(); err != nil {
		return fmt.Errorf("failed to close parquet file: %w", err)
	}
	return nil
}

// Path returns the path of the written file
func (pw *ParquetWriter) Path() string {
	return pw.filePath
}

// ReadParquet loads a latency file back into one SampleSet per phase.
// Series are rebuilt in Seq order.
func ReadParquet(path string) (map[string]stats.SampleSet, error) {
	file, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	pr, err := reader.NewParquetReader(file, new(LatencySample), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet reader: %w", err)
	}
	defer pr.ReadStop()

	phases := make(map[string]stats.SampleSet)
	remaining := int(pr.GetNumRows())
	for remaining > 0 {
		n := remaining
		if n > 10000 {
			n = 10000
		}
		rows := make([]LatencySample, n)
		if err := pr.Read(&rows); err != nil {
			return nil, fmt.Errorf("failed to read samples: %w", err)
		}
		for _, row := range rows {
			op, err := workload.ParseOpType(row.Op)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			set, ok := phases[row.Phase]
			if !ok {
				set = make(stats.SampleSet)
				phases[row.Phase] = set
			}
			k := stats.SeriesKey{Thread: int(row.ThreadID), Op: op}
			if int64(len(set[k])) != row.Seq {
				return nil, fmt.Errorf("%s: sample %d of thread %d %s out of order", path, row.Seq, row.ThreadID, row.Op)
			}
			set[k] = append(set[k], row.LatencyNs)
		}
		remaining -= n
	}
	return phases, nil
}
