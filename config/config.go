package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/inhies/go-bytesize"
	"gopkg.in/yaml.v3"

	"kvbench/backend"
	"kvbench/workload"
)

// DefaultRecordCount is the key space when neither record_count nor db_size is set
const DefaultRecordCount = 100000

// Output formats for latency samples
const (
	FormatParquet = "parquet"
	FormatText    = "text"
	FormatBoth    = "both"
	FormatNone    = "none"
)

// Size is a byte count that accepts plain integers or suffixed strings
// such as "256B", "4KB" or "1.5 GB"
type Size uint64

// ParseSize parses a byte size; a bare number means bytes
func ParseSize(s string) (Size, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return Size(n), nil
	}
	b, err := bytesize.Parse(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return Size(b), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (s *Size) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: size must be a scalar", node.Line)
	}
	v, err := ParseSize(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*s = v
	return nil
}

func (s Size) String() string {
	return bytesize.ByteSize(s).String()
}

// SizeClass is one value length bucket
type SizeClass struct {
	Size       Size    `yaml:"size"`
	Proportion float64 `yaml:"proportion"`
}

// Phase is one entry of an ordered workload list. Zero fields inherit
// the top-level settings.
type Phase struct {
	Workload       string `yaml:"workload"`
	OperationCount uint64 `yaml:"operation_count"`
	Threads        int    `yaml:"threads"`
	Distribution   string `yaml:"distribution"`
}

// Output controls where results are written
type Output struct {
	Dir    string `yaml:"dir"`
	Format string `yaml:"format"`
}

// Metrics controls the live Prometheus endpoint and host sampling
type Metrics struct {
	Addr         string        `yaml:"addr"`
	HostInterval time.Duration `yaml:"host_interval"`
	ProcPath     string        `yaml:"proc_path"`
}

// Config is a benchmark run loaded from YAML
type Config struct {
	Workload        string         `yaml:"workload"`
	Phases          []Phase        `yaml:"phases"`
	Distribution    string         `yaml:"distribution"`
	ZipfTheta       float64        `yaml:"zipf_theta"`
	RecordCount     uint64         `yaml:"record_count"`
	DBSize          Size           `yaml:"db_size"`
	OperationCount  uint64         `yaml:"operation_count"`
	Threads         int            `yaml:"threads"`
	ScanRange       int            `yaml:"scan_range"`
	Seed            int64          `yaml:"seed"`
	KeyFormat       string         `yaml:"key_format"`
	SizeClasses     []SizeClass    `yaml:"size_classes"`
	TargetOpsPerSec float64        `yaml:"target_ops_per_sec"`
	RecordLatencies bool           `yaml:"record_latencies"`
	Output          Output         `yaml:"output"`
	Metrics         Metrics        `yaml:"metrics"`
	Backend         backend.Config `yaml:"backend"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Workload:        string(workload.TypeA),
		Distribution:    string(workload.DistZipfian),
		ZipfTheta:       0.99,
		OperationCount:  100000,
		Threads:         4,
		ScanRange:       100,
		Seed:            1,
		KeyFormat:       string(workload.KeyDecimal),
		SizeClasses:     []SizeClass{{Size: 1024, Proportion: 1}},
		RecordLatencies: true,
		Output:          Output{Dir: "./output", Format: FormatParquet},
		Metrics:         Metrics{Addr: ":9100", HostInterval: 10 * time.Second},
		Backend:         backend.Config{Kind: backend.KindMemory},
	}
}

// Load reads path over the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		cfg.applyEnv()
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv fills R2 credentials from the environment when the file leaves them out
func (c *Config) applyEnv() {
	if c.Backend.Kind != backend.KindS3 {
		return
	}
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = os.Getenv(key)
		}
	}
	fill(&c.Backend.AccountID, "R2_ACCOUNT_ID")
	fill(&c.Backend.AccessKeyID, "R2_ACCESS_KEY_ID")
	fill(&c.Backend.SecretAccessKey, "R2_SECRET_ACCESS_KEY")
}

// Validate checks everything that PhaseSpecs does not
func (c *Config) Validate() error {
	switch c.Output.Format {
	case FormatParquet, FormatText, FormatBoth, FormatNone:
	default:
		return &workload.ConfigError{Field: "output.format", Message: fmt.Sprintf("unknown format %q", c.Output.Format)}
	}
	if c.Output.Format != FormatNone && !c.RecordLatencies {
		return &workload.ConfigError{Field: "record_latencies", Message: "latency output requires record_latencies"}
	}
	if c.RecordCount > 0 && c.DBSize > 0 {
		return &workload.ConfigError{Field: "db_size", Message: "record_count and db_size are mutually exclusive"}
	}
	if c.TargetOpsPerSec < 0 {
		return &workload.ConfigError{Field: "target_ops_per_sec", Message: "must not be negative"}
	}
	if c.Backend.Kind == "" {
		return &workload.ConfigError{Field: "backend.kind", Message: "is required"}
	}
	_, err := c.PhaseSpecs()
	return err
}

// SizeTable builds the size table shared by every phase
func (c *Config) SizeTable() (*workload.SizeTable, error) {
	classes := make([]workload.SizeClass, len(c.SizeClasses))
	for i, sc := range c.SizeClasses {
		classes[i] = workload.SizeClass{Size: int(sc.Size), Proportion: sc.Proportion}
	}
	if c.DBSize > 0 {
		return workload.SizeTableFromBytes(uint64(c.DBSize), classes)
	}
	records := c.RecordCount
	if records == 0 {
		records = DefaultRecordCount
	}
	return workload.NewSizeTable(records, classes)
}

// PhaseSpecs converts the configuration into one validated spec per phase.
// Load and delete phases without an explicit operation count cover the
// whole key space.
func (c *Config) PhaseSpecs() ([]*workload.Spec, error) {
	sizes, err := c.SizeTable()
	if err != nil {
		return nil, err
	}
	keyFormat, err := workload.ParseKeyFormat(c.KeyFormat)
	if err != nil {
		return nil, &workload.ConfigError{Field: "key_format", Message: err.Error()}
	}

	phases := c.Phases
	if len(phases) == 0 {
		phases = []Phase{{Workload: c.Workload}}
	}

	specs := make([]*workload.Spec, 0, len(phases))
	for i, p := range phases {
		field := fmt.Sprintf("phases[%d]", i)
		t, err := workload.ParseType(p.Workload)
		if err != nil {
			return nil, &workload.ConfigError{Field: field + ".workload", Message: err.Error()}
		}
		distName := p.Distribution
		if distName == "" {
			distName = c.Distribution
		}
		dist, err := workload.ParseKeyDistribution(distName)
		if err != nil {
			return nil, &workload.ConfigError{Field: field + ".distribution", Message: err.Error()}
		}

		ops := p.OperationCount
		if ops == 0 {
			ops = c.OperationCount
			if t.IsLoad() || t == workload.TypeDelete {
				ops = sizes.KeySpace()
			}
		}
		threads := p.Threads
		if threads == 0 {
			threads = c.Threads
		}

		spec := &workload.Spec{
			Type:         t,
			Distribution: dist,
			Theta:        c.ZipfTheta,
			KeySpace:     sizes.KeySpace(),
			Operations:   ops,
			Threads:      threads,
			Sizes:        sizes,
			ScanRange:    c.ScanRange,
			Seed:         c.Seed,
			KeyFormat:    keyFormat,
		}
		if err := spec.Validate(); err != nil {
			var ce *workload.ConfigError
			if errors.As(err, &ce) {
				return nil, &workload.ConfigError{Field: field + "." + ce.Field, Message: ce.Message}
			}
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// WritesSamples reports whether format includes the given sink
func (o Output) WritesSamples(format string) bool {
	return o.Format == format || o.Format == FormatBoth
}
