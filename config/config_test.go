package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"kvbench/backend"
	"kvbench/workload"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bench.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want Size
	}{
		{"4096", 4096},
		{"256B", 256},
		{"4KB", 4096},
		{"1 MB", 1 << 20},
		{"1.5KB", 1536},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
	if _, err := ParseSize("12 parsecs"); err == nil {
		t.Error("expected an error for an unknown unit")
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
phases:
  - workload: seq_load
  - workload: A
    operation_count: 2000
  - workload: ycsb-e
    threads: 2
    distribution: uniform
  - workload: delete
record_count: 1000
operation_count: 500
threads: 4
size_classes:
  - {size: 256B, proportion: 0.5}
  - {size: 4096, proportion: 0.5}
output:
  dir: /tmp/out
  format: both
backend:
  kind: bolt
  path: /tmp/bench.db
  timeout: 3s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Backend.Kind != backend.KindBolt || cfg.Backend.Timeout != 3*time.Second {
		t.Errorf("backend = %+v", cfg.Backend)
	}
	// untouched keys keep their defaults
	if cfg.ZipfTheta != 0.99 || cfg.ScanRange != 100 {
		t.Errorf("defaults lost: theta %v scan %d", cfg.ZipfTheta, cfg.ScanRange)
	}

	specs, err := cfg.PhaseSpecs()
	if err != nil {
		t.Fatal(err)
	}
	if len(specs) != 4 {
		t.Fatalf("got %d phases", len(specs))
	}
	if specs[0].Type != workload.TypeSeqLoad || specs[0].Operations != 1000 {
		t.Errorf("load phase = %+v", specs[0])
	}
	if specs[1].Operations != 2000 || specs[1].Distribution != workload.DistZipfian {
		t.Errorf("A phase = %+v", specs[1])
	}
	if specs[2].Type != workload.TypeE || specs[2].Threads != 2 || specs[2].Distribution != workload.DistUniform || specs[2].Operations != 500 {
		t.Errorf("E phase = %+v", specs[2])
	}
	// delete phases cover the key space like loads do
	if specs[3].Type != workload.TypeDelete || specs[3].Operations != 1000 {
		t.Errorf("delete phase = %+v", specs[3])
	}
	if size, _ := specs[1].Sizes.Lookup(499); size != 256 {
		t.Errorf("id 499 size = %d", size)
	}
	if specs[0].Sizes != specs[2].Sizes {
		t.Error("phases must share one size table")
	}
}

func TestLoadDBSize(t *testing.T) {
	path := writeConfig(t, `
workload: C
db_size: 1MB
size_classes:
  - {size: 1KB, proportion: 0.5}
  - {size: 4KB, proportion: 0.5}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	specs, err := cfg.PhaseSpecs()
	if err != nil {
		t.Fatal(err)
	}
	// 512 keys of 1KB plus 128 keys of 4KB
	if specs[0].KeySpace != 640 {
		t.Errorf("key space = %d, want 640", specs[0].KeySpace)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "workload: A\nthreadz: 4\n")
	if _, err := Load(path); err == nil {
		t.Error("expected unknown field error")
	}
}

func TestR2CredentialsFromEnv(t *testing.T) {
	t.Setenv("R2_ACCOUNT_ID", "acct")
	t.Setenv("R2_ACCESS_KEY_ID", "id")
	t.Setenv("R2_SECRET_ACCESS_KEY", "secret")
	path := writeConfig(t, "backend:\n  kind: s3\n  bucket: b\n  access_key_id: explicit\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend.AccountID != "acct" || cfg.Backend.SecretAccessKey != "secret" {
		t.Errorf("env not applied: %+v", cfg.Backend)
	}
	if cfg.Backend.AccessKeyID != "explicit" {
		t.Errorf("file value overridden: %q", cfg.Backend.AccessKeyID)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name  string
		mod   func(c *Config)
		field string
	}{
		{"format", func(c *Config) { c.Output.Format = "csv" }, "output.format"},
		{"no samples", func(c *Config) { c.RecordLatencies = false }, "record_latencies"},
		{"both sizes", func(c *Config) { c.RecordCount = 10; c.DBSize = 1 << 20 }, "db_size"},
		{"threads", func(c *Config) { c.Threads = 33 }, "phases[0].Threads"},
		{"workload", func(c *Config) { c.Workload = "Z" }, "phases[0].workload"},
		{"proportions", func(c *Config) { c.SizeClasses[0].Proportion = 0.5 }, "SizeClasses"},
		{"key format", func(c *Config) { c.KeyFormat = "hex" }, "key_format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mod(cfg)
			err := cfg.Validate()
			var ce *workload.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want ConfigError", err)
			}
			if ce.Field != tt.field {
				t.Errorf("field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}
