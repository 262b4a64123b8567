package main

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"kvbench/backend"
	"kvbench/config"
	"kvbench/workload"
)

// checkKeyBase keeps preflight keys far above any benchmark key space
const checkKeyBase = 9_000_000_000_000_000

func newCheckCmd() *cobra.Command {
	var (
		configPath  string
		backendKind string
		keys        int
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Round-trip put, get, scan and delete against the configured backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("backend") {
				cfg.Backend.Kind = backendKind
			}
			format, err := workload.ParseKeyFormat(cfg.KeyFormat)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			b, err := backend.Open(ctx, cfg.Backend)
			if err != nil {
				return fmt.Errorf("failed to open %s backend: %w", cfg.Backend.Kind, err)
			}
			defer b.Close()

			log.Info().Str("backend", cfg.Backend.Kind).Int("keys", keys).Msg("starting validity check")
			if err := checkBackend(ctx, b, format, keys); err != nil {
				return err
			}
			log.Info().Msg("validity check passed")
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	cmd.Flags().StringVar(&backendKind, "backend", "", "Backend kind (overrides the config file)")
	cmd.Flags().IntVar(&keys, "keys", 16, "Number of keys to round-trip")
	return cmd
}

// checkBackend writes n keys, reads them back, scans them in order and
// deletes them again. It leaves no keys behind on success.
func checkBackend(ctx context.Context, b backend.Backend, format workload.KeyFormat, n int) error {
	if n <= 0 {
		return fmt.Errorf("key count must be positive")
	}
	keys := make([][]byte, n)
	values := make([][]byte, n)
	for i := range keys {
		keys[i] = format.Key(checkKeyBase + uint64(i))
		values[i] = append(append([]byte{}, keys[i]...), fmt.Sprintf("-check-%d", i)...)
	}

	start := time.Now()
	for i := range keys {
		if err := b.Put(ctx, keys[i], values[i]); err != nil {
			return fmt.Errorf("put %q: %w", keys[i], err)
		}
	}
	log.Info().Dur("took", time.Since(start)).Msg("put ok")

	start = time.Now()
	for i := range keys {
		v, found, err := b.Get(ctx, keys[i])
		if err != nil {
			return fmt.Errorf("get %q: %w", keys[i], err)
		}
		if !found {
			return fmt.Errorf("get %q: key not found after put", keys[i])
		}
		if !bytes.Equal(v, values[i]) {
			return fmt.Errorf("get %q: value mismatch", keys[i])
		}
	}
	log.Info().Dur("took", time.Since(start)).Msg("get ok")

	start = time.Now()
	it := b.Scan(ctx, keys[0], n)
	seen := 0
	for it.Next() {
		if seen < n && !bytes.Equal(it.Key(), keys[seen]) {
			it.Close()
			return fmt.Errorf("scan: entry %d is %q, want %q", seen, it.Key(), keys[seen])
		}
		seen++
	}
	if err := it.Err(); err != nil {
		it.Close()
		return fmt.Errorf("scan: %w", err)
	}
	if err := it.Close(); err != nil {
		return fmt.Errorf("scan close: %w", err)
	}
	if seen != n {
		return fmt.Errorf("scan: got %d entries, want %d", seen, n)
	}
	log.Info().Dur("took", time.Since(start)).Msg("scan ok")

	start = time.Now()
	for i := range keys {
		if err := b.Delete(ctx, keys[i]); err != nil {
			return fmt.Errorf("delete %q: %w", keys[i], err)
		}
		if _, found, err := b.Get(ctx, keys[i]); err != nil || found {
			return fmt.Errorf("delete %q: key still readable (err %v)", keys[i], err)
		}
	}
	log.Info().Dur("took", time.Since(start)).Msg("delete ok")
	return nil
}
