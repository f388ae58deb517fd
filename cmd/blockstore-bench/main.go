// Package main implements the blockstore benchmark and smoke-test tool.
// It drives the asynchronous save/read pipeline against a chosen storage
// medium and reports throughput, queue occupancy and worker states.
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/blockstore/backend"
	"github.com/c360/blockstore/medium"
	"github.com/c360/blockstore/medium/file"
	"github.com/c360/blockstore/medium/memory"
	"github.com/c360/blockstore/medium/null"
	"github.com/c360/blockstore/medium/objectstore"
	"github.com/c360/blockstore/metric"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "blockstore-bench"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Benchmark failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting benchmark",
		"version", Version,
		"medium", cliCfg.Medium,
		"blocks", cliCfg.Blocks,
		"block_size", cliCfg.BlockSize)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m, err := openMedium(ctx, cliCfg)
	if err != nil {
		return fmt.Errorf("open medium %s: %w", cliCfg.Medium, err)
	}

	registry := metric.NewRegistry()
	if cliCfg.MetricsPort > 0 {
		startMetricsServer(cliCfg.MetricsPort, registry)
	}

	cfg := backend.DefaultConfig()
	cfg.SimultaneousWrites = cliCfg.Writers
	cfg.SimultaneousReads = cliCfg.Readers
	cfg.BandwidthWrite = cliCfg.BandwidthWrite
	cfg.BandwidthRead = cliCfg.BandwidthRead
	cfg.BlockSize = cliCfg.BlockSize

	b, err := backend.New(m, cfg,
		backend.WithLogger(logger),
		backend.WithMetrics(registry))
	if err != nil {
		return fmt.Errorf("create backend: %w", err)
	}

	if err := runBenchmark(ctx, b, cliCfg); err != nil {
		_ = b.Close()
		return err
	}

	if err := b.Close(); err != nil {
		return fmt.Errorf("close backend: %w", err)
	}

	slog.Info("Benchmark complete")
	return nil
}

// openMedium builds the storage medium named on the command line.
func openMedium(ctx context.Context, cliCfg *CLIConfig) (medium.Medium, error) {
	switch cliCfg.Medium {
	case "null":
		return null.New(), nil
	case "memory":
		return memory.New(), nil
	case "file":
		return file.New(file.Config{Directory: cliCfg.Directory})
	case "objectstore":
		cfg := objectstore.DefaultConfig()
		cfg.URL = cliCfg.NATSURL
		cfg.Bucket = cliCfg.Bucket
		return objectstore.New(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown medium %q", cliCfg.Medium)
	}
}

// runBenchmark saves the configured number of blocks, reads them all back
// asynchronously and reports throughput for both phases.
func runBenchmark(ctx context.Context, b *backend.Backend, cliCfg *CLIConfig) error {
	payload := make([]byte, cliCfg.BlockSize)
	if _, err := rand.Read(payload); err != nil {
		return fmt.Errorf("generate payload: %w", err)
	}

	stopStatus := startStatusReporter(b, cliCfg.StatusInterval)
	defer stopStatus()

	uids := make([]string, 0, cliCfg.Blocks)
	writeStart := time.Now()
	for i := 0; i < cliCfg.Blocks; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		u, err := b.Save(payload)
		if err != nil {
			return fmt.Errorf("save block %d: %w", i, err)
		}
		uids = append(uids, u)
	}

	// The last uid is saved synchronously so the write-phase clock stops
	// only after the queue has drained past every earlier job.
	if _, err := b.Save(payload, backend.WithSync()); err != nil {
		return fmt.Errorf("final sync save: %w", err)
	}
	reportPhase("write", cliCfg.Blocks+1, cliCfg.BlockSize, time.Since(writeStart))

	readStart := time.Now()
	for i, u := range uids {
		if err := b.Read(&backend.Block{ID: int64(i), UID: u, Size: cliCfg.BlockSize}); err != nil {
			return fmt.Errorf("request block %d: %w", i, err)
		}
	}
	for range uids {
		res, err := b.ReadGet(cliCfg.ReadTimeout)
		if err != nil {
			return fmt.Errorf("collect read result: %w", err)
		}
		if res.Data == nil {
			return fmt.Errorf("block %d (uid %s) missing from medium", res.Block.ID, res.Block.UID)
		}
	}
	reportPhase("read", len(uids), cliCfg.BlockSize, time.Since(readStart))

	return nil
}

// startStatusReporter logs worker and queue state on an interval until the
// returned stop function is called. Interval 0 disables it.
func startStatusReporter(b *backend.Backend, interval time.Duration) func() {
	if interval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				qs := b.QueueStatus()
				slog.Info("pipeline status",
					"threads", b.ThreadStatus(),
					"wq_filled", fmt.Sprintf("%.2f", qs.WQFilled),
					"rq_filled", fmt.Sprintf("%.2f", qs.RQFilled))
			}
		}
	}()
	return func() { close(done) }
}

func reportPhase(phase string, blocks, blockSize int, elapsed time.Duration) {
	totalBytes := int64(blocks) * int64(blockSize)
	mbps := float64(totalBytes) / elapsed.Seconds() / (1 << 20)
	slog.Info("phase complete",
		"phase", phase,
		"blocks", blocks,
		"bytes", totalBytes,
		"elapsed", elapsed.Round(time.Millisecond),
		"throughput_mib_s", fmt.Sprintf("%.1f", mbps))
}

// startMetricsServer exposes the Prometheus endpoint in the background.
func startMetricsServer(port int, registry *metric.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.Handler())
	addr := fmt.Sprintf(":%d", port)
	go func() {
		slog.Info("Serving metrics", "addr", addr+"/metrics")
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics server stopped", "error", err)
		}
	}()
}
