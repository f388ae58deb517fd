package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	Medium         string
	Directory      string
	NATSURL        string
	Bucket         string
	Blocks         int
	BlockSize      int
	Writers        int
	Readers        int
	BandwidthWrite int64
	BandwidthRead  int64
	ReadTimeout    time.Duration
	StatusInterval time.Duration
	MetricsPort    int
	LogLevel       string
	LogFormat      string
	ShowVersion    bool
	ShowHelp       bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	// Define flags with environment variable fallback
	flag.StringVar(&cfg.Medium, "medium",
		getEnv("BLOCKSTORE_MEDIUM", "null"),
		"Storage medium: null, memory, file, objectstore (env: BLOCKSTORE_MEDIUM)")

	flag.StringVar(&cfg.Directory, "dir",
		getEnv("BLOCKSTORE_DIR", os.TempDir()),
		"Root directory for the file medium (env: BLOCKSTORE_DIR)")

	flag.StringVar(&cfg.NATSURL, "nats-url",
		getEnv("BLOCKSTORE_NATS_URL", "nats://localhost:4222"),
		"NATS server URL for the objectstore medium (env: BLOCKSTORE_NATS_URL)")

	flag.StringVar(&cfg.Bucket, "bucket",
		getEnv("BLOCKSTORE_BUCKET", "blockstore-bench"),
		"Object store bucket name (env: BLOCKSTORE_BUCKET)")

	flag.IntVar(&cfg.Blocks, "blocks",
		getEnvInt("BLOCKSTORE_BLOCKS", 1000),
		"Number of blocks to save and read back (env: BLOCKSTORE_BLOCKS)")

	flag.IntVar(&cfg.BlockSize, "block-size",
		getEnvInt("BLOCKSTORE_BLOCK_SIZE", 4096),
		"Block payload size in bytes (env: BLOCKSTORE_BLOCK_SIZE)")

	flag.IntVar(&cfg.Writers, "writers",
		getEnvInt("BLOCKSTORE_WRITERS", 4),
		"Writer worker count (env: BLOCKSTORE_WRITERS)")

	flag.IntVar(&cfg.Readers, "readers",
		getEnvInt("BLOCKSTORE_READERS", 4),
		"Reader worker count (env: BLOCKSTORE_READERS)")

	flag.Int64Var(&cfg.BandwidthWrite, "bandwidth-write",
		getEnvInt64("BLOCKSTORE_BANDWIDTH_WRITE", 0),
		"Write bandwidth limit in bytes/s, 0 for unlimited (env: BLOCKSTORE_BANDWIDTH_WRITE)")

	flag.Int64Var(&cfg.BandwidthRead, "bandwidth-read",
		getEnvInt64("BLOCKSTORE_BANDWIDTH_READ", 0),
		"Read bandwidth limit in bytes/s, 0 for unlimited (env: BLOCKSTORE_BANDWIDTH_READ)")

	flag.DurationVar(&cfg.ReadTimeout, "read-timeout",
		getEnvDuration("BLOCKSTORE_READ_TIMEOUT", 30*time.Second),
		"Timeout waiting for each read result (env: BLOCKSTORE_READ_TIMEOUT)")

	flag.DurationVar(&cfg.StatusInterval, "status-interval",
		getEnvDuration("BLOCKSTORE_STATUS_INTERVAL", 2*time.Second),
		"Interval for pipeline status logging, 0 to disable (env: BLOCKSTORE_STATUS_INTERVAL)")

	flag.IntVar(&cfg.MetricsPort, "metrics-port",
		getEnvInt("BLOCKSTORE_METRICS_PORT", 0),
		"Prometheus metrics port, 0 to disable (env: BLOCKSTORE_METRICS_PORT)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("BLOCKSTORE_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: BLOCKSTORE_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("BLOCKSTORE_LOG_FORMAT", "text"),
		"Log format: json, text (env: BLOCKSTORE_LOG_FORMAT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")

	flag.Usage = printDetailedHelp

	flag.Parse()
	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	validMedia := []string{"null", "memory", "file", "objectstore"}
	if !contains(validMedia, cfg.Medium) {
		return fmt.Errorf("invalid medium: %s", cfg.Medium)
	}

	if cfg.Blocks <= 0 {
		return fmt.Errorf("blocks must be positive, got %d", cfg.Blocks)
	}
	if cfg.BlockSize <= 0 {
		return fmt.Errorf("block size must be positive, got %d", cfg.BlockSize)
	}
	if cfg.Writers <= 0 || cfg.Readers <= 0 {
		return fmt.Errorf("worker counts must be positive, got writers=%d readers=%d", cfg.Writers, cfg.Readers)
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.MetricsPort)
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - Block Storage Pipeline Benchmark

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Throughput ceiling with the null medium
  %s --medium=null --blocks=100000 --writers=8 --readers=8

  # File medium with a write bandwidth cap
  %s --medium=file --dir=/var/tmp/blockstore --bandwidth-write=10485760

  # NATS object store with metrics exposed
  %s --medium=objectstore --nats-url=nats://localhost:4222 --metrics-port=9090

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Utility function to check if slice contains string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
